package matching

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guimove/vmplacer/internal/model"
)

func intPtr(v int) *int { return &v }

func makeHost(id, cluster int, mem, cpu float64) model.HostCapacity {
	return model.HostCapacity{
		ID:        id,
		ClusterID: cluster,
		Memory:    model.Capacity{Total: mem},
		CPU:       model.Capacity{Total: cpu},
	}
}

func makeVM(id int, state model.VMState, mem, cpu float64) model.VMRequirements {
	return model.VMRequirements{ID: id, State: state, Memory: mem, CPURatio: cpu}
}

func hostMap(hosts ...model.HostCapacity) map[int]model.HostCapacity {
	m := make(map[int]model.HostCapacity, len(hosts))
	for _, h := range hosts {
		m[h.ID] = h
	}
	return m
}

func TestFindHostMatches_Capacity(t *testing.T) {
	t.Parallel()

	busy := makeHost(2, 0, 8, 8)
	busy.Memory.Usage = 6
	hosts := hostMap(makeHost(3, 0, 8, 8), makeHost(1, 0, 2, 8), busy)

	tests := []struct {
		name string
		free bool
		vm   model.VMRequirements
		want []int
	}{
		{"free view excludes used memory", true, makeVM(10, model.VMPending, 4, 1), []int{3}},
		{"total view ignores usage", false, makeVM(10, model.VMRunning, 4, 1), []int{2, 3}},
		{"cpu too large", false, makeVM(10, model.VMRunning, 1, 9), nil},
		{"host restriction", false, func() model.VMRequirements {
			vm := makeVM(10, model.VMRunning, 1, 1)
			vm.HostIDs = []int{1, 3}
			return vm
		}(), []int{1, 3}},
		{"empty host restriction", false, func() model.VMRequirements {
			vm := makeVM(10, model.VMRunning, 1, 1)
			vm.HostIDs = []int{}
			return vm
		}(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := NewMatcher(hosts, nil, nil, tt.free)
			got := m.FindHostMatches(tt.vm)
			assert.Equal(t, tt.want, got.Hosts)
		})
	}
}

func TestFindHostMatches_NICClusters(t *testing.T) {
	t.Parallel()

	hosts := hostMap(makeHost(1, 100, 8, 8), makeHost(2, 200, 8, 8), makeHost(3, 300, 8, 8))
	vnets := map[int]model.VNetCapacity{
		0: {ID: 0, FreeIPs: 10, ClusterIDs: []int{100, 200}},
		1: {ID: 1, FreeIPs: 10, ClusterIDs: []int{200}},
		2: {ID: 2, FreeIPs: 10, ClusterIDs: []int{300}},
	}
	m := NewMatcher(hosts, nil, vnets, true)

	vm := makeVM(10, model.VMPending, 1, 1)
	vm.NICMatches = map[int][]int{0: {0}, 1: {1, 2}}
	// nic 0 reaches {100, 200}, nic 1 reaches {200, 300}
	assert.Equal(t, []int{2}, m.FindHostMatches(vm).Hosts)

	vm.NICMatches = map[int][]int{0: {99}}
	assert.Empty(t, m.FindHostMatches(vm).Hosts, "unknown vnet reaches no cluster")

	running := makeVM(11, model.VMRunning, 1, 1)
	running.NICMatches = map[int][]int{0: {99}}
	m = NewMatcher(hosts, nil, vnets, false)
	assert.Equal(t, []int{1, 2, 3}, m.FindHostMatches(running).Hosts, "placed VMs keep their networks")
}

func TestFindHostMatches_PCI(t *testing.T) {
	t.Parallel()

	gpu := model.HostCapacity{
		ID:     1,
		Memory: model.Capacity{Total: 8},
		CPU:    model.Capacity{Total: 8},
		PCIDevices: []model.PCIDevice{
			{ShortAddress: "00:01.0", VendorID: "10de", DeviceID: "1db4", ClassID: "0302"},
			{ShortAddress: "00:02.0", VendorID: "10de", DeviceID: "1db4", ClassID: "0302", VMID: intPtr(5)},
		},
	}
	nic := model.HostCapacity{
		ID:     2,
		Memory: model.Capacity{Total: 8},
		CPU:    model.Capacity{Total: 8},
		PCIDevices: []model.PCIDevice{
			{ShortAddress: "00:01.0", VendorID: "8086", DeviceID: "1572", ClassID: "0200"},
		},
	}
	hosts := hostMap(gpu, nic)

	t.Run("wildcard skips assigned devices in free view", func(t *testing.T) {
		t.Parallel()

		vm := makeVM(10, model.VMPending, 1, 1)
		vm.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "10de"}}

		got := NewMatcher(hosts, nil, nil, true).FindHostMatches(vm)
		want := HostMatches{
			Hosts: []int{1},
			PCIDevices: []PCIDeviceMatch{
				{VMID: 10, ReqIndex: 0, Requirement: vm.PCIDevices[0], HostID: 1, ShortAddress: "00:01.0"},
			},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("FindHostMatches() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("total view offers every device", func(t *testing.T) {
		t.Parallel()

		vm := makeVM(10, model.VMRunning, 1, 1)
		vm.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "10de"}}

		got := NewMatcher(hosts, nil, nil, false).FindHostMatches(vm)
		require.Len(t, got.PCIDevices, 2)
		assert.Equal(t, "00:02.0", got.PCIDevices[1].ShortAddress)
	})

	t.Run("exact address must be free", func(t *testing.T) {
		t.Parallel()

		vm := makeVM(10, model.VMPending, 1, 1)
		vm.PCIDevices = []model.PCIDeviceRequirement{{ShortAddress: "00:02.0"}}
		got := NewMatcher(hosts, nil, nil, true).FindHostMatches(vm)
		assert.Empty(t, got.Hosts)

		vm.PCIDevices = []model.PCIDeviceRequirement{{ShortAddress: "00:01.0"}}
		got = NewMatcher(hosts, nil, nil, true).FindHostMatches(vm)
		assert.Equal(t, []int{1, 2}, got.Hosts)
	})

	t.Run("one failing requirement eliminates the host", func(t *testing.T) {
		t.Parallel()

		vm := makeVM(10, model.VMPending, 1, 1)
		vm.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "10de"}, {ClassID: "0200"}}
		got := NewMatcher(hosts, nil, nil, true).FindHostMatches(vm)
		assert.Empty(t, got.Hosts)
		assert.Empty(t, got.PCIDevices)
	})
}

func TestVNetCandidates(t *testing.T) {
	t.Parallel()

	vnets := map[int]model.VNetCapacity{
		0: {ID: 0, FreeIPs: 1},
		1: {ID: 1, FreeIPs: 0},
		2: {ID: 2, FreeIPs: 3},
	}
	vm := makeVM(1, model.VMPending, 1, 1)
	vm.NICMatches = map[int][]int{0: {2, 0, 1, 9}, 1: {1}}

	got := NewMatcher(nil, nil, vnets, true).VNetCandidates(vm)
	want := map[int][]int{0: {0, 2}, 1: {}}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("VNetCandidates() mismatch (-want +got):\n%s", diff)
	}
}
