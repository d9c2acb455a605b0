package matching

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guimove/vmplacer/internal/model"
)

func TestAggregate(t *testing.T) {
	t.Parallel()

	usage := 0.5
	a := makeVM(1, model.VMPending, 2, 1)
	a.CPUUsage = &usage
	a.HostIDs = []int{1, 2, 3}
	a.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "10de"}}
	a.NICMatches = map[int][]int{0: {5}, 3: {6}}

	b := makeVM(2, model.VMPending, 4, 2)
	b.HostIDs = []int{2, 3, 4}
	b.PCIDevices = []model.PCIDeviceRequirement{{ClassID: "0200"}, {ShortAddress: "00:03.0"}}
	b.NICMatches = map[int][]int{1: {7}}

	agg, origins := Aggregate([]model.VMRequirements{a, b})

	assert.Equal(t, model.VMPending, agg.State)
	assert.Equal(t, 6.0, agg.Memory)
	assert.Equal(t, 3.0, agg.CPURatio)
	require.NotNil(t, agg.CPUUsage)
	assert.Equal(t, 2.5, *agg.CPUUsage, "members without usage contribute their ratio")
	assert.Equal(t, []int{2, 3}, agg.HostIDs)
	assert.Equal(t, map[int][]int{0: {5}, 1: {6}, 2: {7}}, agg.NICMatches)

	wantOrigins := []PCIOrigin{{VMID: 1, Index: 0}, {VMID: 2, Index: 0}, {VMID: 2, Index: 1}}
	if diff := cmp.Diff(wantOrigins, origins); diff != "" {
		t.Errorf("origins mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregate_State(t *testing.T) {
	t.Parallel()

	agg, _ := Aggregate([]model.VMRequirements{
		makeVM(1, model.VMPending, 1, 1),
		makeVM(2, model.VMRunning, 1, 1),
	})
	assert.Equal(t, model.VMRunning, agg.State)
	assert.Nil(t, agg.HostIDs, "no member restricts hosts")
	assert.Nil(t, agg.CPUUsage)
}

func TestAggregate_DisjointHosts(t *testing.T) {
	t.Parallel()

	a := makeVM(1, model.VMPending, 1, 1)
	a.HostIDs = []int{1}
	b := makeVM(2, model.VMPending, 1, 1)
	b.HostIDs = []int{2}

	agg, _ := Aggregate([]model.VMRequirements{a, b})
	assert.NotNil(t, agg.HostIDs)
	assert.Empty(t, agg.HostIDs)
}

func TestFindGroupMatches(t *testing.T) {
	t.Parallel()

	hosts := hostMap(
		makeHost(1, 0, 4, 4),
		model.HostCapacity{
			ID:     2,
			Memory: model.Capacity{Total: 16},
			CPU:    model.Capacity{Total: 16},
			PCIDevices: []model.PCIDevice{
				{ShortAddress: "00:01.0", VendorID: "10de"},
				{ShortAddress: "00:02.0", VendorID: "8086"},
			},
		},
	)

	a := makeVM(7, model.VMPending, 3, 1)
	a.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "10de"}}
	b := makeVM(3, model.VMPending, 3, 1)
	b.PCIDevices = []model.PCIDeviceRequirement{{VendorID: "8086"}}

	got := NewMatcher(hosts, nil, nil, true).FindGroupMatches([]model.VMRequirements{a, b})

	// Only host 2 fits 6 units of memory; PCI matches are attributed back per member.
	want := HostMatches{
		Hosts: []int{2},
		PCIDevices: []PCIDeviceMatch{
			{VMID: 3, ReqIndex: 0, Requirement: b.PCIDevices[0], HostID: 2, ShortAddress: "00:02.0"},
			{VMID: 7, ReqIndex: 0, Requirement: a.PCIDevices[0], HostID: 2, ShortAddress: "00:01.0"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FindGroupMatches() mismatch (-want +got):\n%s", diff)
	}
}
