package model

import (
	"errors"
	"testing"
)

func TestCapacity_Available(t *testing.T) {
	c := Capacity{Total: 8, Usage: 3}

	if got := c.Available(true); got != 5 {
		t.Errorf("Available(true) = %v, want 5", got)
	}
	if got := c.Available(false); got != 8 {
		t.Errorf("Available(false) = %v, want 8", got)
	}
}

func TestCapacity_Validate(t *testing.T) {
	tests := []struct {
		name    string
		c       Capacity
		wantErr bool
	}{
		{"empty", Capacity{}, false},
		{"partly used", Capacity{Total: 10, Usage: 4}, false},
		{"full", Capacity{Total: 10, Usage: 10}, false},
		{"overcommitted", Capacity{Total: 10, Usage: 11}, true},
		{"negative usage", Capacity{Total: 10, Usage: -1}, true},
		{"negative total", Capacity{Total: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidCapacity) {
				t.Errorf("Validate() error = %v, want ErrInvalidCapacity", err)
			}
		})
	}
}

func TestCapacity_Utilization(t *testing.T) {
	if got := (Capacity{}).Utilization(); got != 0 {
		t.Errorf("zero capacity: got %v, want 0", got)
	}
	if got := (Capacity{Total: 4, Usage: 1}).Utilization(); got != 0.25 {
		t.Errorf("got %v, want 0.25", got)
	}
}

func TestPCIDeviceRequirement_Matches(t *testing.T) {
	dev := PCIDevice{ShortAddress: "00:01.0", VendorID: "10de", DeviceID: "1db4", ClassID: "0302"}

	tests := []struct {
		name string
		req  PCIDeviceRequirement
		want bool
	}{
		{"all wildcards", PCIDeviceRequirement{}, true},
		{"vendor only", PCIDeviceRequirement{VendorID: "10de"}, true},
		{"full match", PCIDeviceRequirement{VendorID: "10de", DeviceID: "1db4", ClassID: "0302"}, true},
		{"wrong vendor", PCIDeviceRequirement{VendorID: "8086"}, false},
		{"wrong class", PCIDeviceRequirement{VendorID: "10de", ClassID: "0200"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Matches(dev); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVMRequirements_EffectiveCPUUsage(t *testing.T) {
	vm := VMRequirements{CPURatio: 2}
	if got := vm.EffectiveCPUUsage(); got != 2 {
		t.Errorf("without usage: got %v, want 2", got)
	}

	usage := 0.5
	vm.CPUUsage = &usage
	if got := vm.EffectiveCPUUsage(); got != 0.5 {
		t.Errorf("with usage: got %v, want 0.5", got)
	}
}

func TestHostCapacity_DiskIDs(t *testing.T) {
	h := HostCapacity{Disks: map[int]Capacity{3: {}, 0: {}, 1: {}}}
	got := h.DiskIDs()
	want := []int{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("DiskIDs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DiskIDs() = %v, want %v", got, want)
		}
	}
}

func TestClusterState_Maps(t *testing.T) {
	cs := ClusterState{
		UsedHostDStores:   []HostDStoreBinding{{VMID: 1, ReqID: 0, HostID: 2, DiskID: 5}},
		UsedSharedDStores: []SharedDStoreBinding{{VMID: 1, ReqID: 1, DStoreID: 100}},
	}

	hd := cs.UsedHostDStoreMap()
	if got := hd[StorageKey{VMID: 1, ReqID: 0}]; got != (HostDisk{HostID: 2, DiskID: 5}) {
		t.Errorf("UsedHostDStoreMap() = %v", hd)
	}
	sd := cs.UsedSharedDStoreMap()
	if got := sd[StorageKey{VMID: 1, ReqID: 1}]; got != 100 {
		t.Errorf("UsedSharedDStoreMap() = %v", sd)
	}
}

func validState() ClusterState {
	return ClusterState{
		VMs: []VMRequirements{
			{ID: 1, State: VMRunning, Memory: 2, CPURatio: 1},
			{ID: 2, State: VMPending, Memory: 2, CPURatio: 1},
		},
		Groups: []VMGroup{{ID: 7, Affined: true, VMIDs: []int{1, 2}}},
		Hosts: []HostCapacity{
			{ID: 10, Memory: Capacity{Total: 8, Usage: 2}, CPU: Capacity{Total: 4, Usage: 1}},
		},
		CurrentPlacement: map[int]int{1: 10},
	}
}

func TestClusterState_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ClusterState)
		wantErr bool
	}{
		{"valid", func(*ClusterState) {}, false},
		{"duplicate host", func(cs *ClusterState) { cs.Hosts = append(cs.Hosts, cs.Hosts[0]) }, true},
		{"duplicate vm", func(cs *ClusterState) { cs.VMs = append(cs.VMs, cs.VMs[0]) }, true},
		{"unknown state", func(cs *ClusterState) { cs.VMs[0].State = "BOOTING" }, true},
		{"running without host", func(cs *ClusterState) { cs.CurrentPlacement = nil }, true},
		{"placement on unknown host", func(cs *ClusterState) { cs.CurrentPlacement[1] = 99 }, true},
		{"group with unknown vm", func(cs *ClusterState) { cs.Groups[0].VMIDs = append(cs.Groups[0].VMIDs, 3) }, true},
		{"vm in two affined groups", func(cs *ClusterState) {
			cs.Groups = append(cs.Groups, VMGroup{ID: 8, Affined: true, VMIDs: []int{2}})
		}, true},
		{"vm in affined and anti-affined group", func(cs *ClusterState) {
			cs.Groups = append(cs.Groups, VMGroup{ID: 8, VMIDs: []int{2}})
		}, false},
		{"overcommitted host", func(cs *ClusterState) { cs.Hosts[0].Memory.Usage = 9 }, true},
		{"binding to unknown datastore", func(cs *ClusterState) {
			cs.UsedSharedDStores = []SharedDStoreBinding{{VMID: 1, DStoreID: 3}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := validState()
			tt.mutate(&cs)
			err := cs.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidState) {
				t.Errorf("Validate() error = %v, want ErrInvalidState", err)
			}
		})
	}
}

func TestClusterState_Totals(t *testing.T) {
	cs := ClusterState{
		VMs: []VMRequirements{{State: VMPending}, {State: VMRunning}, {State: VMPending}},
		Hosts: []HostCapacity{
			{Memory: Capacity{Total: 8, Usage: 2}, CPU: Capacity{Total: 4, Usage: 1}},
			{Memory: Capacity{Total: 16, Usage: 4}, CPU: Capacity{Total: 8, Usage: 2}},
		},
	}

	if got := cs.PendingCount(); got != 2 {
		t.Errorf("PendingCount() = %d, want 2", got)
	}
	if got := cs.TotalMemory(); got != (Capacity{Total: 24, Usage: 6}) {
		t.Errorf("TotalMemory() = %+v, want {24, 6}", got)
	}
	if got := cs.TotalCPU(); got != (Capacity{Total: 12, Usage: 3}) {
		t.Errorf("TotalCPU() = %+v, want {12, 3}", got)
	}
}

func TestDefaultScoringWeights(t *testing.T) {
	w := DefaultScoringWeights()
	sum := w.Placement + w.Consolidation + w.Stability + w.Balance
	if sum < 0.99 || sum > 1.01 {
		t.Errorf("weights sum to %v, want ~1.0", sum)
	}
}
