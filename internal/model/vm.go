package model

import "sort"

// VMState is the lifecycle state of a VM as seen by the scheduler.
type VMState string

const (
	VMPending  VMState = "PENDING"
	VMResched  VMState = "RESCHED"
	VMRunning  VMState = "RUNNING"
	VMPowerOff VMState = "POWEROFF"
)

// Valid reports whether s is a known state.
func (s VMState) Valid() bool {
	switch s {
	case VMPending, VMResched, VMRunning, VMPowerOff:
		return true
	}
	return false
}

// PCIDeviceRequirement asks for a PCI device. Empty fields are wildcards;
// a non-empty ShortAddress pins one exact device.
type PCIDeviceRequirement struct {
	ShortAddress string `json:"short_address,omitempty"`
	VendorID     string `json:"vendor_id,omitempty"`
	DeviceID     string `json:"device_id,omitempty"`
	ClassID      string `json:"class_id,omitempty"`
}

// Matches reports whether dev satisfies the vendor/device/class part of the requirement.
func (r PCIDeviceRequirement) Matches(dev PCIDevice) bool {
	return (r.VendorID == "" || r.VendorID == dev.VendorID) &&
		(r.DeviceID == "" || r.DeviceID == dev.DeviceID) &&
		(r.ClassID == "" || r.ClassID == dev.ClassID)
}

// DStoreRequirement is one disk request of a VM.
type DStoreRequirement struct {
	ID               int     `json:"id"`
	VMID             int     `json:"vm_id"`
	Size             float64 `json:"size"`
	AllowHostDStores bool    `json:"allow_host_dstores"`

	// HostDStoreIDs restricts the usable host disks per host; nil means any disk of any host.
	HostDStoreIDs map[int][]int `json:"host_dstore_ids,omitempty"`

	SharedDStoreIDs []int `json:"shared_dstore_ids,omitempty"`
}

// VMRequirements holds everything the scheduler needs to place one VM.
type VMRequirements struct {
	ID       int      `json:"id"`
	State    VMState  `json:"state"`
	Memory   float64  `json:"memory"`
	CPURatio float64  `json:"cpu_ratio"`
	CPUUsage *float64 `json:"cpu_usage,omitempty"`

	Storage    map[int]DStoreRequirement `json:"storage,omitempty"`
	PCIDevices []PCIDeviceRequirement    `json:"pci_devices,omitempty"`

	// HostIDs restricts the candidate hosts; nil means unrestricted.
	HostIDs []int `json:"host_ids,omitempty"`

	ShareVNets bool `json:"share_vnets"`

	// NICMatches lists the candidate vnets per NIC id.
	NICMatches map[int][]int `json:"nic_matches,omitempty"`
}

// Pending reports whether the VM waits for a first placement.
func (vm VMRequirements) Pending() bool {
	return vm.State == VMPending
}

// EffectiveCPUUsage returns the measured CPU usage, falling back to the requested ratio.
func (vm VMRequirements) EffectiveCPUUsage() float64 {
	if vm.CPUUsage != nil {
		return *vm.CPUUsage
	}
	return vm.CPURatio
}

// StorageIDs returns the storage requirement ids in ascending order.
func (vm VMRequirements) StorageIDs() []int {
	ids := make([]int, 0, len(vm.Storage))
	for id := range vm.Storage {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NICIDs returns the NIC ids in ascending order.
func (vm VMRequirements) NICIDs() []int {
	ids := make([]int, 0, len(vm.NICMatches))
	for id := range vm.NICMatches {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// VMGroup is a set of VMs that must share a host (affined) or must not (anti-affined).
type VMGroup struct {
	ID      int   `json:"id"`
	Affined bool  `json:"affined"`
	VMIDs   []int `json:"vm_ids"`
}

// Allocation is the placement of one VM. A VM without an allocation is pending.
type Allocation struct {
	VMID            int         `json:"vm_id"`
	HostID          int         `json:"host_id"`
	HostDStoreIDs   map[int]int `json:"host_dstore_ids,omitempty"`   // storage req id -> host disk id
	SharedDStoreIDs map[int]int `json:"shared_dstore_ids,omitempty"` // storage req id -> datastore id
	NICs            map[int]int `json:"nics,omitempty"`              // nic id -> vnet id
}

// StorageKey identifies one storage requirement of one VM.
type StorageKey struct {
	VMID  int
	ReqID int
}

// HostDisk identifies one local disk of one host.
type HostDisk struct {
	HostID int
	DiskID int
}
