package model

import (
	"fmt"
	"sort"
)

// PCIDevice is a PCI device installed on a host.
type PCIDevice struct {
	ShortAddress string `json:"short_address"`
	VendorID     string `json:"vendor_id"`
	DeviceID     string `json:"device_id"`
	ClassID      string `json:"class_id"`

	// VMID is the VM the device is assigned to; nil when the device is free.
	VMID *int `json:"vm_id,omitempty"`
}

// Assigned reports whether the device is attached to a VM.
func (d PCIDevice) Assigned() bool {
	return d.VMID != nil
}

// HostCapacity describes a hypervisor host and its resources.
type HostCapacity struct {
	ID        int      `json:"id"`
	ClusterID int      `json:"cluster_id"`
	Memory    Capacity `json:"memory"`
	CPU       Capacity `json:"cpu"`

	// Disks are the host-local datastores keyed by disk id.
	Disks map[int]Capacity `json:"disks,omitempty"`

	DiskIO *Capacity `json:"disk_io,omitempty"`
	Net    *Capacity `json:"net,omitempty"`

	PCIDevices []PCIDevice `json:"pci_devices,omitempty"`
}

// DiskIDs returns the host's disk ids in ascending order.
func (h HostCapacity) DiskIDs() []int {
	ids := make([]int, 0, len(h.Disks))
	for id := range h.Disks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// PCIDevice returns the device with the given short address.
func (h HostCapacity) PCIDevice(address string) (PCIDevice, bool) {
	for _, d := range h.PCIDevices {
		if d.ShortAddress == address {
			return d, true
		}
	}
	return PCIDevice{}, false
}

// Validate checks every capacity of the host.
func (h HostCapacity) Validate() error {
	if err := h.Memory.Validate(); err != nil {
		return fmt.Errorf("host %d memory: %w", h.ID, err)
	}
	if err := h.CPU.Validate(); err != nil {
		return fmt.Errorf("host %d cpu: %w", h.ID, err)
	}
	for id, d := range h.Disks {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("host %d disk %d: %w", h.ID, id, err)
		}
	}
	seen := make(map[string]bool, len(h.PCIDevices))
	for _, d := range h.PCIDevices {
		if seen[d.ShortAddress] {
			return fmt.Errorf("host %d: duplicate pci address %q", h.ID, d.ShortAddress)
		}
		seen[d.ShortAddress] = true
	}
	return nil
}

// DStoreCapacity describes a shared (system) datastore.
type DStoreCapacity struct {
	ID         int      `json:"id"`
	Size       Capacity `json:"size"`
	ClusterIDs []int    `json:"cluster_ids"`
}

// VNetCapacity describes a virtual network and its remaining address leases.
type VNetCapacity struct {
	ID         int   `json:"id"`
	FreeIPs    int   `json:"n_free_ip_addresses"`
	ClusterIDs []int `json:"cluster_ids"`
}
