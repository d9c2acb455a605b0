package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidState is returned when a cluster snapshot is internally inconsistent.
var ErrInvalidState = errors.New("invalid cluster state")

// HostDStoreBinding records that a VM's storage requirement lives on a host disk.
type HostDStoreBinding struct {
	VMID   int `json:"vm_id"`
	ReqID  int `json:"req_id"`
	HostID int `json:"host_id"`
	DiskID int `json:"disk_id"`
}

// SharedDStoreBinding records that a VM's storage requirement lives on a shared datastore.
type SharedDStoreBinding struct {
	VMID     int `json:"vm_id"`
	ReqID    int `json:"req_id"`
	DStoreID int `json:"dstore_id"`
}

// ClusterState is a point-in-time snapshot of the scheduling problem for one cycle,
// serving as input to the mappers.
type ClusterState struct {
	// When the snapshot was taken
	CollectedAt time.Time `json:"collected_at,omitempty"`
	Name        string    `json:"name,omitempty"`

	VMs     []VMRequirements `json:"vms"`
	Groups  []VMGroup        `json:"groups,omitempty"`
	Hosts   []HostCapacity   `json:"hosts"`
	DStores []DStoreCapacity `json:"dstores,omitempty"`
	VNets   []VNetCapacity   `json:"vnets,omitempty"`

	// CurrentPlacement maps the id of every non-pending VM to its host.
	CurrentPlacement map[int]int `json:"current_placement,omitempty"`

	UsedHostDStores   []HostDStoreBinding   `json:"used_host_dstores,omitempty"`
	UsedSharedDStores []SharedDStoreBinding `json:"used_shared_dstores,omitempty"`
}

// VMMap indexes the VMs by id.
func (cs ClusterState) VMMap() map[int]VMRequirements {
	m := make(map[int]VMRequirements, len(cs.VMs))
	for _, vm := range cs.VMs {
		m[vm.ID] = vm
	}
	return m
}

// HostMap indexes the hosts by id.
func (cs ClusterState) HostMap() map[int]HostCapacity {
	m := make(map[int]HostCapacity, len(cs.Hosts))
	for _, h := range cs.Hosts {
		m[h.ID] = h
	}
	return m
}

// DStoreMap indexes the shared datastores by id.
func (cs ClusterState) DStoreMap() map[int]DStoreCapacity {
	m := make(map[int]DStoreCapacity, len(cs.DStores))
	for _, d := range cs.DStores {
		m[d.ID] = d
	}
	return m
}

// VNetMap indexes the virtual networks by id.
func (cs ClusterState) VNetMap() map[int]VNetCapacity {
	m := make(map[int]VNetCapacity, len(cs.VNets))
	for _, v := range cs.VNets {
		m[v.ID] = v
	}
	return m
}

// GroupMap indexes the VM groups by id.
func (cs ClusterState) GroupMap() map[int]VMGroup {
	m := make(map[int]VMGroup, len(cs.Groups))
	for _, g := range cs.Groups {
		m[g.ID] = g
	}
	return m
}

// UsedHostDStoreMap returns the host disk bindings keyed by storage requirement.
func (cs ClusterState) UsedHostDStoreMap() map[StorageKey]HostDisk {
	m := make(map[StorageKey]HostDisk, len(cs.UsedHostDStores))
	for _, b := range cs.UsedHostDStores {
		m[StorageKey{VMID: b.VMID, ReqID: b.ReqID}] = HostDisk{HostID: b.HostID, DiskID: b.DiskID}
	}
	return m
}

// UsedSharedDStoreMap returns the shared datastore bindings keyed by storage requirement.
func (cs ClusterState) UsedSharedDStoreMap() map[StorageKey]int {
	m := make(map[StorageKey]int, len(cs.UsedSharedDStores))
	for _, b := range cs.UsedSharedDStores {
		m[StorageKey{VMID: b.VMID, ReqID: b.ReqID}] = b.DStoreID
	}
	return m
}

// PendingCount returns the number of VMs waiting for a first placement.
func (cs ClusterState) PendingCount() int {
	n := 0
	for _, vm := range cs.VMs {
		if vm.Pending() {
			n++
		}
	}
	return n
}

// TotalMemory returns the summed memory capacity of all hosts.
func (cs ClusterState) TotalMemory() Capacity {
	var c Capacity
	for _, h := range cs.Hosts {
		c.Total += h.Memory.Total
		c.Usage += h.Memory.Usage
	}
	return c
}

// TotalCPU returns the summed CPU capacity of all hosts.
func (cs ClusterState) TotalCPU() Capacity {
	var c Capacity
	for _, h := range cs.Hosts {
		c.Total += h.CPU.Total
		c.Usage += h.CPU.Usage
	}
	return c
}

// Validate checks capacities, id uniqueness and cross references.
func (cs ClusterState) Validate() error {
	hosts := make(map[int]bool, len(cs.Hosts))
	for _, h := range cs.Hosts {
		if hosts[h.ID] {
			return fmt.Errorf("%w: duplicate host %d", ErrInvalidState, h.ID)
		}
		hosts[h.ID] = true
		if err := h.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
	}

	dstores := make(map[int]bool, len(cs.DStores))
	for _, d := range cs.DStores {
		if dstores[d.ID] {
			return fmt.Errorf("%w: duplicate datastore %d", ErrInvalidState, d.ID)
		}
		dstores[d.ID] = true
		if err := d.Size.Validate(); err != nil {
			return fmt.Errorf("%w: datastore %d: %w", ErrInvalidState, d.ID, err)
		}
	}

	for _, v := range cs.VNets {
		if v.FreeIPs < 0 {
			return fmt.Errorf("%w: vnet %d has negative free addresses", ErrInvalidState, v.ID)
		}
	}

	vms := make(map[int]VMRequirements, len(cs.VMs))
	for _, vm := range cs.VMs {
		if _, ok := vms[vm.ID]; ok {
			return fmt.Errorf("%w: duplicate vm %d", ErrInvalidState, vm.ID)
		}
		if !vm.State.Valid() {
			return fmt.Errorf("%w: vm %d has unknown state %q", ErrInvalidState, vm.ID, vm.State)
		}
		if vm.Memory < 0 || vm.CPURatio < 0 {
			return fmt.Errorf("%w: vm %d has negative demand", ErrInvalidState, vm.ID)
		}
		vms[vm.ID] = vm
	}

	for _, vm := range cs.VMs {
		hostID, placed := cs.CurrentPlacement[vm.ID]
		if vm.Pending() {
			continue
		}
		if !placed {
			return fmt.Errorf("%w: vm %d is %s but has no current host", ErrInvalidState, vm.ID, vm.State)
		}
		if !hosts[hostID] {
			return fmt.Errorf("%w: vm %d is placed on unknown host %d", ErrInvalidState, vm.ID, hostID)
		}
	}

	affined := make(map[int]int)
	for _, g := range cs.Groups {
		for _, id := range g.VMIDs {
			if _, ok := vms[id]; !ok {
				return fmt.Errorf("%w: group %d references unknown vm %d", ErrInvalidState, g.ID, id)
			}
			if !g.Affined {
				continue
			}
			if other, ok := affined[id]; ok && other != g.ID {
				return fmt.Errorf("%w: vm %d belongs to affined groups %d and %d", ErrInvalidState, id, other, g.ID)
			}
			affined[id] = g.ID
		}
	}

	for _, b := range cs.UsedHostDStores {
		if _, ok := vms[b.VMID]; !ok {
			return fmt.Errorf("%w: host datastore binding for unknown vm %d", ErrInvalidState, b.VMID)
		}
		if !hosts[b.HostID] {
			return fmt.Errorf("%w: host datastore binding on unknown host %d", ErrInvalidState, b.HostID)
		}
	}
	for _, b := range cs.UsedSharedDStores {
		if _, ok := vms[b.VMID]; !ok {
			return fmt.Errorf("%w: shared datastore binding for unknown vm %d", ErrInvalidState, b.VMID)
		}
		if !dstores[b.DStoreID] {
			return fmt.Errorf("%w: shared datastore binding on unknown datastore %d", ErrInvalidState, b.DStoreID)
		}
	}
	return nil
}
