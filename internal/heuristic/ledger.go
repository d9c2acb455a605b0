package heuristic

import (
	"maps"

	"github.com/guimove/vmplacer/internal/model"
)

// ledger tracks the capacity left while VMs are placed one after another.
type ledger struct {
	mem     map[int]float64
	cpu     map[int]float64
	disks   map[model.HostDisk]float64
	dstores map[int]float64
	leases  map[int]int
	devices map[deviceRef]int // device -> vm holding it
	members map[int][]int     // host -> vms placed on it
	opened  map[int]bool
}

type deviceRef struct {
	HostID  int
	Address string
}

func newLedger(hosts map[int]model.HostCapacity, dstores map[int]model.DStoreCapacity, vnets map[int]model.VNetCapacity, free bool) *ledger {
	l := &ledger{
		mem:     make(map[int]float64, len(hosts)),
		cpu:     make(map[int]float64, len(hosts)),
		disks:   make(map[model.HostDisk]float64),
		dstores: make(map[int]float64, len(dstores)),
		leases:  make(map[int]int, len(vnets)),
		devices: make(map[deviceRef]int),
		members: make(map[int][]int),
		opened:  make(map[int]bool),
	}
	for id, h := range hosts {
		l.mem[id] = h.Memory.Available(free)
		l.cpu[id] = h.CPU.Available(free)
		for diskID, d := range h.Disks {
			l.disks[model.HostDisk{HostID: id, DiskID: diskID}] = d.Available(free)
		}
		if free && h.Memory.Usage > 0 {
			l.opened[id] = true
		}
		for _, dev := range h.PCIDevices {
			if free && dev.Assigned() {
				l.devices[deviceRef{HostID: id, Address: dev.ShortAddress}] = *dev.VMID
			}
		}
	}
	for id, ds := range dstores {
		l.dstores[id] = ds.Size.Available(free)
	}
	for id, vn := range vnets {
		l.leases[id] = vn.FreeIPs
	}
	return l
}

func (l *ledger) clone() *ledger {
	c := &ledger{
		mem:     maps.Clone(l.mem),
		cpu:     maps.Clone(l.cpu),
		disks:   maps.Clone(l.disks),
		dstores: maps.Clone(l.dstores),
		leases:  maps.Clone(l.leases),
		devices: maps.Clone(l.devices),
		members: make(map[int][]int, len(l.members)),
		opened:  maps.Clone(l.opened),
	}
	for h, vms := range l.members {
		c.members[h] = append([]int(nil), vms...)
	}
	return c
}

func (l *ledger) fits(hostID int, vm model.VMRequirements) bool {
	return vm.Memory <= l.mem[hostID] && vm.CPURatio <= l.cpu[hostID]
}

func (l *ledger) place(hostID int, vm model.VMRequirements) {
	l.mem[hostID] -= vm.Memory
	l.cpu[hostID] -= vm.CPURatio
	l.members[hostID] = append(l.members[hostID], vm.ID)
	l.opened[hostID] = true
}
