// Package matching computes, per VM or affined group, the hosts, PCI devices,
// host disks, shared datastores and virtual networks that could serve it.
package matching

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/guimove/vmplacer/internal/model"
)

// Matcher matches VM requirements against host, datastore and vnet capacities.
// With free set, capacities are compared against what is left unused;
// otherwise against the full totals.
type Matcher struct {
	free    bool
	hosts   []model.HostCapacity
	hostIdx map[int]int
	dstores map[int]model.DStoreCapacity
	vnets   map[int]model.VNetCapacity
}

// NewMatcher creates a matcher over the given capacities.
func NewMatcher(
	hosts map[int]model.HostCapacity,
	dstores map[int]model.DStoreCapacity,
	vnets map[int]model.VNetCapacity,
	free bool,
) *Matcher {
	m := &Matcher{
		free:    free,
		hosts:   make([]model.HostCapacity, 0, len(hosts)),
		hostIdx: make(map[int]int, len(hosts)),
		dstores: dstores,
		vnets:   vnets,
	}
	for _, h := range hosts {
		m.hosts = append(m.hosts, h)
	}
	sort.Slice(m.hosts, func(i, j int) bool { return m.hosts[i].ID < m.hosts[j].ID })
	for i, h := range m.hosts {
		m.hostIdx[h.ID] = i
	}
	return m
}

// Free reports whether the matcher uses the free-capacity view.
func (m *Matcher) Free() bool {
	return m.free
}

// PCIDeviceMatch is one device of one host that can serve one PCI requirement of a VM.
type PCIDeviceMatch struct {
	VMID         int
	ReqIndex     int // index into the VM's PCIDevices
	Requirement  model.PCIDeviceRequirement
	HostID       int
	ShortAddress string
}

// HostMatches lists the candidate hosts, ordered by id, and the PCI devices
// matching on those hosts.
type HostMatches struct {
	Hosts      []int
	PCIDevices []PCIDeviceMatch
}

// FindHostMatches returns the hosts able to run vm. No match is not an error.
func (m *Matcher) FindHostMatches(vm model.VMRequirements) HostMatches {
	var clusters mapset.Set[int]
	if vm.Pending() && len(vm.NICMatches) > 0 {
		clusters = m.nicClusters(vm)
	}
	var allowed mapset.Set[int]
	if vm.HostIDs != nil {
		allowed = mapset.NewSet(vm.HostIDs...)
	}

	var out HostMatches
	for _, h := range m.hosts {
		if clusters != nil && !clusters.Contains(h.ClusterID) {
			continue
		}
		if allowed != nil && !allowed.Contains(h.ID) {
			continue
		}
		if vm.CPURatio > h.CPU.Available(m.free) || vm.Memory > h.Memory.Available(m.free) {
			continue
		}
		devs, ok := m.matchPCI(vm, h)
		if !ok {
			continue
		}
		out.Hosts = append(out.Hosts, h.ID)
		out.PCIDevices = append(out.PCIDevices, devs...)
	}
	return out
}

// nicClusters returns the clusters reachable by every NIC of vm: the
// intersection over NICs of the union of the matched vnets' clusters.
func (m *Matcher) nicClusters(vm model.VMRequirements) mapset.Set[int] {
	var out mapset.Set[int]
	for _, nic := range vm.NICIDs() {
		reachable := mapset.NewSet[int]()
		for _, vnetID := range vm.NICMatches[nic] {
			if vnet, ok := m.vnets[vnetID]; ok {
				reachable.Append(vnet.ClusterIDs...)
			}
		}
		if out == nil {
			out = reachable
		} else {
			out = out.Intersect(reachable)
		}
	}
	return out
}

// matchPCI returns the devices of h matching vm's PCI requirements. It
// reports false when any requirement has no matching device.
func (m *Matcher) matchPCI(vm model.VMRequirements, h model.HostCapacity) ([]PCIDeviceMatch, bool) {
	var out []PCIDeviceMatch
	for idx, req := range vm.PCIDevices {
		found := false
		if req.ShortAddress != "" {
			dev, ok := h.PCIDevice(req.ShortAddress)
			if ok && m.pciUsable(vm, dev) {
				out = append(out, newPCIMatch(vm.ID, idx, req, h.ID, dev))
				found = true
			}
		} else {
			for _, dev := range h.PCIDevices {
				if req.Matches(dev) && m.pciUsable(vm, dev) {
					out = append(out, newPCIMatch(vm.ID, idx, req, h.ID, dev))
					found = true
				}
			}
		}
		if !found {
			return nil, false
		}
	}
	return out, true
}

func (m *Matcher) pciUsable(vm model.VMRequirements, dev model.PCIDevice) bool {
	return !m.free || !dev.Assigned() || *dev.VMID == vm.ID
}

func newPCIMatch(vmID, idx int, req model.PCIDeviceRequirement, hostID int, dev model.PCIDevice) PCIDeviceMatch {
	return PCIDeviceMatch{
		VMID:         vmID,
		ReqIndex:     idx,
		Requirement:  req,
		HostID:       hostID,
		ShortAddress: dev.ShortAddress,
	}
}

// VNetCandidates returns, per NIC of vm, the known vnets with at least one free address.
func (m *Matcher) VNetCandidates(vm model.VMRequirements) map[int][]int {
	out := make(map[int][]int, len(vm.NICMatches))
	for _, nic := range vm.NICIDs() {
		ids := mapset.NewSet[int]()
		for _, id := range vm.NICMatches[nic] {
			if vnet, ok := m.vnets[id]; ok && vnet.FreeIPs > 0 {
				ids.Add(id)
			}
		}
		out[nic] = mapset.Sorted(ids)
	}
	return out
}
