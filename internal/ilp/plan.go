package ilp

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/matching"
	"github.com/guimove/vmplacer/internal/model"
)

// vmPlan holds the matching outcome for one VM.
type vmPlan struct {
	vm    model.VMRequirements
	hosts []int

	// group is the affined group id when the VM belongs to one.
	group    int
	inGroup  bool
	aliased  bool
	pci      []matching.PCIDeviceMatch
	storage  map[int]matching.DStoreMatches
	vnets    map[int][]int
	boundSDS map[int]int // storage req id -> shared datastore kept from the current placement
}

// groupPlan holds the matching outcome for one affined group.
type groupPlan struct {
	id      int
	hosts   []int
	aliased []int // members sharing the group's assignment variables
	pending []int // pending members of a partially placed group
	placed  bool  // at least one member is already running
}

// plan runs the matching engine for every VM and affined group and prunes
// hosts on which some storage or network requirement could never be met.
func (o *Optimizer) plan() {
	o.plans = make(map[int]*vmPlan, len(o.in.VMs))
	o.groups = nil

	for _, id := range o.vmIDs {
		vm := o.in.VMs[id]
		p := &vmPlan{vm: vm, boundSDS: o.boundShared(vm)}
		if vm.Pending() {
			p.vnets = o.matcher.VNetCandidates(vm)
		}
		o.plans[id] = p
	}

	for _, gid := range o.in.SortedGroupIDs() {
		g := o.in.Groups[gid]
		if !g.Affined {
			continue
		}
		o.groups = append(o.groups, o.planGroup(g))
	}

	for _, id := range o.vmIDs {
		p := o.plans[id]
		if p.inGroup {
			continue
		}
		hm := o.matcher.FindHostMatches(p.vm)
		o.finishPlan(p, hm, nil)
	}
}

func (o *Optimizer) planGroup(g model.VMGroup) *groupPlan {
	gp := &groupPlan{id: g.ID}
	members := mapset.Sorted(mapset.NewSet(g.VMIDs...))
	if len(members) == 0 {
		return gp
	}

	var placed, pending []model.VMRequirements
	for _, id := range members {
		p := o.plans[id]
		p.group, p.inGroup = g.ID, true
		if p.vm.Pending() {
			pending = append(pending, p.vm)
		} else {
			placed = append(placed, p.vm)
		}
	}
	gp.placed = len(placed) > 0

	unit := placed
	if !gp.placed {
		unit = pending
	}
	hm := o.matcher.FindGroupMatches(unit)

	// The group can only use hosts that are viable for every aliased member.
	hosts := hm.Hosts
	for _, vm := range unit {
		p := o.plans[vm.ID]
		p.storage = o.matcher.FindStorageMatches(vm, hosts)
		hosts = o.viableHosts(p, hosts)
	}
	gp.hosts = hosts
	restrict := mapset.NewSet(hosts...)

	for _, vm := range unit {
		p := o.plans[vm.ID]
		p.aliased = true
		gp.aliased = append(gp.aliased, vm.ID)
		o.finishPlan(p, hm, restrict)
	}

	if gp.placed {
		for _, vm := range pending {
			p := o.plans[vm.ID]
			gp.pending = append(gp.pending, vm.ID)
			o.finishPlan(p, o.matcher.FindHostMatches(vm), restrict)
		}
	}
	return gp
}

// finishPlan narrows the host matches to restrict (when not nil) and to the
// viable hosts, then keeps the PCI and storage matches on those hosts only.
func (o *Optimizer) finishPlan(p *vmPlan, hm matching.HostMatches, restrict mapset.Set[int]) {
	hosts := hm.Hosts
	if restrict != nil {
		hosts = slices.DeleteFunc(slices.Clone(hosts), func(h int) bool { return !restrict.Contains(h) })
	}
	p.storage = o.matcher.FindStorageMatches(p.vm, hosts)
	if !p.aliased {
		hosts = o.viableHosts(p, hosts)
	}
	p.hosts = hosts

	keep := mapset.NewSet(hosts...)
	p.pci = nil
	for _, m := range hm.PCIDevices {
		if m.VMID == p.vm.ID && keep.Contains(m.HostID) {
			p.pci = append(p.pci, m)
		}
	}
	for reqID, dm := range p.storage {
		for h := range dm.HostDStores {
			if !keep.Contains(h) {
				delete(dm.HostDStores, h)
			}
		}
		p.storage[reqID] = dm
	}

	if len(p.hosts) == 0 {
		o.logger.Debug("no candidate host, vm stays pending",
			zap.Int("vm_id", p.vm.ID),
			zap.String("state", string(p.vm.State)))
	}
}

// boundShared returns the shared datastores a placed VM already uses, per storage requirement.
func (o *Optimizer) boundShared(vm model.VMRequirements) map[int]int {
	if vm.Pending() {
		return nil
	}
	out := make(map[int]int)
	for _, reqID := range vm.StorageIDs() {
		ds, ok := o.in.UsedSharedDStores[model.StorageKey{VMID: vm.ID, ReqID: reqID}]
		if !ok {
			continue
		}
		if _, known := o.in.DStores[ds]; known {
			out[reqID] = ds
		}
	}
	return out
}

// viableHosts keeps the hosts where every storage requirement and, for
// pending VMs, every NIC has at least one candidate reachable from the host's cluster.
func (o *Optimizer) viableHosts(p *vmPlan, hosts []int) []int {
	var out []int
	for _, h := range hosts {
		cluster := o.in.Hosts[h].ClusterID
		if o.storageViable(p, h, cluster) && o.networkViable(p, cluster) {
			out = append(out, h)
		}
	}
	return out
}

func (o *Optimizer) storageViable(p *vmPlan, hostID, cluster int) bool {
	for _, reqID := range p.vm.StorageIDs() {
		if ds, ok := p.boundSDS[reqID]; ok {
			if !slices.Contains(o.in.DStores[ds].ClusterIDs, cluster) {
				return false
			}
			continue
		}
		dm := p.storage[reqID]
		if dm.Requirement.AllowHostDStores {
			if len(dm.HostDStores[hostID]) == 0 {
				return false
			}
			continue
		}
		reachable := slices.ContainsFunc(dm.SharedDStores, func(ds int) bool {
			return slices.Contains(o.in.DStores[ds].ClusterIDs, cluster)
		})
		if !reachable {
			return false
		}
	}
	return true
}

func (o *Optimizer) networkViable(p *vmPlan, cluster int) bool {
	if !p.vm.Pending() {
		return true
	}
	for _, nic := range p.vm.NICIDs() {
		reachable := slices.ContainsFunc(p.vnets[nic], func(vnet int) bool {
			return slices.Contains(o.in.VNets[vnet].ClusterIDs, cluster)
		})
		if !reachable {
			return false
		}
	}
	return true
}

// candidateHosts returns the union of all VMs' candidate hosts, ascending.
func (o *Optimizer) candidateHosts() []int {
	set := mapset.NewSet[int]()
	for _, p := range o.plans {
		set.Append(p.hosts...)
	}
	return mapset.Sorted(set)
}
