package ilp

import (
	"fmt"
	"math"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/milp"
)

// buildVariables creates every variable family in sorted key order.
// Fixed indicators are constant expressions instead of variables.
func (o *Optimizer) buildVariables() {
	m := o.model
	o.hostUsed = make(map[int]milp.Expr)
	o.assign = make(map[vmHostKey]milp.Expr)
	o.groupAssign = make(map[groupHostKey]milp.Expr)
	o.pending = make(map[int]milp.Expr)
	o.groupPending = make(map[int]milp.Expr)
	o.pci = make(map[pciKey]milp.Expr)
	o.hostDStore = make(map[hostDStoreKey]milp.Expr)
	o.sharedDStore = make(map[sharedDStoreKey]milp.Expr)
	o.vnet = make(map[vnetKey]milp.Expr)
	o.migr = make(map[vmHostKey]milp.Expr)
	o.nMigr = make(map[int]milp.Expr)
	o.balance = make(map[string]milp.Expr)

	o.hostIDs = o.candidateHosts()
	for _, h := range o.hostIDs {
		o.hostUsed[h] = m.AddBinary(fmt.Sprintf("y[host=%d]", h))
	}

	for _, gp := range o.groups {
		for _, h := range gp.hosts {
			k := groupHostKey{GroupID: gp.id, HostID: h}
			o.groupAssign[k] = m.AddBinary(k.String())
		}
		switch {
		case len(gp.hosts) == 0:
			o.groupPending[gp.id] = milp.Const(1)
		case gp.placed:
			o.groupPending[gp.id] = milp.Const(0)
		default:
			o.groupPending[gp.id] = m.AddBinary(fmt.Sprintf("x_pend_vmg[group=%d]", gp.id))
		}
		for _, id := range gp.aliased {
			for _, h := range gp.hosts {
				o.assign[vmHostKey{VMID: id, HostID: h}] = o.groupAssign[groupHostKey{GroupID: gp.id, HostID: h}]
			}
			o.pending[id] = o.groupPending[gp.id]
		}
	}

	for _, id := range o.vmIDs {
		p := o.plans[id]
		if p.aliased {
			continue
		}
		for _, h := range p.hosts {
			k := vmHostKey{VMID: id, HostID: h}
			o.assign[k] = m.AddBinary(k.String())
		}
		switch {
		case len(p.hosts) == 0:
			o.pending[id] = milp.Const(1)
		case !p.vm.Pending():
			o.pending[id] = milp.Const(0)
		default:
			o.pending[id] = m.AddBinary(fmt.Sprintf("x_pend[vm=%d]", id))
		}
	}

	for _, id := range o.vmIDs {
		p := o.plans[id]
		if len(p.hosts) == 0 {
			continue
		}
		o.addPCIVariables(p)
		o.addStorageVariables(p)
		o.addNetworkVariables(p)
		o.addMigrationVariables(p)
	}

	o.addBalanceVariables()
}

func (o *Optimizer) addPCIVariables(p *vmPlan) {
	for _, pm := range p.pci {
		k := pciKey{VMID: p.vm.ID, ReqIndex: pm.ReqIndex, HostID: pm.HostID, Address: pm.ShortAddress}
		if _, ok := o.pci[k]; ok {
			continue
		}
		o.pci[k] = o.model.AddBinary(k.String())
		o.pciKeys = append(o.pciKeys, k)
	}
}

func (o *Optimizer) addStorageVariables(p *vmPlan) {
	for _, reqID := range p.vm.StorageIDs() {
		if ds, ok := p.boundSDS[reqID]; ok {
			k := sharedDStoreKey{VMID: p.vm.ID, ReqID: reqID, DStoreID: ds}
			o.sharedDStore[k] = milp.Const(1)
			o.sdsKeys = append(o.sdsKeys, k)
			continue
		}
		dm := p.storage[reqID]
		for _, h := range p.hosts {
			for _, disk := range dm.HostDStores[h] {
				k := hostDStoreKey{VMID: p.vm.ID, ReqID: reqID, HostID: h, DiskID: disk}
				o.hostDStore[k] = o.model.AddBinary(k.String())
				o.hdsKeys = append(o.hdsKeys, k)
			}
		}
		for _, ds := range dm.SharedDStores {
			k := sharedDStoreKey{VMID: p.vm.ID, ReqID: reqID, DStoreID: ds}
			o.sharedDStore[k] = o.model.AddBinary(k.String())
			o.sdsKeys = append(o.sdsKeys, k)
		}
	}
}

func (o *Optimizer) addNetworkVariables(p *vmPlan) {
	if !p.vm.Pending() {
		return
	}
	for _, nic := range p.vm.NICIDs() {
		for _, vnet := range p.vnets[nic] {
			k := vnetKey{VMID: p.vm.ID, NICID: nic, VNetID: vnet}
			o.vnet[k] = o.model.AddBinary(k.String())
			o.vnetKeys = append(o.vnetKeys, k)
		}
	}
}

// addMigrationVariables aliases the assignments of a placed VM to hosts other
// than its current one; their sum counts the VM's migration.
func (o *Optimizer) addMigrationVariables(p *vmPlan) {
	if p.vm.Pending() {
		return
	}
	current, ok := o.in.CurrentPlacement[p.vm.ID]
	if !ok {
		return
	}
	var terms []milp.Expr
	for _, h := range p.hosts {
		if h == current {
			continue
		}
		k := vmHostKey{VMID: p.vm.ID, HostID: h}
		o.migr[k] = o.assign[k]
		terms = append(terms, o.assign[k])
	}
	if len(terms) > 0 {
		o.nMigr[p.vm.ID] = milp.Sum(terms...)
	}
}

// balanceNames returns the balance names used by the criteria or the bounds, sorted.
func (o *Optimizer) balanceNames() []string {
	var out []string
	for _, name := range mapper.BalanceNames {
		_, weighted := o.in.Criteria.Weights[name]
		_, bounded := o.in.BalanceConstraints[name]
		if (o.in.Criteria.Policy == mapper.PolicyBalance && weighted) || bounded {
			out = append(out, name)
		}
	}
	return out
}

func (o *Optimizer) addBalanceVariables() {
	for _, name := range o.balanceNames() {
		hi := 1.0
		for _, h := range o.in.SortedHostIDs() {
			total := o.hostTotal(name, h)
			if total <= 0 {
				continue
			}
			load := o.hostBase(name, h)
			for _, id := range o.vmIDs {
				if _, ok := o.assign[vmHostKey{VMID: id, HostID: h}]; ok {
					load += o.demand(name, id)
				}
			}
			hi = math.Max(hi, load/total)
		}
		o.balance[name] = o.model.AddContinuous(fmt.Sprintf("balance[%s]", name), 0, hi)
		o.balanceIDs = append(o.balanceIDs, name)
	}
}

// demand returns what a VM consumes of the balanced resource.
func (o *Optimizer) demand(name string, vmID int) float64 {
	vm := o.plans[vmID].vm
	switch name {
	case mapper.BalanceCPUUsage:
		return vm.EffectiveCPUUsage()
	case mapper.BalanceCPURatio:
		return vm.CPURatio
	default:
		return vm.Memory
	}
}

func (o *Optimizer) hostTotal(name string, hostID int) float64 {
	h := o.in.Hosts[hostID]
	if name == mapper.BalanceMemory {
		return h.Memory.Total
	}
	return h.CPU.Total
}

// hostBase is the load already on a host that the model does not move.
// In the free view it is the current usage; in the total view every VM is
// re-accounted through its assignment variables.
func (o *Optimizer) hostBase(name string, hostID int) float64 {
	if !o.free {
		return 0
	}
	h := o.in.Hosts[hostID]
	if name == mapper.BalanceMemory {
		return h.Memory.Usage
	}
	return h.CPU.Usage
}
