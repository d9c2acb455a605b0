package ilp

import (
	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

// decode turns the solver values into allocations. Pending VMs map to nil.
func (o *Optimizer) decode() mapper.Placement {
	on := func(e milp.Expr) bool {
		return e.Value(o.sol.Values) > 0.5
	}

	out := make(mapper.Placement, len(o.vmIDs))
	for _, id := range o.vmIDs {
		p := o.plans[id]
		out[id] = nil
		if on(o.pending[id]) {
			continue
		}
		for _, h := range p.hosts {
			if on(o.assign[vmHostKey{VMID: id, HostID: h}]) {
				out[id] = &model.Allocation{VMID: id, HostID: h}
				break
			}
		}
	}

	for _, k := range o.hdsKeys {
		alloc := out[k.VMID]
		if alloc == nil || alloc.HostID != k.HostID || !on(o.hostDStore[k]) {
			continue
		}
		if alloc.HostDStoreIDs == nil {
			alloc.HostDStoreIDs = make(map[int]int)
		}
		alloc.HostDStoreIDs[k.ReqID] = k.DiskID
	}
	for _, k := range o.sdsKeys {
		alloc := out[k.VMID]
		if alloc == nil || !on(o.sharedDStore[k]) {
			continue
		}
		if alloc.SharedDStoreIDs == nil {
			alloc.SharedDStoreIDs = make(map[int]int)
		}
		alloc.SharedDStoreIDs[k.ReqID] = k.DStoreID
	}
	for _, k := range o.vnetKeys {
		alloc := out[k.VMID]
		if alloc == nil || !on(o.vnet[k]) {
			continue
		}
		if alloc.NICs == nil {
			alloc.NICs = make(map[int]int)
		}
		alloc.NICs[k.NICID] = k.VNetID
	}
	return out
}
