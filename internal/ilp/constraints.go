package ilp

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

func (o *Optimizer) buildConstraints() {
	o.assignmentConstraints()
	o.capacityConstraints()
	o.commitmentConstraints()
	o.affinityConstraints()
	o.antiAffinityConstraints()
	o.pciConstraints()
	o.storageConstraints()
	o.networkConstraints()
	o.clusterConstraints()
	o.migrationConstraints()
	o.balanceConstraints()
}

func (o *Optimizer) assignSum(vmID int, hosts []int) milp.Expr {
	terms := make([]milp.Expr, 0, len(hosts))
	for _, h := range hosts {
		terms = append(terms, o.assign[vmHostKey{VMID: vmID, HostID: h}])
	}
	return milp.Sum(terms...)
}

// assignmentConstraints: every VM, or affined group, is on exactly one host or pending.
func (o *Optimizer) assignmentConstraints() {
	m := o.model
	for _, gp := range o.groups {
		terms := make([]milp.Expr, 0, len(gp.hosts)+1)
		for _, h := range gp.hosts {
			terms = append(terms, o.groupAssign[groupHostKey{GroupID: gp.id, HostID: h}])
		}
		terms = append(terms, o.groupPending[gp.id])
		m.AddConstraint(fmt.Sprintf("assign[group=%d]", gp.id), milp.Sum(terms...), milp.Equal, milp.Const(1))
	}
	for _, id := range o.vmIDs {
		p := o.plans[id]
		if p.aliased {
			continue
		}
		lhs := o.assignSum(id, p.hosts).Plus(o.pending[id])
		m.AddConstraint(fmt.Sprintf("assign[vm=%d]", id), lhs, milp.Equal, milp.Const(1))
	}
}

// capacityConstraints: memory and CPU demand on a host fit its capacity when the host is used.
func (o *Optimizer) capacityConstraints() {
	m := o.model
	for _, h := range o.hostIDs {
		host := o.in.Hosts[h]
		var mem, cpu []milp.Expr
		for _, id := range o.vmIDs {
			x, ok := o.assign[vmHostKey{VMID: id, HostID: h}]
			if !ok {
				continue
			}
			vm := o.plans[id].vm
			mem = append(mem, x.Scale(vm.Memory))
			cpu = append(cpu, x.Scale(vm.CPURatio))
		}
		y := o.hostUsed[h]
		m.AddConstraint(fmt.Sprintf("memory[host=%d]", h), milp.Sum(mem...), milp.LessEq, y.Scale(host.Memory.Available(o.free)))
		m.AddConstraint(fmt.Sprintf("cpu[host=%d]", h), milp.Sum(cpu...), milp.LessEq, y.Scale(host.CPU.Available(o.free)))
	}
}

// commitmentConstraints: a VM can only be assigned to a used host.
func (o *Optimizer) commitmentConstraints() {
	m := o.model
	for _, gp := range o.groups {
		for _, h := range gp.hosts {
			k := groupHostKey{GroupID: gp.id, HostID: h}
			m.AddConstraint(fmt.Sprintf("commit[group=%d,host=%d]", gp.id, h), o.groupAssign[k], milp.LessEq, o.hostUsed[h])
		}
	}
	for _, id := range o.vmIDs {
		p := o.plans[id]
		if p.aliased {
			continue
		}
		for _, h := range p.hosts {
			k := vmHostKey{VMID: id, HostID: h}
			m.AddConstraint(fmt.Sprintf("commit[vm=%d,host=%d]", id, h), o.assign[k], milp.LessEq, o.hostUsed[h])
		}
	}
}

// affinityConstraints: pending members of a partially placed affined group
// join the host the group ends up on.
func (o *Optimizer) affinityConstraints() {
	m := o.model
	for _, gp := range o.groups {
		for _, id := range gp.pending {
			for _, h := range o.plans[id].hosts {
				x := o.assign[vmHostKey{VMID: id, HostID: h}]
				g := o.groupAssign[groupHostKey{GroupID: gp.id, HostID: h}]
				m.AddConstraint(fmt.Sprintf("affined[group=%d,vm=%d,host=%d]", gp.id, id, h), x, milp.LessEq, g)
			}
		}
	}
}

// antiAffinityConstraints: at most one member of an anti-affined group per host.
func (o *Optimizer) antiAffinityConstraints() {
	m := o.model
	for _, gid := range o.in.SortedGroupIDs() {
		g := o.in.Groups[gid]
		if g.Affined {
			continue
		}
		members := mapset.Sorted(mapset.NewSet(g.VMIDs...))
		if len(members) < 2 {
			continue
		}
		for _, h := range o.hostIDs {
			var terms []milp.Expr
			for _, id := range members {
				if x, ok := o.assign[vmHostKey{VMID: id, HostID: h}]; ok {
					terms = append(terms, x)
				}
			}
			if len(terms) < 2 {
				continue
			}
			m.AddConstraint(fmt.Sprintf("anti_affined[group=%d,host=%d]", gid, h), milp.Sum(terms...), milp.LessEq, milp.Const(1))
		}
	}
}

// pciConstraints: each PCI requirement of a placed VM gets exactly one device
// on its host and each device serves at most one requirement.
func (o *Optimizer) pciConstraints() {
	m := o.model
	perReq := newExprIndex[pciReqKey]()
	perDevice := newExprIndex[deviceKey]()
	for _, k := range o.pciKeys {
		z := o.pci[k]
		x := o.assign[vmHostKey{VMID: k.VMID, HostID: k.HostID}]
		m.AddConstraint(fmt.Sprintf("pci_host[vm=%d,req=%d,host=%d,addr=%s]", k.VMID, k.ReqIndex, k.HostID, k.Address), z, milp.LessEq, x)
		perReq.add(pciReqKey{VMID: k.VMID, ReqIndex: k.ReqIndex}, z)
		perDevice.add(deviceKey{HostID: k.HostID, Address: k.Address}, z)
	}
	for _, id := range o.vmIDs {
		p := o.plans[id]
		if len(p.hosts) == 0 {
			continue
		}
		for idx := range p.vm.PCIDevices {
			sum, _ := perReq.get(pciReqKey{VMID: id, ReqIndex: idx})
			m.AddConstraint(fmt.Sprintf("pci[vm=%d,req=%d]", id, idx), sum, milp.Equal, milp.Const(1).Minus(o.pending[id]))
		}
	}
	perDevice.each(func(k deviceKey, sum milp.Expr) {
		m.AddConstraint(fmt.Sprintf("pci_device[host=%d,addr=%s]", k.HostID, k.Address), sum, milp.LessEq, milp.Const(1))
	})
}

// storageConstraints: each disk request of a placed VM is served exactly once,
// host disks only on the VM's host, a VM that stays keeps its current host
// disk, and no disk or datastore is overfilled.
func (o *Optimizer) storageConstraints() {
	m := o.model
	perReq := newExprIndex[model.StorageKey]()
	perDisk := newExprIndex[hostDiskKey]()
	perDStore := newExprIndex[int]()

	for _, k := range o.hdsKeys {
		v := o.hostDStore[k]
		size := o.plans[k.VMID].vm.Storage[k.ReqID].Size
		x := o.assign[vmHostKey{VMID: k.VMID, HostID: k.HostID}]
		m.AddConstraint(fmt.Sprintf("dstore_host[vm=%d,req=%d,host=%d,disk=%d]", k.VMID, k.ReqID, k.HostID, k.DiskID), v, milp.LessEq, x)
		perReq.add(model.StorageKey{VMID: k.VMID, ReqID: k.ReqID}, v)
		perDisk.add(hostDiskKey{HostID: k.HostID, DiskID: k.DiskID}, v.Scale(size))
	}
	for _, k := range o.sdsKeys {
		v := o.sharedDStore[k]
		size := o.plans[k.VMID].vm.Storage[k.ReqID].Size
		perReq.add(model.StorageKey{VMID: k.VMID, ReqID: k.ReqID}, v)
		perDStore.add(k.DStoreID, v.Scale(size))
	}

	for _, id := range o.vmIDs {
		p := o.plans[id]
		if len(p.hosts) == 0 {
			continue
		}
		for _, reqID := range p.vm.StorageIDs() {
			sum, _ := perReq.get(model.StorageKey{VMID: id, ReqID: reqID})
			m.AddConstraint(fmt.Sprintf("dstore[vm=%d,req=%d]", id, reqID), sum, milp.Equal, milp.Const(1).Minus(o.pending[id]))
		}
		o.pinHostDisks(p)
	}

	perDisk.each(func(k hostDiskKey, sum milp.Expr) {
		capacity := o.in.Hosts[k.HostID].Disks[k.DiskID].Available(o.free)
		m.AddConstraint(fmt.Sprintf("disk_capacity[host=%d,disk=%d]", k.HostID, k.DiskID), sum, milp.LessEq, milp.Const(capacity))
	})
	perDStore.each(func(id int, sum milp.Expr) {
		capacity := o.in.DStores[id].Size.Available(o.free)
		m.AddConstraint(fmt.Sprintf("dstore_capacity[dstore=%d]", id), sum, milp.LessEq, milp.Const(capacity))
	})
}

// pinHostDisks keeps a placed VM's requests on their current host disk when
// the VM stays on that host.
func (o *Optimizer) pinHostDisks(p *vmPlan) {
	if p.vm.Pending() {
		return
	}
	for _, reqID := range p.vm.StorageIDs() {
		used, ok := o.in.UsedHostDStores[model.StorageKey{VMID: p.vm.ID, ReqID: reqID}]
		if !ok || used.HostID != o.in.CurrentPlacement[p.vm.ID] {
			continue
		}
		x, ok := o.assign[vmHostKey{VMID: p.vm.ID, HostID: used.HostID}]
		if !ok {
			continue
		}
		k := hostDStoreKey{VMID: p.vm.ID, ReqID: reqID, HostID: used.HostID, DiskID: used.DiskID}
		v, ok := o.hostDStore[k]
		if !ok {
			o.logger.Debug("current host disk is not a candidate, not pinning",
				zap.Int("vm_id", p.vm.ID),
				zap.Int("req_id", reqID),
				zap.Int("host_id", used.HostID),
				zap.Int("disk_id", used.DiskID))
			continue
		}
		o.model.AddConstraint(fmt.Sprintf("pin[vm=%d,req=%d]", p.vm.ID, reqID), v, milp.Equal, x)
	}
}

// networkConstraints: each NIC of a placed pending VM gets one vnet, vnets do
// not run out of addresses, and unless sharing is allowed a VM uses a vnet once.
func (o *Optimizer) networkConstraints() {
	m := o.model
	perNIC := newExprIndex[nicKey]()
	perVNet := newExprIndex[int]()
	perVMVNet := newExprIndex[vmVNetKey]()
	for _, k := range o.vnetKeys {
		v := o.vnet[k]
		perNIC.add(nicKey{VMID: k.VMID, NICID: k.NICID}, v)
		perVNet.add(k.VNetID, v)
		if !o.plans[k.VMID].vm.ShareVNets {
			perVMVNet.add(vmVNetKey{VMID: k.VMID, VNetID: k.VNetID}, v)
		}
	}

	for _, id := range o.vmIDs {
		p := o.plans[id]
		if !p.vm.Pending() || len(p.hosts) == 0 {
			continue
		}
		for _, nic := range p.vm.NICIDs() {
			sum, _ := perNIC.get(nicKey{VMID: id, NICID: nic})
			m.AddConstraint(fmt.Sprintf("nic[vm=%d,nic=%d]", id, nic), sum, milp.Equal, milp.Const(1).Minus(o.pending[id]))
		}
	}
	perVNet.each(func(id int, sum milp.Expr) {
		m.AddConstraint(fmt.Sprintf("vnet_leases[vnet=%d]", id), sum, milp.LessEq, milp.Const(float64(o.in.VNets[id].FreeIPs)))
	})
	perVMVNet.each(func(k vmVNetKey, sum milp.Expr) {
		m.AddConstraint(fmt.Sprintf("vnet_exclusive[vm=%d,vnet=%d]", k.VMID, k.VNetID), sum, milp.LessEq, milp.Const(1))
	})
}

// clusterConstraints: shared datastores and vnets must be reachable from the
// cluster of the VM's host.
func (o *Optimizer) clusterConstraints() {
	m := o.model
	inCluster := newExprIndex[vmClusterKey]()
	for _, id := range o.vmIDs {
		for _, h := range o.plans[id].hosts {
			k := vmClusterKey{VMID: id, ClusterID: o.in.Hosts[h].ClusterID}
			inCluster.add(k, o.assign[vmHostKey{VMID: id, HostID: h}])
		}
	}
	reach := func(vmID int, clusters []int) milp.Expr {
		var terms []milp.Expr
		for _, c := range mapset.Sorted(mapset.NewSet(clusters...)) {
			if e, ok := inCluster.get(vmClusterKey{VMID: vmID, ClusterID: c}); ok {
				terms = append(terms, e)
			}
		}
		return milp.Sum(terms...)
	}

	for _, k := range o.sdsKeys {
		clusters := o.in.DStores[k.DStoreID].ClusterIDs
		m.AddConstraint(fmt.Sprintf("dstore_cluster[vm=%d,req=%d,dstore=%d]", k.VMID, k.ReqID, k.DStoreID),
			o.sharedDStore[k], milp.LessEq, reach(k.VMID, clusters))
	}
	for _, k := range o.vnetKeys {
		clusters := o.in.VNets[k.VNetID].ClusterIDs
		m.AddConstraint(fmt.Sprintf("vnet_cluster[vm=%d,nic=%d,vnet=%d]", k.VMID, k.NICID, k.VNetID),
			o.vnet[k], milp.LessEq, reach(k.VMID, clusters))
	}
}

// migrationConstraints caps the number of migrations.
func (o *Optimizer) migrationConstraints() {
	if o.in.AllowedMigrations == nil {
		return
	}
	o.model.AddConstraint("migrations", o.totalMigrations(), milp.LessEq, milp.Const(float64(*o.in.AllowedMigrations)))
}

func (o *Optimizer) totalMigrations() milp.Expr {
	var terms []milp.Expr
	for _, id := range o.vmIDs {
		if e, ok := o.nMigr[id]; ok {
			terms = append(terms, e)
		}
	}
	return milp.Sum(terms...)
}

// balanceConstraints: balance[name] bounds the load fraction of every host
// and, when configured, is itself bounded.
func (o *Optimizer) balanceConstraints() {
	m := o.model
	for _, name := range o.balanceIDs {
		b := o.balance[name]
		for _, h := range o.in.SortedHostIDs() {
			total := o.hostTotal(name, h)
			if total <= 0 {
				continue
			}
			terms := []milp.Expr{milp.Const(o.hostBase(name, h))}
			for _, id := range o.vmIDs {
				if x, ok := o.assign[vmHostKey{VMID: id, HostID: h}]; ok {
					terms = append(terms, x.Scale(o.demand(name, id)))
				}
			}
			m.AddConstraint(fmt.Sprintf("balance[%s,host=%d]", name, h), milp.Sum(terms...), milp.LessEq, b.Scale(total))
		}
		if bound, ok := o.in.BalanceConstraints[name]; ok {
			m.AddConstraint(fmt.Sprintf("balance_bound[%s]", name), b, milp.LessEq, milp.Const(bound))
		}
	}
}
