package simulation

import (
	"sort"
	"time"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

// StatusOf returns the solver status of model-based mappers and "heuristic" otherwise.
func StatusOf(m mapper.Mapper) string {
	if s, ok := m.(interface{ Status() milp.Status }); ok {
		return s.Status().String()
	}
	return "heuristic"
}

// CurrentPlacement expresses the running VMs of in as a placement.
func CurrentPlacement(in mapper.Input) mapper.Placement {
	p := make(mapper.Placement, len(in.VMs))
	for _, id := range in.SortedVMIDs() {
		host, ok := in.CurrentPlacement[id]
		if !ok || in.VMs[id].Pending() {
			p[id] = nil
			continue
		}
		alloc := &model.Allocation{VMID: id, HostID: host}
		for key, disk := range in.UsedHostDStores {
			if key.VMID == id {
				if alloc.HostDStoreIDs == nil {
					alloc.HostDStoreIDs = make(map[int]int)
				}
				alloc.HostDStoreIDs[key.ReqID] = disk.DiskID
			}
		}
		for key, ds := range in.UsedSharedDStores {
			if key.VMID == id {
				if alloc.SharedDStoreIDs == nil {
					alloc.SharedDStoreIDs = make(map[int]int)
				}
				alloc.SharedDStoreIDs[key.ReqID] = ds
			}
		}
		p[id] = alloc
	}
	return p
}

// Baseline returns the result of keeping every VM where it runs, or nil when
// all VMs are pending.
func Baseline(state model.ClusterState) *model.PlacementResult {
	in := mapper.NewInput(state, mapper.Pack())
	if in.AllPending() {
		return nil
	}
	current := BuildResult("current", "current", "", CurrentPlacement(in), in, 0)
	return &current
}

// BuildResult computes the per-host load and aggregate metrics of a placement.
func BuildResult(
	scenario, mapperName, status string,
	p mapper.Placement,
	in mapper.Input,
	duration time.Duration,
) model.PlacementResult {
	free := in.AllPending() && !in.Preemptive
	stats := mapper.Summarize(p, in.CurrentPlacement)
	pr := model.PlacementResult{
		Scenario:   scenario,
		Mapper:     mapperName,
		Criteria:   in.Criteria.String(),
		Status:     status,
		HostsUsed:  stats.HostsUsed,
		Migrations: stats.Migrations,
		Duration:   duration,
	}

	hosts := make(map[int]*model.HostUtilization, len(in.Hosts))
	for _, id := range in.SortedHostIDs() {
		h := in.Hosts[id]
		hu := &model.HostUtilization{
			HostID:    id,
			ClusterID: h.ClusterID,
			Memory:    model.Capacity{Total: h.Memory.Total},
			CPU:       model.Capacity{Total: h.CPU.Total},
		}
		if free {
			hu.Memory.Usage = h.Memory.Usage
			hu.CPU.Usage = h.CPU.Usage
		}
		hosts[id] = hu
	}

	for _, id := range in.SortedVMIDs() {
		alloc := p[id]
		if alloc == nil {
			pr.Pending = append(pr.Pending, id)
			continue
		}
		pr.Allocations = append(pr.Allocations, *alloc)
		hu, ok := hosts[alloc.HostID]
		if !ok {
			continue
		}
		vm := in.VMs[id]
		hu.VMIDs = append(hu.VMIDs, id)
		if cur, ok := in.CurrentPlacement[id]; ok && cur != alloc.HostID {
			hu.MigratedIn = append(hu.MigratedIn, id)
		}
		hu.Memory.Usage += vm.Memory
		hu.CPU.Usage += vm.CPURatio
	}

	var used []model.HostUtilization
	var memSum, cpuSum float64
	for _, id := range in.SortedHostIDs() {
		hu := hosts[id]
		hu.MemUtilization = hu.Memory.Utilization()
		hu.CPUUtilization = hu.CPU.Utilization()
		pr.Hosts = append(pr.Hosts, *hu)
		if hu.Used() {
			used = append(used, *hu)
			memSum += hu.MemUtilization
			cpuSum += hu.CPUUtilization
		}
	}
	sort.Ints(pr.Pending)

	if n := float64(len(used)); n > 0 {
		pr.AvgMemUtilization = memSum / n
		pr.AvgCPUUtilization = cpuSum / n
	}
	pr.Utilization = AnalyzeUtilization(used, len(pr.Pending))
	return pr
}
