package matching

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/guimove/vmplacer/internal/model"
)

// PCIOrigin maps a PCI requirement of an aggregate back to its member VM.
type PCIOrigin struct {
	VMID  int
	Index int
}

// Aggregate folds the VMs of an affined group into one synthetic requirement:
// demands are summed, PCI requirements concatenated, host restrictions
// intersected and NICs renumbered. The aggregate is PENDING only when every
// member is. The returned origins are indexed like the aggregate's PCI requirements.
func Aggregate(vms []model.VMRequirements) (model.VMRequirements, []PCIOrigin) {
	agg := model.VMRequirements{
		State:      model.VMPending,
		ShareVNets: true,
		NICMatches: make(map[int][]int),
	}
	if len(vms) > 0 {
		agg.ID = vms[0].ID
	}

	var (
		origins  []PCIOrigin
		usage    float64
		hasUsage bool
		hosts    mapset.Set[int]
		nextNIC  int
	)
	for _, vm := range vms {
		if !vm.Pending() {
			agg.State = model.VMRunning
		}
		agg.Memory += vm.Memory
		agg.CPURatio += vm.CPURatio
		usage += vm.EffectiveCPUUsage()
		hasUsage = hasUsage || vm.CPUUsage != nil

		for i, req := range vm.PCIDevices {
			agg.PCIDevices = append(agg.PCIDevices, req)
			origins = append(origins, PCIOrigin{VMID: vm.ID, Index: i})
		}

		if vm.HostIDs != nil {
			if hosts == nil {
				hosts = mapset.NewSet(vm.HostIDs...)
			} else {
				hosts = hosts.Intersect(mapset.NewSet(vm.HostIDs...))
			}
		}

		for _, nic := range vm.NICIDs() {
			agg.NICMatches[nextNIC] = append([]int(nil), vm.NICMatches[nic]...)
			nextNIC++
		}
	}
	if hasUsage {
		agg.CPUUsage = &usage
	}
	if hosts != nil {
		agg.HostIDs = mapset.Sorted(hosts)
		if agg.HostIDs == nil {
			agg.HostIDs = []int{}
		}
	}
	return agg, origins
}

// FindGroupMatches matches the given members of an affined group as a unit.
// PCI matches are attributed back to the member VM and its own requirement index.
// For groups mixing pending and placed VMs the caller passes the placed subset.
func (m *Matcher) FindGroupMatches(vms []model.VMRequirements) HostMatches {
	members := append([]model.VMRequirements(nil), vms...)
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	agg, origins := Aggregate(members)
	hm := m.FindHostMatches(agg)
	for i, pm := range hm.PCIDevices {
		o := origins[pm.ReqIndex]
		hm.PCIDevices[i].VMID = o.VMID
		hm.PCIDevices[i].ReqIndex = o.Index
	}
	return hm
}
