package matching

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/guimove/vmplacer/internal/model"
)

// DStoreMatches lists where one storage requirement of a VM can live.
type DStoreMatches struct {
	VMID        int
	Requirement model.DStoreRequirement

	// HostDStores maps host id to the usable local disk ids, ascending.
	HostDStores map[int][]int

	// SharedDStores lists the usable shared datastore ids, ascending.
	SharedDStores []int
}

// Empty reports whether the requirement has no candidate at all.
func (d DStoreMatches) Empty() bool {
	return len(d.HostDStores) == 0 && len(d.SharedDStores) == 0
}

// FindStorageMatches returns, per storage requirement id of vm, the host disks
// (on the given hosts) or shared datastores with enough room.
func (m *Matcher) FindStorageMatches(vm model.VMRequirements, hostIDs []int) map[int]DStoreMatches {
	out := make(map[int]DStoreMatches, len(vm.Storage))
	for _, reqID := range vm.StorageIDs() {
		req := vm.Storage[reqID]
		dm := DStoreMatches{VMID: vm.ID, Requirement: req}
		if req.AllowHostDStores {
			dm.HostDStores = m.hostDisks(req, hostIDs)
		} else {
			dm.SharedDStores = m.sharedDStores(req)
		}
		out[reqID] = dm
	}
	return out
}

func (m *Matcher) hostDisks(req model.DStoreRequirement, hostIDs []int) map[int][]int {
	out := make(map[int][]int)
	for _, hostID := range hostIDs {
		idx, ok := m.hostIdx[hostID]
		if !ok {
			continue
		}
		h := m.hosts[idx]

		candidates := h.DiskIDs()
		if req.HostDStoreIDs != nil {
			allowed := mapset.NewSet(req.HostDStoreIDs[hostID]...)
			candidates = filterInts(candidates, func(id int) bool { return allowed.Contains(id) })
		}
		disks := filterInts(candidates, func(id int) bool {
			return req.Size <= h.Disks[id].Available(m.free)
		})
		if len(disks) > 0 {
			out[hostID] = disks
		}
	}
	return out
}

func (m *Matcher) sharedDStores(req model.DStoreRequirement) []int {
	ids := mapset.NewSet[int]()
	for _, id := range req.SharedDStoreIDs {
		ds, ok := m.dstores[id]
		if ok && req.Size <= ds.Size.Available(m.free) {
			ids.Add(id)
		}
	}
	return mapset.Sorted(ids)
}

func filterInts(ids []int, keep func(int) bool) []int {
	var out []int
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}
