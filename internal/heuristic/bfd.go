// Package heuristic provides a fast best-fit-decreasing mapper. It honors the
// same placement rules as the ILP optimizer but makes greedy choices, so it
// trades optimality for speed on large clusters.
package heuristic

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/matching"
	"github.com/guimove/vmplacer/internal/metrics"
	"github.com/guimove/vmplacer/internal/model"
)

// Name identifies the mapper in logs, metrics and reports.
const Name = "bfd"

// BestFitDecreasing places the largest VMs first, each on the host that fits
// it best according to the criteria.
type BestFitDecreasing struct {
	in       mapper.Input
	free     bool
	logger   *zap.Logger
	recorder *metrics.Recorder
	matcher  *matching.Matcher

	mapped     bool
	placement  mapper.Placement
	migrations int
	duration   time.Duration
}

var _ mapper.Mapper = (*BestFitDecreasing)(nil)

// unit is a set of VMs placed together on one host.
type unit struct {
	vms   []model.VMRequirements
	hosts []int
	pci   map[int][]matching.PCIDeviceMatch // vm id -> matched devices
	// fixed pins the unit to the host of the placed members of its group.
	fixed *int
}

// New validates the input and prepares the mapper.
func New(in mapper.Input, opts ...mapper.Option) (*BestFitDecreasing, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	switch in.Criteria.Policy {
	case mapper.PolicyPack, mapper.PolicyMigrationCount, mapper.PolicyBalance:
	default:
		return nil, fmt.Errorf("%w %q: %w", mapper.ErrUnknownCriteria, in.Criteria.Policy, mapper.ErrNotImplemented)
	}
	o := mapper.ApplyOptions(opts...)
	free := in.AllPending() && !in.Preemptive
	return &BestFitDecreasing{
		in:       in,
		free:     free,
		logger:   o.Logger.With(zap.String("component", "bfd")),
		recorder: o.Recorder,
		matcher:  matching.NewMatcher(in.Hosts, in.DStores, in.VNets, free),
	}, nil
}

// NewMapper is New returning the Mapper interface.
func NewMapper(in mapper.Input, opts ...mapper.Option) (mapper.Mapper, error) {
	return New(in, opts...)
}

var _ mapper.Constructor = NewMapper

// Map implements mapper.Mapper.
func (b *BestFitDecreasing) Map(ctx context.Context) error {
	if b.mapped {
		return mapper.ErrAlreadyMapped
	}
	b.mapped = true
	start := time.Now()

	l := newLedger(b.in.Hosts, b.in.DStores, b.in.VNets, b.free)
	placement := make(mapper.Placement, len(b.in.VMs))
	for _, id := range b.in.SortedVMIDs() {
		placement[id] = nil
	}

	displaced := b.keepRunning(l, placement)
	units := b.units(placement, displaced)
	b.sortByDominance(units)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.placeUnit(l, placement, u)
	}

	b.placement = placement
	b.duration = time.Since(start)
	stats := mapper.Summarize(placement, b.in.CurrentPlacement)
	b.recorder.ObserveSolve(Name, "feasible", b.duration, 0)
	b.recorder.ObservePlacement(Name, stats.Placed, stats.Pending, stats.HostsUsed, stats.Migrations)
	b.logger.Info("placement computed",
		zap.String("criteria", b.in.Criteria.String()),
		zap.Bool("free_view", b.free),
		zap.Int("placed", stats.Placed),
		zap.Int("pending", stats.Pending),
		zap.Int("hosts_used", stats.HostsUsed),
		zap.Int("migrations", stats.Migrations),
		zap.Duration("duration", b.duration))
	return nil
}

// keepRunning leaves every placed VM on its current host when it still fits
// there and returns the ids of those that do not.
func (b *BestFitDecreasing) keepRunning(l *ledger, placement mapper.Placement) []int {
	var displaced []int
	for _, id := range b.in.SortedVMIDs() {
		vm := b.in.VMs[id]
		if vm.Pending() {
			continue
		}
		host, ok := b.in.CurrentPlacement[id]
		hm := b.matcher.FindHostMatches(vm)
		if ok && contains(hm.Hosts, host) {
			if alloc, ok := b.tryPlace(l, vm, host, pciOn(hm.PCIDevices, id), true); ok {
				placement[id] = alloc
				continue
			}
		}
		displaced = append(displaced, id)
	}
	return displaced
}

// units groups the VMs still to place: affined groups move together, the rest one by one.
func (b *BestFitDecreasing) units(placement mapper.Placement, displaced []int) []unit {
	var out []unit
	grouped := make(map[int]bool)
	for _, gid := range b.in.SortedGroupIDs() {
		g := b.in.Groups[gid]
		if !g.Affined {
			continue
		}
		members := make([]int, len(g.VMIDs))
		copy(members, g.VMIDs)
		sort.Ints(members)

		var anchor *int
		for _, id := range members {
			if alloc := placement[id]; alloc != nil && anchor == nil {
				anchor = &alloc.HostID
			}
		}
		var todo []model.VMRequirements
		for _, id := range members {
			if grouped[id] || placement[id] != nil {
				continue
			}
			grouped[id] = true
			todo = append(todo, b.in.VMs[id])
		}
		if len(todo) == 0 {
			continue
		}
		hm := b.matcher.FindGroupMatches(todo)
		out = append(out, unit{vms: todo, hosts: hm.Hosts, pci: groupPCI(hm.PCIDevices), fixed: anchor})
	}

	queue := append([]int(nil), displaced...)
	for _, id := range b.in.SortedVMIDs() {
		if b.in.VMs[id].Pending() {
			queue = append(queue, id)
		}
	}
	for _, id := range queue {
		if grouped[id] {
			continue
		}
		vm := b.in.VMs[id]
		hm := b.matcher.FindHostMatches(vm)
		out = append(out, unit{vms: []model.VMRequirements{vm}, hosts: hm.Hosts, pci: groupPCI(hm.PCIDevices)})
	}
	return out
}

// sortByDominance orders units so the most demanding come first. Dominance is
// max(memory fraction, cpu fraction) relative to the largest host.
func (b *BestFitDecreasing) sortByDominance(units []unit) {
	var maxMem, maxCPU float64
	for _, h := range b.in.Hosts {
		maxMem = math.Max(maxMem, h.Memory.Total)
		maxCPU = math.Max(maxCPU, h.CPU.Total)
	}
	if maxMem == 0 || maxCPU == 0 {
		return
	}
	dominance := func(u unit) float64 {
		var mem, cpu float64
		for _, vm := range u.vms {
			mem += vm.Memory
			cpu += vm.CPURatio
		}
		return math.Max(mem/maxMem, cpu/maxCPU)
	}
	sort.SliceStable(units, func(i, j int) bool {
		return dominance(units[i]) > dominance(units[j])
	})
}

// placeUnit tries the unit's candidate hosts best first and commits the first
// host on which every member fits.
func (b *BestFitDecreasing) placeUnit(l *ledger, placement mapper.Placement, u unit) {
	hosts := u.hosts
	if u.fixed != nil {
		hosts = nil
		if contains(u.hosts, *u.fixed) {
			hosts = []int{*u.fixed}
		}
	}
	for _, h := range b.rankHosts(l, u, hosts) {
		if !b.migrationsAllowed(u, h) {
			continue
		}
		trial := l.clone()
		allocs := make([]*model.Allocation, 0, len(u.vms))
		ok := true
		for _, vm := range u.vms {
			alloc, fits := b.tryPlace(trial, vm, h, u.pci[vm.ID], false)
			if !fits {
				ok = false
				break
			}
			allocs = append(allocs, alloc)
		}
		if !ok {
			continue
		}
		*l = *trial
		for _, alloc := range allocs {
			placement[alloc.VMID] = alloc
			if cur, ok := b.in.CurrentPlacement[alloc.VMID]; ok && cur != h {
				b.migrations++
			}
		}
		return
	}
	for _, vm := range u.vms {
		b.logger.Debug("no host fits, vm stays pending",
			zap.Int("vm_id", vm.ID),
			zap.String("state", string(vm.State)))
	}
}

func (b *BestFitDecreasing) migrationsAllowed(u unit, host int) bool {
	if b.in.AllowedMigrations == nil {
		return true
	}
	moves := 0
	for _, vm := range u.vms {
		if cur, ok := b.in.CurrentPlacement[vm.ID]; ok && !vm.Pending() && cur != host {
			moves++
		}
	}
	return b.migrations+moves <= *b.in.AllowedMigrations
}

// rankHosts orders candidate hosts by the criteria: tightest fit first for
// pack and migration_count, least loaded first for balance.
func (b *BestFitDecreasing) rankHosts(l *ledger, u unit, hosts []int) []int {
	var mem, cpu float64
	for _, vm := range u.vms {
		mem += vm.Memory
		cpu += vm.CPURatio
	}
	type scored struct {
		id     int
		opened bool
		score  float64
	}
	ranked := make([]scored, 0, len(hosts))
	for _, id := range hosts {
		h := b.in.Hosts[id]
		if h.Memory.Total <= 0 || h.CPU.Total <= 0 {
			continue
		}
		memAfter := (l.mem[id] - mem) / h.Memory.Total
		cpuAfter := (l.cpu[id] - cpu) / h.CPU.Total
		s := scored{id: id, opened: l.opened[id]}
		if b.in.Criteria.Policy == mapper.PolicyBalance {
			s.score = -math.Min(b.weighted(memAfter, cpuAfter))
		} else {
			// Euclidean distance from origin penalizes imbalance between dimensions
			s.score = math.Sqrt(memAfter*memAfter + cpuAfter*cpuAfter)
		}
		ranked = append(ranked, s)
	}
	pack := b.in.Criteria.Policy != mapper.PolicyBalance
	sort.SliceStable(ranked, func(i, j int) bool {
		if pack && ranked[i].opened != ranked[j].opened {
			return ranked[i].opened
		}
		if ranked[i].score != ranked[j].score {
			return ranked[i].score < ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})
	out := make([]int, len(ranked))
	for i, s := range ranked {
		out[i] = s.id
	}
	return out
}

// weighted returns the remaining memory and CPU fractions, each dimension
// ignored when the balance weights leave it out.
func (b *BestFitDecreasing) weighted(memAfter, cpuAfter float64) (float64, float64) {
	w := b.in.Criteria.Weights
	_, useMem := w[mapper.BalanceMemory]
	_, useRatio := w[mapper.BalanceCPURatio]
	_, useUsage := w[mapper.BalanceCPUUsage]
	if !useMem {
		memAfter = math.Inf(1)
	}
	if !useRatio && !useUsage {
		cpuAfter = math.Inf(1)
	}
	if math.IsInf(memAfter, 1) && math.IsInf(cpuAfter, 1) {
		return 0, 0
	}
	return memAfter, cpuAfter
}

// tryPlace reserves vm on host in l and returns its allocation. With keep set
// the VM's current storage bindings are reused.
func (b *BestFitDecreasing) tryPlace(l *ledger, vm model.VMRequirements, host int, pci []matching.PCIDeviceMatch, keep bool) (*model.Allocation, bool) {
	if !l.fits(host, vm) || b.conflicts(l, vm.ID, host) {
		return nil, false
	}
	alloc := &model.Allocation{VMID: vm.ID, HostID: host}
	trial := l.clone()
	if !b.reservePCI(trial, vm, host, pci) {
		return nil, false
	}
	if !b.reserveStorage(trial, vm, host, keep, alloc) {
		return nil, false
	}
	if vm.Pending() && !b.reserveNICs(trial, vm, host, alloc) {
		return nil, false
	}
	trial.place(host, vm)
	*l = *trial
	return alloc, true
}

// conflicts reports whether host already runs a VM anti-affined with vmID.
func (b *BestFitDecreasing) conflicts(l *ledger, vmID, host int) bool {
	for _, g := range b.in.Groups {
		if g.Affined || !contains(g.VMIDs, vmID) {
			continue
		}
		for _, other := range l.members[host] {
			if other != vmID && contains(g.VMIDs, other) {
				return true
			}
		}
	}
	return false
}

func (b *BestFitDecreasing) reservePCI(l *ledger, vm model.VMRequirements, host int, matches []matching.PCIDeviceMatch) bool {
	picked := make(map[deviceRef]bool)
	for idx := range vm.PCIDevices {
		var candidates []deviceRef
		for _, m := range matches {
			if m.HostID == host && m.ReqIndex == idx {
				candidates = append(candidates, deviceRef{HostID: host, Address: m.ShortAddress})
			}
		}
		// devices the VM already holds come first
		sort.SliceStable(candidates, func(i, j int) bool {
			return b.heldBy(candidates[i], vm.ID) && !b.heldBy(candidates[j], vm.ID)
		})
		found := false
		for _, d := range candidates {
			if holder, taken := l.devices[d]; (taken && holder != vm.ID) || picked[d] {
				continue
			}
			l.devices[d] = vm.ID
			picked[d] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func (b *BestFitDecreasing) heldBy(d deviceRef, vmID int) bool {
	dev, ok := b.in.Hosts[d.HostID].PCIDevice(d.Address)
	return ok && dev.VMID != nil && *dev.VMID == vmID
}

func (b *BestFitDecreasing) reserveStorage(l *ledger, vm model.VMRequirements, host int, keep bool, alloc *model.Allocation) bool {
	cluster := b.in.Hosts[host].ClusterID
	matches := b.matcher.FindStorageMatches(vm, []int{host})
	for _, reqID := range vm.StorageIDs() {
		req := vm.Storage[reqID]
		key := model.StorageKey{VMID: vm.ID, ReqID: reqID}
		if ds, ok := b.in.UsedSharedDStores[key]; ok && !vm.Pending() {
			if !contains(b.in.DStores[ds].ClusterIDs, cluster) {
				return false
			}
			l.dstores[ds] -= req.Size
			setInt(&alloc.SharedDStoreIDs, reqID, ds)
			continue
		}
		if used, ok := b.in.UsedHostDStores[key]; ok && keep && used.HostID == host {
			l.disks[used] -= req.Size
			setInt(&alloc.HostDStoreIDs, reqID, used.DiskID)
			continue
		}
		dm := matches[reqID]
		if req.AllowHostDStores {
			disk, ok := bestFit(dm.HostDStores[host], req.Size, func(id int) float64 {
				return l.disks[model.HostDisk{HostID: host, DiskID: id}]
			})
			if !ok {
				return false
			}
			l.disks[model.HostDisk{HostID: host, DiskID: disk}] -= req.Size
			setInt(&alloc.HostDStoreIDs, reqID, disk)
			continue
		}
		var reachable []int
		for _, ds := range dm.SharedDStores {
			if contains(b.in.DStores[ds].ClusterIDs, cluster) {
				reachable = append(reachable, ds)
			}
		}
		ds, ok := bestFit(reachable, req.Size, func(id int) float64 { return l.dstores[id] })
		if !ok {
			return false
		}
		l.dstores[ds] -= req.Size
		setInt(&alloc.SharedDStoreIDs, reqID, ds)
	}
	return true
}

func (b *BestFitDecreasing) reserveNICs(l *ledger, vm model.VMRequirements, host int, alloc *model.Allocation) bool {
	cluster := b.in.Hosts[host].ClusterID
	candidates := b.matcher.VNetCandidates(vm)
	used := make(map[int]bool)
	for _, nic := range vm.NICIDs() {
		picked := false
		for _, vnet := range candidates[nic] {
			if l.leases[vnet] <= 0 || !contains(b.in.VNets[vnet].ClusterIDs, cluster) {
				continue
			}
			if !vm.ShareVNets && used[vnet] {
				continue
			}
			l.leases[vnet]--
			used[vnet] = true
			setInt(&alloc.NICs, nic, vnet)
			picked = true
			break
		}
		if !picked {
			return false
		}
	}
	return true
}

// Placements implements mapper.Mapper. Only one placement is produced.
func (b *BestFitDecreasing) Placements(topK int) ([]mapper.Placement, error) {
	if topK > 1 {
		return nil, fmt.Errorf("top %d placements: %w", topK, mapper.ErrNotImplemented)
	}
	out := make(mapper.Placement, len(b.placement))
	for id, alloc := range b.placement {
		out[id] = alloc
	}
	return []mapper.Placement{out}, nil
}

// Report implements mapper.Mapper with a table of the chosen hosts.
func (b *BestFitDecreasing) Report(path string) (string, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Mapper:      %s\n", Name)
	fmt.Fprintf(&buf, "Criteria:    %s\n", b.in.Criteria)
	fmt.Fprintf(&buf, "Mapped:      %t\n", b.mapped)
	fmt.Fprintf(&buf, "Duration:    %s\n", b.duration)
	fmt.Fprintf(&buf, "%s\n", strings.Repeat("=", 40))
	fmt.Fprintf(&buf, "%-10s %-10s\n", "VM", "Host")
	fmt.Fprintf(&buf, "%s\n", strings.Repeat("-", 40))
	for _, id := range b.in.SortedVMIDs() {
		host := "pending"
		if alloc := b.placement[id]; alloc != nil {
			host = fmt.Sprintf("%d", alloc.HostID)
		}
		if !b.mapped {
			host = "-"
		}
		fmt.Fprintf(&buf, "%-10d %-10s\n", id, host)
	}
	if path != "" {
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("writing mapper report: %w", err)
		}
	}
	return buf.String(), nil
}

// bestFit returns the id with the least remaining room that still holds size.
func bestFit(ids []int, size float64, remaining func(int) float64) (int, bool) {
	best, bestLeft, found := 0, math.MaxFloat64, false
	for _, id := range ids {
		left := remaining(id) - size
		if left < 0 {
			continue
		}
		if left < bestLeft {
			best, bestLeft, found = id, left, true
		}
	}
	return best, found
}

func pciOn(matches []matching.PCIDeviceMatch, vmID int) []matching.PCIDeviceMatch {
	var out []matching.PCIDeviceMatch
	for _, m := range matches {
		if m.VMID == vmID {
			out = append(out, m)
		}
	}
	return out
}

func groupPCI(matches []matching.PCIDeviceMatch) map[int][]matching.PCIDeviceMatch {
	out := make(map[int][]matching.PCIDeviceMatch)
	for _, m := range matches {
		out[m.VMID] = append(out[m.VMID], m)
	}
	return out
}

func setInt(m *map[int]int, k, v int) {
	if *m == nil {
		*m = make(map[int]int)
	}
	(*m)[k] = v
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
