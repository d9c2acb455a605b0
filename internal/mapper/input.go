package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/guimove/vmplacer/internal/model"
)

// Policy names.
const (
	PolicyPack           = "pack"
	PolicyMigrationCount = "migration_count"
	PolicyBalance        = "balance"
)

// Balance names.
const (
	BalanceCPUUsage = "cpu_usage"
	BalanceCPURatio = "cpu_ratio"
	BalanceMemory   = "memory"
)

// BalanceNames lists the supported balance names in canonical order.
var BalanceNames = []string{BalanceCPUUsage, BalanceCPURatio, BalanceMemory}

// ValidBalance reports whether name is a supported balance name.
func ValidBalance(name string) bool {
	for _, n := range BalanceNames {
		if n == name {
			return true
		}
	}
	return false
}

// Criteria is the optimization goal: a named policy, or weights over balance names.
type Criteria struct {
	Policy  string
	Weights map[string]float64
}

// Pack minimizes the number of hosts in use.
func Pack() Criteria { return Criteria{Policy: PolicyPack} }

// MigrationCount minimizes the number of migrations.
func MigrationCount() Criteria { return Criteria{Policy: PolicyMigrationCount} }

// Balance minimizes the weighted maximum host load fractions.
func Balance(weights map[string]float64) Criteria {
	return Criteria{Policy: PolicyBalance, Weights: weights}
}

// String renders the criteria for logs and reports.
func (c Criteria) String() string {
	if c.Policy != PolicyBalance {
		return c.Policy
	}
	names := make([]string, 0, len(c.Weights))
	for name := range c.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%g", name, c.Weights[name])
	}
	return "balance(" + strings.Join(parts, ",") + ")"
}

// Input is everything a mapper needs for one cycle.
type Input struct {
	// CurrentPlacement maps each non-pending VM to its current host.
	CurrentPlacement map[int]int

	UsedHostDStores   map[model.StorageKey]model.HostDisk
	UsedSharedDStores map[model.StorageKey]int

	VMs     map[int]model.VMRequirements
	Groups  map[int]model.VMGroup
	Hosts   map[int]model.HostCapacity
	DStores map[int]model.DStoreCapacity
	VNets   map[int]model.VNetCapacity

	Criteria Criteria

	// AllowedMigrations caps the number of migrations; nil means unlimited.
	AllowedMigrations *int

	// BalanceConstraints bounds the load fraction per balance name.
	BalanceConstraints map[string]float64

	Preemptive bool
}

// NewInput converts a snapshot into a mapper input with the given criteria.
func NewInput(cs model.ClusterState, criteria Criteria) Input {
	current := make(map[int]int, len(cs.CurrentPlacement))
	for vm, host := range cs.CurrentPlacement {
		current[vm] = host
	}
	return Input{
		CurrentPlacement:  current,
		UsedHostDStores:   cs.UsedHostDStoreMap(),
		UsedSharedDStores: cs.UsedSharedDStoreMap(),
		VMs:               cs.VMMap(),
		Groups:            cs.GroupMap(),
		Hosts:             cs.HostMap(),
		DStores:           cs.DStoreMap(),
		VNets:             cs.VNetMap(),
		Criteria:          criteria,
	}
}

// SortedVMIDs returns the VM ids in ascending order.
func (in Input) SortedVMIDs() []int {
	return sortedKeys(in.VMs)
}

// SortedHostIDs returns the host ids in ascending order.
func (in Input) SortedHostIDs() []int {
	return sortedKeys(in.Hosts)
}

// SortedGroupIDs returns the group ids in ascending order.
func (in Input) SortedGroupIDs() []int {
	return sortedKeys(in.Groups)
}

// AllPending reports whether every VM waits for a first placement.
func (in Input) AllPending() bool {
	for _, vm := range in.VMs {
		if !vm.Pending() {
			return false
		}
	}
	return true
}

// Validate checks the settings every mapper rejects up front.
func (in Input) Validate() error {
	if in.Preemptive {
		return ErrPreemptiveUnsupported
	}
	for _, name := range sortedKeys(in.BalanceConstraints) {
		if !ValidBalance(name) {
			return fmt.Errorf("%w: %q", ErrUnknownBalance, name)
		}
	}
	affined := make(map[int]int)
	for _, gid := range in.SortedGroupIDs() {
		g := in.Groups[gid]
		for _, id := range g.VMIDs {
			if _, ok := in.VMs[id]; !ok {
				return fmt.Errorf("%w: %d in group %d", ErrUnknownVM, id, gid)
			}
			if !g.Affined {
				continue
			}
			if other, ok := affined[id]; ok {
				return fmt.Errorf("vm %d belongs to affined groups %d and %d", id, other, gid)
			}
			affined[id] = gid
		}
	}
	return nil
}

func sortedKeys[K int | string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
