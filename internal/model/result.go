package model

import "time"

// HostUtilization is the projected load of one host after a placement is applied.
type HostUtilization struct {
	HostID     int      `json:"host_id"`
	ClusterID  int      `json:"cluster_id"`
	VMIDs      []int    `json:"vm_ids,omitempty"`
	MigratedIn []int    `json:"migrated_in,omitempty"` // VMs moved here from another host
	Memory     Capacity `json:"memory"`
	CPU        Capacity `json:"cpu"`

	// Derived metrics
	MemUtilization float64 `json:"mem_utilization"` // 0.0 - 1.0
	CPUUtilization float64 `json:"cpu_utilization"` // 0.0 - 1.0
}

// Used reports whether at least one VM runs on the host.
func (hu HostUtilization) Used() bool {
	return len(hu.VMIDs) > 0
}

// UtilizationReport details resource waste patterns across the used hosts.
type UtilizationReport struct {
	// Stranded: one dimension nearly full, the other underused
	StrandedMemory float64 `json:"stranded_memory"`
	StrandedCPU    float64 `json:"stranded_cpu"`

	// Fraction of used hosts below 50% utilization on either dimension
	UnderutilizedHostFraction float64 `json:"underutilized_host_fraction"`

	// 1.0 = CPU and memory equally loaded on every used host
	BalanceScore float64 `json:"balance_score"`

	// 1.0 = every used host runs the same number of VMs
	VMSpread float64 `json:"vm_spread"`

	// Share of all migrations landing on the busiest target host
	MigrationHotspot float64 `json:"migration_hotspot"`

	// Fraction of VMs left without a host
	PendingFraction float64 `json:"pending_fraction"`
}

// PlacementResult captures the outcome of a single mapper run.
type PlacementResult struct {
	Scenario string `json:"scenario"`
	Mapper   string `json:"mapper"`
	Criteria string `json:"criteria"`
	Status   string `json:"status"`

	// Allocations of placed VMs, ordered by VM id
	Allocations []Allocation `json:"allocations"`

	// VMs left without a host
	Pending []int `json:"pending,omitempty"`

	Hosts      []HostUtilization `json:"hosts"`
	HostsUsed  int               `json:"hosts_used"`
	Migrations int               `json:"migrations"`

	// Efficiency
	AvgMemUtilization float64           `json:"avg_mem_utilization"`
	AvgCPUUtilization float64           `json:"avg_cpu_utilization"`
	Utilization       UtilizationReport `json:"utilization"`

	Duration time.Duration `json:"duration"`
}

// Placed returns the number of allocated VMs.
func (pr PlacementResult) Placed() int {
	return len(pr.Allocations)
}

// ScoringWeights configures the relative importance of scoring dimensions.
type ScoringWeights struct {
	Placement     float64 `mapstructure:"placement" json:"placement"`
	Consolidation float64 `mapstructure:"consolidation" json:"consolidation"`
	Stability     float64 `mapstructure:"stability" json:"stability"`
	Balance       float64 `mapstructure:"balance" json:"balance"`
}

// DefaultScoringWeights returns the default scoring weights.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Placement:     0.40,
		Consolidation: 0.30,
		Stability:     0.20,
		Balance:       0.10,
	}
}

// Recommendation is the final ranked output presented to the user.
type Recommendation struct {
	Rank   int             `json:"rank"`
	Result PlacementResult `json:"result"`

	// Efficiency scores (0-100)
	OverallScore       float64 `json:"overall_score"`
	PlacementScore     float64 `json:"placement_score"`
	ConsolidationScore float64 `json:"consolidation_score"`
	StabilityScore     float64 `json:"stability_score"`
	BalanceScore       float64 `json:"balance_score"`

	// Human-readable rationale
	Rationale string   `json:"rationale"`
	Warnings  []string `json:"warnings,omitempty"`
}
