package simulation

import (
	"fmt"
	"math"
	"sort"

	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

// Utilization thresholds used for warnings and waste analysis.
const (
	LowUtilThreshold         = 0.50
	HighUtilThreshold        = 0.85
	CriticalMemUtilThreshold = 0.90
	HighMigrationFraction    = 0.25
	MigrationHotspotFraction = 0.75
)

// Scorer computes composite scores for placement results and ranks them.
type Scorer struct {
	Weights model.ScoringWeights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(weights model.ScoringWeights) *Scorer {
	return &Scorer{Weights: weights}
}

// RankResults scores and ranks a set of placement results.
// If baseline is non-nil, host counts are compared against it.
func (s *Scorer) RankResults(results []model.PlacementResult, baseline *model.PlacementResult) []model.Recommendation {
	if len(results) == 0 {
		return nil
	}

	// Find host count bounds for normalization
	minHosts, maxHosts := results[0].HostsUsed, results[0].HostsUsed
	for _, r := range results[1:] {
		minHosts = min(minHosts, r.HostsUsed)
		maxHosts = max(maxHosts, r.HostsUsed)
	}

	recs := make([]model.Recommendation, len(results))
	for i, r := range results {
		recs[i] = s.score(r, baseline, minHosts, maxHosts)
	}

	// Sort by overall score descending
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].OverallScore > recs[j].OverallScore
	})

	for i := range recs {
		recs[i].Rank = i + 1
	}

	return recs
}

func (s *Scorer) score(r model.PlacementResult, baseline *model.PlacementResult, minHosts, maxHosts int) model.Recommendation {
	rec := model.Recommendation{Result: r}
	total := r.Placed() + len(r.Pending)

	// Placement score: share of VMs that got a host
	if total > 0 {
		rec.PlacementScore = float64(r.Placed()) / float64(total) * 100
	} else {
		rec.PlacementScore = 100
	}

	// Consolidation score: 100 = fewest hosts, 0 = most hosts
	if hostRange := maxHosts - minHosts; hostRange > 0 {
		rec.ConsolidationScore = (1.0 - float64(r.HostsUsed-minHosts)/float64(hostRange)) * 100
	} else {
		rec.ConsolidationScore = 100
	}

	// Stability score: penalize migrations relative to the VM count
	if total > 0 {
		rec.StabilityScore = math.Max(0, 1.0-float64(r.Migrations)/float64(total)) * 100
	} else {
		rec.StabilityScore = 100
	}

	rec.BalanceScore = r.Utilization.BalanceScore * 100 * (1.0 - r.Utilization.UnderutilizedHostFraction)

	rec.OverallScore = s.Weights.Placement*rec.PlacementScore +
		s.Weights.Consolidation*rec.ConsolidationScore +
		s.Weights.Stability*rec.StabilityScore +
		s.Weights.Balance*rec.BalanceScore

	rec.Rationale = generateRationale(r, baseline)
	rec.Warnings = generateWarnings(r)
	return rec
}

func generateRationale(r model.PlacementResult, baseline *model.PlacementResult) string {
	rationale := fmt.Sprintf("%s/%s: %d/%d VMs placed on %d hosts, %d migrations, Mem %.0f%%, CPU %.0f%%",
		r.Mapper, r.Criteria, r.Placed(), r.Placed()+len(r.Pending), r.HostsUsed, r.Migrations,
		r.AvgMemUtilization*100, r.AvgCPUUtilization*100)

	if baseline != nil && baseline.HostsUsed > r.HostsUsed {
		rationale += fmt.Sprintf(" (frees %d hosts)", baseline.HostsUsed-r.HostsUsed)
	}

	return rationale
}

func generateWarnings(r model.PlacementResult) []string {
	var warnings []string

	if len(r.Pending) > 0 {
		warnings = append(warnings, fmt.Sprintf("%d VMs could not be placed", len(r.Pending)))
	}

	if r.Status == milp.Feasible.String() || r.Status == milp.NotSolved.String() {
		warnings = append(warnings, "Solver stopped before proving optimality")
	}

	if r.AvgCPUUtilization > HighUtilThreshold {
		warnings = append(warnings, "High CPU utilization leaves little headroom for bursts")
	}
	if r.AvgMemUtilization > CriticalMemUtilThreshold {
		warnings = append(warnings, "High memory utilization leaves no room for ballooning")
	}

	if r.Utilization.UnderutilizedHostFraction > LowUtilThreshold {
		warnings = append(warnings,
			fmt.Sprintf("%.0f%% of hosts are underutilized (<%d%% on one dimension)",
				r.Utilization.UnderutilizedHostFraction*100, int(LowUtilThreshold*100)))
	}

	if total := r.Placed() + len(r.Pending); total > 0 && float64(r.Migrations)/float64(total) > HighMigrationFraction {
		warnings = append(warnings,
			fmt.Sprintf("%d migrations move more than %.0f%% of the VMs", r.Migrations, HighMigrationFraction*100))
	}

	if r.Migrations > 2 && r.Utilization.MigrationHotspot > MigrationHotspotFraction {
		warnings = append(warnings,
			fmt.Sprintf("%.0f%% of the migrations target a single host", r.Utilization.MigrationHotspot*100))
	}

	return warnings
}
