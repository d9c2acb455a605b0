package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/guimove/vmplacer/internal/model"
)

// TableReporter outputs recommendations as a formatted terminal table.
type TableReporter struct {
	w io.Writer
}

func (r *TableReporter) Report(ctx context.Context, recs []model.Recommendation, meta ReportMeta) error {
	// Header
	fmt.Fprintf(r.w, "\n")
	fmt.Fprintf(r.w, "VM Placement Recommendations\n")
	fmt.Fprintf(r.w, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(r.w, "Cluster:     %s\n", meta.ClusterName)
	fmt.Fprintf(r.w, "Source:      %s\n", meta.Source)
	fmt.Fprintf(r.w, "VMs:         %d (%d pending)\n", meta.TotalVMs, meta.PendingVMs)
	fmt.Fprintf(r.w, "Hosts:       %d\n", meta.TotalHosts)
	if !meta.CollectedAt.IsZero() {
		fmt.Fprintf(r.w, "Collected:   %s\n", meta.CollectedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(r.w, "%s\n\n", strings.Repeat("=", 60))

	if len(recs) == 0 {
		fmt.Fprintf(r.w, "No recommendations available.\n")
		return nil
	}

	// Column headers
	fmt.Fprintf(r.w, "%-4s %-30s %-11s %6s %7s %6s %7s %7s %6s\n",
		"Rank", "Scenario", "Status", "Placed", "Pending", "Hosts", "Migr", "Mem%", "Score")
	fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))

	for _, rec := range recs {
		pr := rec.Result
		label := pr.Scenario
		if len(label) > 30 {
			label = label[:27] + "..."
		}

		fmt.Fprintf(r.w, "#%-3d %-30s %-11s %6d %7d %6d %7d %6.1f%% %6.1f\n",
			rec.Rank,
			label,
			pr.Status,
			pr.Placed(),
			len(pr.Pending),
			pr.HostsUsed,
			pr.Migrations,
			pr.AvgMemUtilization*100,
			rec.OverallScore,
		)
	}

	fmt.Fprintf(r.w, "%s\n", strings.Repeat("-", 100))

	// Top recommendation detail
	top := recs[0]
	pr := top.Result
	fmt.Fprintf(r.w, "\nRecommended: %s (%s, %s)\n", pr.Scenario, pr.Mapper, pr.Criteria)
	fmt.Fprintf(r.w, "  Hosts used:     %d\n", pr.HostsUsed)
	fmt.Fprintf(r.w, "  Migrations:     %d\n", pr.Migrations)
	fmt.Fprintf(r.w, "  CPU util:       %.1f%%\n", pr.AvgCPUUtilization*100)
	fmt.Fprintf(r.w, "  Memory util:    %.1f%%\n", pr.AvgMemUtilization*100)
	fmt.Fprintf(r.w, "  Balance score:  %.2f\n", pr.Utilization.BalanceScore)
	fmt.Fprintf(r.w, "  VM spread:      %.2f\n", pr.Utilization.VMSpread)
	fmt.Fprintf(r.w, "  Solve time:     %s\n", pr.Duration)
	fmt.Fprintf(r.w, "  %s\n", top.Rationale)

	if len(top.Warnings) > 0 {
		fmt.Fprintf(r.w, "\n  Warnings:\n")
		for _, w := range top.Warnings {
			fmt.Fprintf(r.w, "    - %s\n", w)
		}
	}

	if meta.ShowAllocations {
		writeAllocations(r.w, pr)
	}

	fmt.Fprintf(r.w, "\n")
	return nil
}

func writeAllocations(w io.Writer, pr model.PlacementResult) {
	fmt.Fprintf(w, "\n%-8s %-8s %-24s %-24s %s\n", "VM", "Host", "Host disks", "Datastores", "NICs")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 100))
	for _, a := range pr.Allocations {
		fmt.Fprintf(w, "%-8d %-8d %-24s %-24s %s\n",
			a.VMID, a.HostID, formatIDs(a.HostDStoreIDs), formatIDs(a.SharedDStoreIDs), formatIDs(a.NICs))
	}
	for _, id := range pr.Pending {
		fmt.Fprintf(w, "%-8d %-8s\n", id, "pending")
	}
}

// formatIDs renders key->value pairs ordered by key, e.g. "0:3 1:7".
func formatIDs(m map[int]int) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%d:%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
