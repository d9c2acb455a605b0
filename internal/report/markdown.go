package report

import (
	"context"
	"fmt"
	"io"

	"github.com/guimove/vmplacer/internal/model"
)

// MarkdownReporter outputs recommendations as a Markdown document.
type MarkdownReporter struct {
	w io.Writer
}

func (r *MarkdownReporter) Report(ctx context.Context, recs []model.Recommendation, meta ReportMeta) error {
	fmt.Fprintf(r.w, "# VM Placement Recommendations\n\n")
	fmt.Fprintf(r.w, "- **Cluster:** %s\n", meta.ClusterName)
	fmt.Fprintf(r.w, "- **Source:** %s\n", meta.Source)
	fmt.Fprintf(r.w, "- **VMs:** %d (%d pending)\n", meta.TotalVMs, meta.PendingVMs)
	fmt.Fprintf(r.w, "- **Hosts:** %d\n\n", meta.TotalHosts)

	if len(recs) == 0 {
		fmt.Fprintf(r.w, "No recommendations available.\n")
		return nil
	}

	fmt.Fprintf(r.w, "| Rank | Scenario | Mapper | Status | Placed | Pending | Hosts | Migrations | Score |\n")
	fmt.Fprintf(r.w, "|---|---|---|---|---|---|---|---|---|\n")
	for _, rec := range recs {
		pr := rec.Result
		fmt.Fprintf(r.w, "| %d | %s | %s | %s | %d | %d | %d | %d | %.1f |\n",
			rec.Rank, pr.Scenario, pr.Mapper, pr.Status, pr.Placed(), len(pr.Pending),
			pr.HostsUsed, pr.Migrations, rec.OverallScore)
	}

	top := recs[0]
	fmt.Fprintf(r.w, "\n## Recommended: %s\n\n%s\n", top.Result.Scenario, top.Rationale)
	if len(top.Warnings) > 0 {
		fmt.Fprintf(r.w, "\n### Warnings\n\n")
		for _, w := range top.Warnings {
			fmt.Fprintf(r.w, "- %s\n", w)
		}
	}

	if meta.ShowAllocations {
		fmt.Fprintf(r.w, "\n### Allocations\n\n| VM | Host | Host disks | Datastores | NICs |\n|---|---|---|---|---|\n")
		for _, a := range top.Result.Allocations {
			fmt.Fprintf(r.w, "| %d | %d | %s | %s | %s |\n",
				a.VMID, a.HostID, formatIDs(a.HostDStoreIDs), formatIDs(a.SharedDStoreIDs), formatIDs(a.NICs))
		}
		for _, id := range top.Result.Pending {
			fmt.Fprintf(r.w, "| %d | pending | | | |\n", id)
		}
	}
	return nil
}
