// Package report renders ranked placement results for humans and machines.
package report

import (
	"context"
	"io"
	"time"

	"github.com/guimove/vmplacer/internal/model"
)

// Reporter formats and writes recommendations to an output destination.
type Reporter interface {
	Report(ctx context.Context, recs []model.Recommendation, meta ReportMeta) error
}

// ReportMeta contains contextual metadata for the report.
type ReportMeta struct {
	ClusterName string    `json:"cluster_name"`
	Source      string    `json:"source"`
	CollectedAt time.Time `json:"collected_at"`
	TotalVMs    int       `json:"total_vms"`
	PendingVMs  int       `json:"pending_vms"`
	TotalHosts  int       `json:"total_hosts"`

	// ShowAllocations adds the per-VM placement of the top recommendation.
	ShowAllocations bool `json:"-"`
}

// Formats lists the supported output formats.
var Formats = []string{"table", "json", "yaml", "markdown"}

// NewReporter creates a reporter for the given format writing to w.
func NewReporter(format string, w io.Writer) Reporter {
	switch format {
	case "json":
		return &JSONReporter{w: w}
	case "yaml":
		return &YAMLReporter{w: w}
	case "markdown":
		return &MarkdownReporter{w: w}
	default:
		return &TableReporter{w: w}
	}
}

type output struct {
	Meta            ReportMeta             `json:"meta"`
	Recommendations []model.Recommendation `json:"recommendations"`
}
