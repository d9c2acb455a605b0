package report

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guimove/vmplacer/internal/model"
)

func sampleRecs() []model.Recommendation {
	return []model.Recommendation{
		{
			Rank: 1,
			Result: model.PlacementResult{
				Scenario:  "ilp-pack",
				Mapper:    "ilp",
				Criteria:  "pack",
				Status:    "optimal",
				HostsUsed: 1,
				Allocations: []model.Allocation{
					{VMID: 1, HostID: 2, HostDStoreIDs: map[int]int{0: 3}, NICs: map[int]int{1: 5, 0: 4}},
				},
				Pending: []int{7},
			},
			OverallScore: 91.5,
			Rationale:    "ilp/pack: 1/2 VMs placed on 1 hosts",
			Warnings:     []string{"1 VMs could not be placed"},
		},
		{Rank: 2, Result: model.PlacementResult{Scenario: "bfd-pack", Mapper: "bfd", Status: "heuristic"}, OverallScore: 60},
	}
}

func sampleMeta() ReportMeta {
	return ReportMeta{ClusterName: "lab", Source: "snap.yaml", TotalVMs: 2, PendingVMs: 1, TotalHosts: 3, ShowAllocations: true}
}

func TestTableReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewReporter("table", &buf).Report(context.Background(), sampleRecs(), sampleMeta()))

	out := buf.String()
	assert.Contains(t, out, "Cluster:     lab")
	assert.Contains(t, out, "#1   ilp-pack")
	assert.Contains(t, out, "Recommended: ilp-pack (ilp, pack)")
	assert.Contains(t, out, "1 VMs could not be placed")
	assert.Contains(t, out, "0:4 1:5")
	assert.Contains(t, out, "pending")
}

func TestTableReporter_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewReporter("", &buf).Report(context.Background(), nil, ReportMeta{}))
	assert.Contains(t, buf.String(), "No recommendations available.")
}

func TestJSONReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewReporter("json", &buf).Report(context.Background(), sampleRecs(), sampleMeta()))

	var got output
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Recommendations, 2)
	assert.Equal(t, "lab", got.Meta.ClusterName)
	assert.Equal(t, 2, got.Recommendations[0].Result.Allocations[0].HostID)
}

func TestYAMLReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewReporter("yaml", &buf).Report(context.Background(), sampleRecs(), sampleMeta()))

	var got output
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Recommendations, 2)
	assert.Equal(t, "ilp-pack", got.Recommendations[0].Result.Scenario)
	assert.Equal(t, []int{7}, got.Recommendations[0].Result.Pending)
}

func TestMarkdownReporter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, NewReporter("markdown", &buf).Report(context.Background(), sampleRecs(), sampleMeta()))

	out := buf.String()
	assert.Contains(t, out, "# VM Placement Recommendations")
	assert.Contains(t, out, "| 1 | ilp-pack | ilp | optimal | 1 | 1 | 1 | 0 | 91.5 |")
	assert.Contains(t, out, "| 7 | pending | | | |")
}

func TestFormatIDs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", formatIDs(nil))
	assert.Equal(t, "0:9 2:1", formatIDs(map[int]int{2: 1, 0: 9}))
}
