package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/goccy/go-yaml"

	"github.com/guimove/vmplacer/internal/model"
)

// JSONReporter outputs recommendations as JSON.
type JSONReporter struct {
	w io.Writer
}

func (r *JSONReporter) Report(ctx context.Context, recs []model.Recommendation, meta ReportMeta) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output{Meta: meta, Recommendations: recs}); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// YAMLReporter outputs recommendations as YAML, using the JSON field names.
type YAMLReporter struct {
	w io.Writer
}

func (r *YAMLReporter) Report(ctx context.Context, recs []model.Recommendation, meta ReportMeta) error {
	data, err := yaml.Marshal(output{Meta: meta, Recommendations: recs})
	if err != nil {
		return fmt.Errorf("encoding YAML output: %w", err)
	}
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("writing YAML output: %w", err)
	}
	return nil
}
