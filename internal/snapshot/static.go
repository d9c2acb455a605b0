package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/guimove/vmplacer/internal/model"
)

// StaticLoader loads a snapshot from a JSON or YAML file.
// Used for testing, offline analysis, and CI pipelines.
type StaticLoader struct {
	filePath string
	state    *model.ClusterState
}

// NewStaticLoader creates a loader that reads from a file. The format is
// chosen by extension: .yaml and .yml are YAML, anything else JSON.
func NewStaticLoader(filePath string) *StaticLoader {
	return &StaticLoader{filePath: filePath}
}

// NewStaticLoaderFromState creates a loader from a pre-built ClusterState.
func NewStaticLoaderFromState(state *model.ClusterState) *StaticLoader {
	return &StaticLoader{state: state}
}

// Ping checks that the file exists.
func (s *StaticLoader) Ping(ctx context.Context) error {
	if s.state != nil {
		return nil
	}
	if _, err := os.Stat(s.filePath); err != nil {
		return fmt.Errorf("snapshot file: %w", err)
	}
	return nil
}

// Source returns the file path, or "memory" for in-memory snapshots.
func (s *StaticLoader) Source() string {
	if s.state != nil {
		return "memory"
	}
	return s.filePath
}

// Load reads, decodes and validates the snapshot.
func (s *StaticLoader) Load(ctx context.Context) (*model.ClusterState, error) {
	state := s.state
	if state == nil {
		data, err := os.ReadFile(s.filePath)
		if err != nil {
			return nil, fmt.Errorf("reading snapshot file: %w", err)
		}
		state, err = Decode(data, formatOf(s.filePath))
		if err != nil {
			return nil, err
		}
	}

	if len(state.VMs) == 0 {
		return nil, ErrEmptySnapshot
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return state, nil
}

// Decode parses a snapshot in the given format ("json" or "yaml").
func Decode(data []byte, format string) (*model.ClusterState, error) {
	var state model.ClusterState
	switch format {
	case "json":
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("parsing json snapshot: %w", err)
		}
	case "yaml":
		if err := yaml.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("parsing yaml snapshot: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &state, nil
}

// Encode renders a snapshot in the given format.
func Encode(state *model.ClusterState, format string) ([]byte, error) {
	switch format {
	case "json":
		return json.MarshalIndent(state, "", "  ")
	case "yaml":
		return yaml.Marshal(state)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
