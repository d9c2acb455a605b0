// Package snapshot loads the per-cycle cluster state handed to the mappers.
package snapshot

import (
	"context"
	"errors"

	"github.com/guimove/vmplacer/internal/model"
)

var (
	ErrEmptySnapshot     = errors.New("snapshot contains no vms")
	ErrUnsupportedFormat = errors.New("unsupported snapshot format")
)

// Loader abstracts where cluster snapshots come from.
type Loader interface {
	// Load returns a validated snapshot.
	Load(ctx context.Context) (*model.ClusterState, error)

	// Ping checks the source is reachable.
	Ping(ctx context.Context) error

	// Source describes the snapshot origin.
	Source() string
}
