// Package mapper defines the contract shared by placement strategies.
package mapper

import (
	"context"
	"errors"

	"github.com/guimove/vmplacer/internal/model"
)

var (
	// ErrNotImplemented is returned for features a mapper does not provide.
	ErrNotImplemented = errors.New("not implemented")
	// ErrPreemptiveUnsupported is returned when preemptive placement is requested.
	ErrPreemptiveUnsupported = errors.New("preemptive placement is not supported")
	// ErrUnknownBalance is returned for a balance name outside cpu_usage, cpu_ratio, memory.
	ErrUnknownBalance = errors.New("unknown balance constraint")
	// ErrUnknownCriteria is returned for an unsupported optimization policy.
	ErrUnknownCriteria = errors.New("unknown criteria")
	// ErrAlreadyMapped is returned when Map is called twice on one mapper.
	ErrAlreadyMapped = errors.New("mapper already ran")
	// ErrUnknownVM is returned when a group references a VM missing from the input.
	ErrUnknownVM = errors.New("unknown vm")
)

// Placement maps each VM id to its allocation; a nil allocation means the VM stays pending.
type Placement map[int]*model.Allocation

// Mapper computes VM placements for one scheduling cycle.
// A mapper instance is single-use: construct, Map once, then read results.
type Mapper interface {
	// Map runs the optimization.
	Map(ctx context.Context) error

	// Placements returns up to topK alternative placements, best first.
	Placements(topK int) ([]Placement, error)

	// Report renders the internal model and, when path is not empty, writes it there.
	Report(path string) (string, error)
}

// Constructor builds a mapper from its input.
type Constructor func(in Input, opts ...Option) (Mapper, error)

// Stats summarizes a placement.
type Stats struct {
	Placed     int
	Pending    int
	HostsUsed  int
	Migrations int
}

// Summarize counts placed and pending VMs, distinct hosts in use and VMs
// moved away from their current host.
func Summarize(p Placement, current map[int]int) Stats {
	var s Stats
	hosts := make(map[int]bool)
	for vmID, alloc := range p {
		if alloc == nil {
			s.Pending++
			continue
		}
		s.Placed++
		hosts[alloc.HostID] = true
		if cur, ok := current[vmID]; ok && cur != alloc.HostID {
			s.Migrations++
		}
	}
	s.HostsUsed = len(hosts)
	return s
}
