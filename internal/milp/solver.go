package milp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	feasibilityTol = 1e-6
	defaultIntTol  = 1e-6
)

var (
	// ErrUnknownSolver is returned by New for a solver name without an implementation.
	ErrUnknownSolver = errors.New("unknown solver")
	// ErrNumeric is returned when the LP relaxations fail for numerical reasons.
	ErrNumeric = errors.New("numerical failure in lp relaxation")
)

// Status is the outcome of a solve.
type Status int

const (
	NotSolved Status = iota
	Optimal
	Feasible
	Infeasible
	Unbounded
	Error
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case Error:
		return "error"
	default:
		return "not_solved"
	}
}

// Solution is the result of solving a Model.
type Solution struct {
	Status    Status
	Objective float64

	// Values is indexed by variable; nil unless a feasible assignment was found.
	Values []float64

	Nodes    int
	Duration time.Duration
}

// HasValues reports whether the solution carries an assignment.
func (s *Solution) HasValues() bool {
	return s != nil && s.Values != nil
}

// Value evaluates e against the solution. Constant expressions evaluate
// even when no assignment was found.
func (s *Solution) Value(e Expr) float64 {
	if !s.HasValues() {
		return e.Constant
	}
	return e.Value(s.Values)
}

// Solver solves mixed binary linear programs.
type Solver interface {
	// Name identifies the solver in logs and reports.
	Name() string

	// Solve minimizes the model objective. Infeasible or limit-bounded outcomes
	// are reported through Solution.Status; err is reserved for cancellation
	// and solver failures.
	Solve(ctx context.Context, m *Model) (*Solution, error)
}

// Config selects and tunes a solver.
type Config struct {
	Name      string        `mapstructure:"name"`
	TimeLimit time.Duration `mapstructure:"time_limit"`
	MaxNodes  int           `mapstructure:"max_nodes"`

	// Gap is the relative optimality gap at which nodes are pruned.
	Gap float64 `mapstructure:"gap"`

	// Tolerance is the integrality tolerance for binaries.
	Tolerance float64 `mapstructure:"tolerance"`
}

// DefaultConfig returns the built-in branch-and-bound settings.
func DefaultConfig() Config {
	return Config{
		Name:      BranchAndBoundName,
		TimeLimit: 60 * time.Second,
		MaxNodes:  200000,
		Gap:       0,
		Tolerance: defaultIntTol,
	}
}

// Validate checks the limits are non-negative.
func (c Config) Validate() error {
	if c.TimeLimit < 0 {
		return fmt.Errorf("solver time_limit must be >= 0, got %s", c.TimeLimit)
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("solver max_nodes must be >= 0, got %d", c.MaxNodes)
	}
	if c.Gap < 0 || c.Gap >= 1 {
		return fmt.Errorf("solver gap must be in [0, 1), got %v", c.Gap)
	}
	if c.Tolerance < 0 || c.Tolerance >= 0.5 {
		return fmt.Errorf("solver tolerance must be in [0, 0.5), got %v", c.Tolerance)
	}
	return nil
}

// New returns the solver named by cfg.
func New(cfg Config) (Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch strings.ToLower(cfg.Name) {
	case "", BranchAndBoundName, "bnb":
		return NewBranchAndBound(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownSolver, cfg.Name, BranchAndBoundName)
	}
}
