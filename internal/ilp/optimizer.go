// Package ilp implements the placement mapper as a mixed binary linear program.
package ilp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/matching"
	"github.com/guimove/vmplacer/internal/metrics"
	"github.com/guimove/vmplacer/internal/milp"
)

// Name identifies the optimizer in logs, metrics and reports.
const Name = "ilp"

// State is the build stage of an Optimizer.
type State int

const (
	Constructed State = iota
	VariablesBuilt
	ConstraintsBuilt
	ObjectiveSet
	Solved
)

func (s State) String() string {
	switch s {
	case VariablesBuilt:
		return "variables_built"
	case ConstraintsBuilt:
		return "constraints_built"
	case ObjectiveSet:
		return "objective_set"
	case Solved:
		return "solved"
	default:
		return "constructed"
	}
}

// Optimizer computes an optimal placement by building and solving a MILP:
// matching narrows the candidates, variables and constraints encode the
// scheduling rules, and the objective follows the configured criteria.
type Optimizer struct {
	in       mapper.Input
	free     bool
	solver   milp.Solver
	logger   *zap.Logger
	recorder *metrics.Recorder
	matcher  *matching.Matcher

	state     State
	model     *milp.Model
	sol       *milp.Solution
	placement mapper.Placement

	vmIDs  []int
	plans  map[int]*vmPlan
	groups []*groupPlan

	hostUsed     map[int]milp.Expr
	assign       map[vmHostKey]milp.Expr
	groupAssign  map[groupHostKey]milp.Expr
	pending      map[int]milp.Expr
	groupPending map[int]milp.Expr
	pci          map[pciKey]milp.Expr
	hostDStore   map[hostDStoreKey]milp.Expr
	sharedDStore map[sharedDStoreKey]milp.Expr
	vnet         map[vnetKey]milp.Expr
	migr         map[vmHostKey]milp.Expr
	nMigr        map[int]milp.Expr
	balance      map[string]milp.Expr

	// creation-ordered keys of the families iterated by constraints
	hostIDs    []int
	pciKeys    []pciKey
	hdsKeys    []hostDStoreKey
	sdsKeys    []sharedDStoreKey
	vnetKeys   []vnetKey
	balanceIDs []string
}

var _ mapper.Mapper = (*Optimizer)(nil)

// New validates the input and prepares an optimizer. No matching or solving happens here.
func New(in mapper.Input, opts ...mapper.Option) (*Optimizer, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	o := mapper.ApplyOptions(opts...)
	solver := o.Solver
	if solver == nil {
		solver = milp.NewBranchAndBound(milp.DefaultConfig())
	}
	free := in.AllPending() && !in.Preemptive
	return &Optimizer{
		in:       in,
		free:     free,
		solver:   solver,
		logger:   o.Logger.With(zap.String("component", "ilp")),
		recorder: o.Recorder,
		matcher:  matching.NewMatcher(in.Hosts, in.DStores, in.VNets, free),
		vmIDs:    in.SortedVMIDs(),
	}, nil
}

// NewMapper is New returning the Mapper interface.
func NewMapper(in mapper.Input, opts ...mapper.Option) (mapper.Mapper, error) {
	return New(in, opts...)
}

var _ mapper.Constructor = NewMapper

// State returns the current build stage.
func (o *Optimizer) State() State {
	return o.state
}

// Status returns the solver status; NotSolved before Map.
func (o *Optimizer) Status() milp.Status {
	if o.sol == nil {
		return milp.NotSolved
	}
	return o.sol.Status
}

// Objective returns the optimal objective value, or 0 before an optimal solve.
func (o *Optimizer) Objective() float64 {
	if o.sol == nil || o.sol.Status != milp.Optimal {
		return 0
	}
	return o.sol.Objective
}

// Model returns the built model; nil before Map.
func (o *Optimizer) Model() *milp.Model {
	return o.model
}

// FreeView reports whether capacities are matched against their unused part.
func (o *Optimizer) FreeView() bool {
	return o.free
}

// Map implements mapper.Mapper.
func (o *Optimizer) Map(ctx context.Context) error {
	if o.state != Constructed {
		return mapper.ErrAlreadyMapped
	}
	start := time.Now()

	o.plan()
	o.model = milp.NewModel()
	o.buildVariables()
	o.state = VariablesBuilt
	o.buildConstraints()
	o.state = ConstraintsBuilt
	if err := o.setObjective(); err != nil {
		return err
	}
	o.state = ObjectiveSet
	o.recorder.ObserveModel(Name, o.model.NumVars(), o.model.NumConstraints())

	o.logger.Debug("solving placement model",
		zap.String("solver", o.solver.Name()),
		zap.String("criteria", o.in.Criteria.String()),
		zap.Bool("free_view", o.free),
		zap.Int("vms", len(o.vmIDs)),
		zap.Int("variables", o.model.NumVars()),
		zap.Int("constraints", o.model.NumConstraints()))

	sol, err := o.solver.Solve(ctx, o.model)
	if err != nil {
		o.recorder.ObserveSolve(Name, milp.Error.String(), time.Since(start), 0)
		return fmt.Errorf("solving placement model: %w", err)
	}
	o.sol = sol
	o.state = Solved
	o.recorder.ObserveSolve(Name, sol.Status.String(), time.Since(start), sol.Nodes)

	fields := []zap.Field{
		zap.Stringer("status", sol.Status),
		zap.Int("nodes", sol.Nodes),
		zap.Duration("duration", time.Since(start)),
	}
	if sol.Status != milp.Optimal {
		o.logger.Warn("placement model not solved to optimality", fields...)
		return nil
	}

	o.placement = o.decode()
	stats := mapper.Summarize(o.placement, o.in.CurrentPlacement)
	o.recorder.ObservePlacement(Name, stats.Placed, stats.Pending, stats.HostsUsed, stats.Migrations)
	o.logger.Info("placement computed", append(fields,
		zap.Float64("objective", sol.Objective),
		zap.Int("placed", stats.Placed),
		zap.Int("pending", stats.Pending),
		zap.Int("hosts_used", stats.HostsUsed),
		zap.Int("migrations", stats.Migrations))...)
	return nil
}

// Placements implements mapper.Mapper. Only the single best placement is available.
func (o *Optimizer) Placements(topK int) ([]mapper.Placement, error) {
	if topK > 1 {
		return nil, fmt.Errorf("top %d placements: %w", topK, mapper.ErrNotImplemented)
	}
	if o.placement == nil {
		return []mapper.Placement{{}}, nil
	}
	out := make(mapper.Placement, len(o.placement))
	for id, alloc := range o.placement {
		out[id] = alloc
	}
	return []mapper.Placement{out}, nil
}

// Report implements mapper.Mapper.
func (o *Optimizer) Report(path string) (string, error) {
	m := o.model
	if m == nil {
		m = milp.NewModel()
	}
	var buf bytes.Buffer
	if err := milp.Dump(&buf, m, o.sol); err != nil {
		return "", fmt.Errorf("rendering model report: %w", err)
	}
	if path != "" {
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return "", fmt.Errorf("writing model report: %w", err)
		}
	}
	return buf.String(), nil
}
