package milp

import (
	"context"
	"math"
	"time"
)

// BranchAndBoundName is the configuration name of the built-in solver.
const BranchAndBoundName = "branch-and-bound"

// BranchAndBound is a depth-first branch-and-bound solver over LP relaxations
// solved with a two-phase tableau simplex on gonum matrices. Binaries are
// branched on the most fractional variable, the rounded direction first. The
// time limit and ctx are also checked while a relaxation pivots.
type BranchAndBound struct {
	cfg Config
}

// NewBranchAndBound creates a solver with the limits from cfg.
func NewBranchAndBound(cfg Config) *BranchAndBound {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultIntTol
	}
	return &BranchAndBound{cfg: cfg}
}

// Name implements Solver.
func (b *BranchAndBound) Name() string {
	return BranchAndBoundName
}

type bnbNode struct {
	lo, hi []float64
}

func (nd bnbNode) fix(j int, v float64) bnbNode {
	child := bnbNode{
		lo: append([]float64(nil), nd.lo...),
		hi: append([]float64(nil), nd.hi...),
	}
	child.lo[j], child.hi[j] = v, v
	return child
}

// Solve implements Solver.
func (b *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	start := time.Now()
	sol := &Solution{Status: NotSolved, Objective: math.Inf(1)}
	if len(m.violated) > 0 {
		sol.Status = Infeasible
		sol.Duration = time.Since(start)
		return sol, nil
	}

	var deadline time.Time
	if b.cfg.TimeLimit > 0 {
		deadline = start.Add(b.cfg.TimeLimit)
	}

	root := bnbNode{lo: make([]float64, len(m.vars)), hi: make([]float64, len(m.vars))}
	for i, v := range m.vars {
		root.lo[i], root.hi[i] = v.Lo, v.Hi
	}

	expired := func() bool {
		return !deadline.IsZero() && time.Now().After(deadline)
	}
	stop := func() bool {
		return ctx.Err() != nil || expired()
	}

	var (
		incumbent []float64
		numeric   error
		limited   bool
	)
	stack := []bnbNode{root}
search:
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if expired() ||
			(b.cfg.MaxNodes > 0 && sol.Nodes >= b.cfg.MaxNodes) {
			limited = true
			break
		}

		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		sol.Nodes++

		res := solveRelaxation(m, nd.lo, nd.hi, stop)
		switch res.status {
		case lpInfeasible:
			continue
		case lpInterrupted:
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			limited = true
			break search
		case lpUnbounded:
			sol.Status = Unbounded
			sol.Duration = time.Since(start)
			return sol, nil
		case lpNumeric:
			j := b.firstUnfixed(m, nd)
			if j < 0 {
				numeric = res.err
				continue
			}
			stack = append(stack, nd.fix(j, 1), nd.fix(j, 0))
			continue
		}

		if incumbent != nil && res.objective >= sol.Objective-b.pruneTol(sol.Objective) {
			continue
		}

		j := b.mostFractional(m, res.values)
		if j < 0 {
			cand := roundBinaries(m, res.values)
			if !m.Feasible(cand) {
				if k := b.firstUnfixed(m, nd); k >= 0 {
					stack = append(stack, nd.fix(k, 1), nd.fix(k, 0))
				}
				continue
			}
			if obj := m.objective.Value(cand); obj < sol.Objective {
				sol.Objective, incumbent = obj, cand
			}
			continue
		}

		if math.Round(res.values[j]) == 1 {
			stack = append(stack, nd.fix(j, 0), nd.fix(j, 1))
		} else {
			stack = append(stack, nd.fix(j, 1), nd.fix(j, 0))
		}
	}

	sol.Duration = time.Since(start)
	sol.Values = incumbent
	switch {
	case incumbent != nil && limited:
		sol.Status = Feasible
	case incumbent != nil:
		sol.Status = Optimal
	case limited:
		sol.Status = NotSolved
	case numeric != nil:
		sol.Status = Error
		return sol, numeric
	default:
		sol.Status = Infeasible
	}
	if incumbent == nil {
		sol.Objective = 0
	}
	return sol, nil
}

func (b *BranchAndBound) pruneTol(incumbent float64) float64 {
	return math.Max(1e-9, b.cfg.Gap*math.Abs(incumbent))
}

// mostFractional returns the binary furthest from integrality, or -1.
func (b *BranchAndBound) mostFractional(m *Model, values []float64) int {
	best, bestFrac := -1, b.cfg.Tolerance
	for i, v := range m.vars {
		if v.Kind != Binary {
			continue
		}
		frac := math.Abs(values[i] - math.Round(values[i]))
		if frac > bestFrac {
			best, bestFrac = i, frac
		}
	}
	return best
}

func (b *BranchAndBound) firstUnfixed(m *Model, nd bnbNode) int {
	for i, v := range m.vars {
		if v.Kind == Binary && nd.lo[i] < nd.hi[i] {
			return i
		}
	}
	return -1
}

func roundBinaries(m *Model, values []float64) []float64 {
	out := append([]float64(nil), values...)
	for i, v := range m.vars {
		if v.Kind == Binary {
			out[i] = math.Round(out[i])
		}
	}
	return out
}
