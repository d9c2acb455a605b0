package milp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpNumeric
	lpInterrupted
)

type lpResult struct {
	status    lpStatus
	values    []float64
	objective float64
	err       error
}

type stdRow struct {
	terms []Term // Var holds the standard-form column
	sense Sense
	rhs   float64
}

// solveRelaxation solves the LP relaxation of m with per-variable bounds lo/hi.
//
// Variables are shifted to x' = x - lo >= 0, fixed variables are substituted,
// finite upper bounds become rows, and every row receives its own slack or
// artificial column so the standard form A x = b, x >= 0 has full row rank and
// an identity starting basis. Phase one drives the artificials to zero, phase
// two optimizes the objective with the artificials barred from the basis.
// stop is polled while pivoting; when it reports true the relaxation is
// abandoned as interrupted.
func solveRelaxation(m *Model, lo, hi []float64, stop func() bool) (res lpResult) {
	n := len(m.vars)
	values := make([]float64, n)
	cost := make([]float64, n)
	for _, t := range m.objective.Terms {
		cost[t.Var] += t.Coef
	}
	appears := make([]bool, n)
	for _, c := range m.cons {
		for _, t := range c.Terms {
			appears[t.Var] = true
		}
	}

	col := make([]int, n)
	var free []int
	for i := range m.vars {
		values[i] = lo[i]
		col[i] = -1
		switch {
		case hi[i] <= lo[i]:
		case !appears[i] && math.IsInf(hi[i], 1):
			if cost[i] < 0 {
				return lpResult{status: lpUnbounded}
			}
		case !appears[i]:
			if cost[i] < 0 {
				values[i] = hi[i]
			}
		default:
			col[i] = len(free)
			free = append(free, i)
		}
	}

	rows := make([]stdRow, 0, len(m.cons)+len(free))
	for _, c := range m.cons {
		r := stdRow{sense: c.Sense, rhs: c.RHS}
		for _, t := range c.Terms {
			if col[t.Var] < 0 {
				r.rhs -= t.Coef * values[t.Var]
				continue
			}
			r.rhs -= t.Coef * lo[t.Var]
			r.terms = append(r.terms, Term{Var: col[t.Var], Coef: t.Coef})
		}
		if len(r.terms) == 0 {
			if (Constraint{Sense: r.sense, RHS: r.rhs}).Slack(nil) < -feasibilityTol {
				return lpResult{status: lpInfeasible}
			}
			continue
		}
		rows = append(rows, r)
	}
	for _, i := range free {
		if !math.IsInf(hi[i], 1) {
			rows = append(rows, stdRow{terms: []Term{{Var: col[i], Coef: 1}}, sense: LessEq, rhs: hi[i] - lo[i]})
		}
	}

	if len(rows) == 0 {
		return lpResult{status: lpOptimal, values: values, objective: m.objective.Value(values)}
	}

	type aux struct {
		sign      float64
		slack     int
		slackCoef float64
		art       int
	}
	ncols := len(free)
	auxs := make([]aux, len(rows))
	for r, row := range rows {
		a := aux{sign: 1, slack: -1, art: -1}
		switch row.sense {
		case LessEq:
			a.slack, a.slackCoef = ncols, 1
			ncols++
			if row.rhs < 0 {
				a.sign, a.slackCoef = -1, -1
				a.art = ncols
				ncols++
			}
		case GreaterEq:
			a.slack, a.slackCoef = ncols, -1
			ncols++
			if row.rhs <= 0 {
				a.sign, a.slackCoef = -1, 1
			} else {
				a.art = ncols
				ncols++
			}
		case Equal:
			if row.rhs < 0 {
				a.sign = -1
			}
			a.art = ncols
			ncols++
		}
		auxs[r] = a
	}

	A := mat.NewDense(len(rows), ncols, nil)
	b := make([]float64, len(rows))
	basis := make([]int, len(rows))
	artificial := make([]bool, ncols)
	for r, row := range rows {
		a := auxs[r]
		for _, t := range row.terms {
			A.Set(r, t.Var, A.At(r, t.Var)+a.sign*t.Coef)
		}
		b[r] = a.sign * row.rhs
		if a.slack >= 0 {
			A.Set(r, a.slack, a.slackCoef)
			basis[r] = a.slack
		}
		if a.art >= 0 {
			A.Set(r, a.art, 1)
			artificial[a.art] = true
			basis[r] = a.art
		}
	}

	// gonum panics on malformed matrices instead of returning an error.
	defer func() {
		if p := recover(); p != nil {
			res = lpResult{status: lpNumeric, err: fmt.Errorf("%w: %v", ErrNumeric, p)}
		}
	}()

	tb := newTableau(A, b, basis, stop)
	phase1 := make([]float64, ncols)
	scale := 1.0
	for j, isArt := range artificial {
		if isArt {
			phase1[j] = 1
		}
	}
	for _, v := range b {
		scale = math.Max(scale, math.Abs(v))
	}
	if done, out := relaxOutcome(tb.optimize(phase1)); done {
		return out
	}
	if tb.objective() > feasibilityTol*scale {
		return lpResult{status: lpInfeasible}
	}
	tb.evict(artificial)
	copy(tb.blocked, artificial)

	phase2 := make([]float64, ncols)
	for k, i := range free {
		phase2[k] = cost[i]
	}
	if done, out := relaxOutcome(tb.optimize(phase2)); done {
		return out
	}

	x := tb.solution()
	for k, i := range free {
		values[i] = math.Min(hi[i], lo[i]+x[k])
	}
	return lpResult{status: lpOptimal, values: values, objective: m.objective.Value(values)}
}

// relaxOutcome maps a non-optimal simplex status to a relaxation result.
func relaxOutcome(s simplexStatus) (bool, lpResult) {
	switch s {
	case simplexUnbounded:
		return true, lpResult{status: lpUnbounded}
	case simplexInterrupted:
		return true, lpResult{status: lpInterrupted}
	case simplexStalled:
		return true, lpResult{status: lpNumeric, err: fmt.Errorf("%w: pivot limit reached", ErrNumeric)}
	default:
		return false, lpResult{}
	}
}
