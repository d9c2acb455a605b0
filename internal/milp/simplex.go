package milp

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	pivotTol       = 1e-9
	reducedTol     = 1e-9
	pollEvery      = 16
	maxPivotFactor = 50
)

type simplexStatus int

const (
	simplexOptimal simplexStatus = iota
	simplexUnbounded
	simplexStalled
	simplexInterrupted
)

// tableau is a dense simplex tableau over A x = b, x >= 0, b >= 0. Rows 0..m-1
// hold the constraints, row m the reduced costs; the last column holds the
// right-hand side, and minus the objective value in the cost row.
type tableau struct {
	t       *mat.Dense
	m, n    int
	basis   []int
	blocked []bool

	// stop is polled between pivots; true aborts the solve.
	stop func() bool
}

// newTableau builds the tableau for A x = b with the given starting basis,
// which must be an identity submatrix of A with b >= 0.
func newTableau(a *mat.Dense, b []float64, basis []int, stop func() bool) *tableau {
	m, n := a.Dims()
	t := mat.NewDense(m+1, n+1, nil)
	t.Slice(0, m, 0, n).(*mat.Dense).Copy(a)
	for i, v := range b {
		t.Set(i, n, v)
	}
	return &tableau{
		t:       t,
		m:       m,
		n:       n,
		basis:   append([]int(nil), basis...),
		blocked: make([]bool, n),
		stop:    stop,
	}
}

func (tb *tableau) row(i int) []float64 {
	return tb.t.RawRowView(i)
}

// price loads cost into the reduced-cost row for the current basis.
func (tb *tableau) price(cost []float64) {
	obj := tb.row(tb.m)
	copy(obj, cost)
	obj[tb.n] = 0
	for i, j := range tb.basis {
		if cb := obj[j]; cb != 0 {
			floats.AddScaled(obj, -cb, tb.row(i))
		}
	}
}

func (tb *tableau) pivot(r, c int) {
	pr := tb.row(r)
	floats.Scale(1/pr[c], pr)
	pr[c] = 1
	for i := 0; i <= tb.m; i++ {
		if i == r {
			continue
		}
		row := tb.row(i)
		if f := row[c]; f != 0 {
			floats.AddScaled(row, -f, pr)
			row[c] = 0
			if i < tb.m && row[tb.n] < 0 && row[tb.n] > -pivotTol {
				row[tb.n] = 0
			}
		}
	}
	tb.basis[r] = c
}

// entering picks the column to enter the basis, -1 at optimality. Dantzig's
// rule is used until a degenerate pivot happens, Bland's rule afterwards,
// which rules out cycling.
func (tb *tableau) entering(bland bool) int {
	obj := tb.row(tb.m)
	best, bestCost := -1, -reducedTol
	for j := 0; j < tb.n; j++ {
		if tb.blocked[j] || obj[j] >= -reducedTol {
			continue
		}
		if bland {
			return j
		}
		if obj[j] < bestCost {
			best, bestCost = j, obj[j]
		}
	}
	return best
}

// leaving runs the ratio test on column c; ties go to the smallest basic
// column index. It returns -1 when the column is unbounded.
func (tb *tableau) leaving(c int) (int, float64) {
	best, bestRatio := -1, math.Inf(1)
	for i := 0; i < tb.m; i++ {
		row := tb.row(i)
		if row[c] <= pivotTol {
			continue
		}
		ratio := row[tb.n] / row[c]
		if ratio < bestRatio-pivotTol || (ratio <= bestRatio+pivotTol && best >= 0 && tb.basis[i] < tb.basis[best]) {
			best, bestRatio = i, ratio
		}
	}
	return best, bestRatio
}

// optimize minimizes cost from the current basic feasible solution.
func (tb *tableau) optimize(cost []float64) simplexStatus {
	tb.price(cost)
	limit := maxPivotFactor * (tb.m + tb.n)
	degenerate := false
	for it := 0; ; it++ {
		if it%pollEvery == 0 && tb.stop != nil && tb.stop() {
			return simplexInterrupted
		}
		if it >= limit {
			return simplexStalled
		}
		c := tb.entering(degenerate)
		if c < 0 {
			return simplexOptimal
		}
		r, ratio := tb.leaving(c)
		if r < 0 {
			return simplexUnbounded
		}
		degenerate = ratio <= pivotTol
		tb.pivot(r, c)
	}
}

// objective returns the cost of the current basic solution.
func (tb *tableau) objective() float64 {
	return -tb.t.At(tb.m, tb.n)
}

// evict pivots basic columns in cols out of the basis where another column
// can take their row; rows where none can are redundant and stay as they are.
func (tb *tableau) evict(cols []bool) {
	for i, j := range tb.basis {
		if !cols[j] {
			continue
		}
		row := tb.row(i)
		for k := 0; k < tb.n; k++ {
			if !cols[k] && math.Abs(row[k]) > pivotTol {
				tb.pivot(i, k)
				break
			}
		}
	}
}

// solution returns the value of every column.
func (tb *tableau) solution() []float64 {
	x := make([]float64, tb.n)
	for i, j := range tb.basis {
		x[j] = math.Max(0, tb.t.At(i, tb.n))
	}
	return x
}
