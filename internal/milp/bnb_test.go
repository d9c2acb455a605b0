package milp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solve(t *testing.T, m *Model) *Solution {
	t.Helper()

	sol, err := NewBranchAndBound(DefaultConfig()).Solve(context.Background(), m)
	require.NoError(t, err)
	return sol
}

// knapsack: maximize 5a + 4b + 3c subject to 2a + 3b + c <= 5.
func knapsack() (*Model, []Expr) {
	m := NewModel()
	a := m.AddBinary("a")
	b := m.AddBinary("b")
	c := m.AddBinary("c")
	m.AddConstraint("weight", Sum(a.Scale(2), b.Scale(3), c), LessEq, Const(5))
	m.SetObjective(Sum(a.Scale(5), b.Scale(4), c.Scale(3)).Scale(-1))
	return m, []Expr{a, b, c}
}

func TestBranchAndBound_Knapsack(t *testing.T) {
	t.Parallel()

	m, xs := knapsack()
	sol := solve(t, m)

	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, -9, sol.Objective, 1e-6)
	assert.InDelta(t, 1, sol.Value(xs[0]), 1e-6)
	assert.InDelta(t, 1, sol.Value(xs[1]), 1e-6)
	assert.InDelta(t, 0, sol.Value(xs[2]), 1e-6)
	assert.True(t, m.Feasible(sol.Values))
}

func TestBranchAndBound_Assignment(t *testing.T) {
	t.Parallel()

	m := NewModel()
	x := m.AddBinary("x")
	y := m.AddBinary("y")
	z := m.AddBinary("z")
	m.AddConstraint("exactly-one", Sum(x, y, z), Equal, Const(1))
	m.SetObjective(Sum(x.Scale(3), y.Scale(2), z))

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 1, sol.Objective, 1e-6)
	assert.InDelta(t, 1, sol.Value(z), 1e-6)
}

func TestBranchAndBound_MixedContinuous(t *testing.T) {
	t.Parallel()

	// minimize t with t >= 2x, t >= 1 - x and x + w >= 1 where w costs 5.
	m := NewModel()
	x := m.AddBinary("x")
	w := m.AddBinary("w")
	tv := m.AddContinuous("t", 0, math.Inf(1))
	m.AddConstraint("t-x", tv, GreaterEq, x.Scale(2))
	m.AddConstraint("t-not-x", tv, GreaterEq, Const(1).Minus(x))
	m.AddConstraint("cover", x.Plus(w), GreaterEq, Const(1))
	m.SetObjective(tv.Plus(w.Scale(5)))

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 2, sol.Objective, 1e-6)
	assert.InDelta(t, 1, sol.Value(x), 1e-6)
	assert.InDelta(t, 2, sol.Value(tv), 1e-6)
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	t.Parallel()

	m := NewModel()
	x := m.AddBinary("x")
	y := m.AddBinary("y")
	m.AddConstraint("too-many", x.Plus(y), GreaterEq, Const(3))
	m.SetObjective(x.Plus(y))

	sol := solve(t, m)
	assert.Equal(t, Infeasible, sol.Status)
	assert.False(t, sol.HasValues())
}

func TestBranchAndBound_ViolatedConstant(t *testing.T) {
	t.Parallel()

	m := NewModel()
	m.AddBinary("x")
	m.AddConstraint("never", Const(2), LessEq, Const(1))

	sol := solve(t, m)
	assert.Equal(t, Infeasible, sol.Status)
	assert.Equal(t, []string{"never"}, m.Violated())
}

func TestBranchAndBound_Unbounded(t *testing.T) {
	t.Parallel()

	m := NewModel()
	tv := m.AddContinuous("t", 0, math.Inf(1))
	m.AddConstraint("floor", tv, GreaterEq, Const(1))
	m.SetObjective(tv.Scale(-1))

	sol := solve(t, m)
	assert.Equal(t, Unbounded, sol.Status)
}

func TestBranchAndBound_EmptyModel(t *testing.T) {
	t.Parallel()

	m := NewModel()
	m.SetObjective(Const(7))

	sol := solve(t, m)
	require.Equal(t, Optimal, sol.Status)
	assert.Equal(t, 7.0, sol.Objective)
}

func TestBranchAndBound_NodeLimit(t *testing.T) {
	t.Parallel()

	m, _ := knapsack()
	cfg := DefaultConfig()
	cfg.MaxNodes = 1

	sol, err := NewBranchAndBound(cfg).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, NotSolved, sol.Status)
	assert.Equal(t, 1, sol.Nodes)
}

func TestBranchAndBound_Cancelled(t *testing.T) {
	t.Parallel()

	m, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBranchAndBound(DefaultConfig()).Solve(ctx, m)
	assert.True(t, errors.Is(err, context.Canceled))
}

// binPacking places items into identical bins, minimizing the bins used.
func binPacking(bins int, sizes []float64, capacity float64) *Model {
	m := NewModel()
	used := make([]Expr, bins)
	for b := range bins {
		used[b] = m.AddBinary(fmt.Sprintf("y[%d]", b))
	}
	load := make([][]Expr, bins)
	for i := range sizes {
		row := make([]Expr, bins)
		for b := range bins {
			x := m.AddBinary(fmt.Sprintf("x[%d,%d]", i, b))
			m.AddConstraint(fmt.Sprintf("open[%d,%d]", i, b), x, LessEq, used[b])
			row[b] = x
			load[b] = append(load[b], x.Scale(sizes[i]))
		}
		m.AddConstraint(fmt.Sprintf("assign[%d]", i), Sum(row...), Equal, Const(1))
	}
	for b := range bins {
		m.AddConstraint(fmt.Sprintf("capacity[%d]", b), Sum(load[b]...), LessEq, used[b].Scale(capacity))
	}
	m.SetObjective(Sum(used...))
	return m
}

func TestBranchAndBound_DegenerateBinPacking(t *testing.T) {
	t.Parallel()

	m := binPacking(3, []float64{2, 3, 4, 5, 6, 2}, 16)
	cfg := DefaultConfig()
	cfg.TimeLimit = 5 * time.Second

	start := time.Now()
	sol, err := NewBranchAndBound(cfg).Solve(context.Background(), m)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), cfg.TimeLimit+time.Second)
	require.Equal(t, Optimal, sol.Status)
	assert.InDelta(t, 2, sol.Objective, 1e-6)
	assert.True(t, m.Feasible(sol.Values))
}

func TestBranchAndBound_TimeLimit(t *testing.T) {
	t.Parallel()

	m := binPacking(6, []float64{2, 3, 4, 5, 6, 2, 3, 4, 5, 6, 2, 3}, 16)
	cfg := DefaultConfig()
	cfg.TimeLimit = time.Nanosecond

	sol, err := NewBranchAndBound(cfg).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, NotSolved, sol.Status)
}

// cancelAfter reports cancellation once Err has been called more than limit times.
type cancelAfter struct {
	context.Context
	calls, limit int
}

func (c *cancelAfter) Err() error {
	c.calls++
	if c.calls > c.limit {
		return context.Canceled
	}
	return nil
}

func TestBranchAndBound_CancelledDuringRelaxation(t *testing.T) {
	t.Parallel()

	m, _ := knapsack()
	ctx := &cancelAfter{Context: context.Background(), limit: 1}

	_, err := NewBranchAndBound(DefaultConfig()).Solve(ctx, m)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 3, ctx.calls)
}

func TestBranchAndBound_Deterministic(t *testing.T) {
	t.Parallel()

	// Two symmetric optima: the solver must pick the same one every time.
	build := func() *Model {
		m := NewModel()
		x := m.AddBinary("x")
		y := m.AddBinary("y")
		m.AddConstraint("one", x.Plus(y), Equal, Const(1))
		m.SetObjective(x.Plus(y))
		return m
	}

	first := solve(t, build())
	for range 5 {
		assert.Equal(t, first.Values, solve(t, build()).Values)
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, BranchAndBoundName, s.Name())

	s, err = New(Config{Name: "bnb"})
	require.NoError(t, err)
	assert.Equal(t, BranchAndBoundName, s.Name())

	_, err = New(Config{Name: "cplex"})
	assert.ErrorIs(t, err, ErrUnknownSolver)

	_, err = New(Config{MaxNodes: -1})
	assert.Error(t, err)
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "optimal", Optimal.String())
	assert.Equal(t, "infeasible", Infeasible.String())
	assert.Equal(t, "not_solved", NotSolved.String())
}

func TestDump(t *testing.T) {
	t.Parallel()

	m, _ := knapsack()
	var before bytes.Buffer
	require.NoError(t, Dump(&before, m, nil))
	assert.Contains(t, before.String(), "Status:      not_solved")
	assert.Contains(t, before.String(), "weight")
	assert.Contains(t, before.String(), "Objective:   -")

	sol := solve(t, m)
	var after bytes.Buffer
	require.NoError(t, Dump(&after, m, sol))
	out := after.String()
	assert.Contains(t, out, "Status:      optimal")
	assert.Contains(t, out, "Objective:   -9")
	assert.Regexp(t, `a\s+binary\s+1`, out)
}
