package milp

import (
	"fmt"
	"math"
	"sort"
)

// VarKind distinguishes integral from continuous variables.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

func (k VarKind) String() string {
	if k == Binary {
		return "binary"
	}
	return "continuous"
}

// Var is a decision variable of a Model.
type Var struct {
	Index int
	Name  string
	Kind  VarKind
	Lo    float64
	Hi    float64 // may be +Inf for continuous variables
}

// Term is coef * var.
type Term struct {
	Var  int
	Coef float64
}

// Expr is a linear expression: sum of terms plus a constant.
// Exprs are values; every operation returns a new expression.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Const returns the constant expression c.
func Const(c float64) Expr {
	return Expr{Constant: c}
}

// Sum adds the given expressions.
func Sum(exprs ...Expr) Expr {
	n := 0
	for _, e := range exprs {
		n += len(e.Terms)
	}
	out := Expr{Terms: make([]Term, 0, n)}
	for _, e := range exprs {
		out.Terms = append(out.Terms, e.Terms...)
		out.Constant += e.Constant
	}
	return out
}

// Plus returns e + o.
func (e Expr) Plus(o Expr) Expr {
	return Sum(e, o)
}

// Minus returns e - o.
func (e Expr) Minus(o Expr) Expr {
	return Sum(e, o.Scale(-1))
}

// Scale returns k * e.
func (e Expr) Scale(k float64) Expr {
	out := Expr{Terms: make([]Term, len(e.Terms)), Constant: e.Constant * k}
	for i, t := range e.Terms {
		out.Terms[i] = Term{Var: t.Var, Coef: t.Coef * k}
	}
	return out
}

// IsConstant reports whether the expression has no variable with a non-zero coefficient.
func (e Expr) IsConstant() bool {
	for _, t := range e.Terms {
		if t.Coef != 0 {
			return false
		}
	}
	return true
}

// Value evaluates the expression against a full assignment indexed by variable.
func (e Expr) Value(values []float64) float64 {
	v := e.Constant
	for _, t := range e.Terms {
		v += t.Coef * values[t.Var]
	}
	return v
}

// normalized merges duplicate variables, drops zero coefficients and orders terms by variable.
func (e Expr) normalized() Expr {
	coefs := make(map[int]float64, len(e.Terms))
	for _, t := range e.Terms {
		coefs[t.Var] += t.Coef
	}
	out := Expr{Constant: e.Constant, Terms: make([]Term, 0, len(coefs))}
	for v, c := range coefs {
		if c != 0 {
			out.Terms = append(out.Terms, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out.Terms, func(i, j int) bool { return out.Terms[i].Var < out.Terms[j].Var })
	return out
}

// Sense is the relation of a constraint.
type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	default:
		return "=="
	}
}

// Constraint is Terms (sense) RHS with terms normalized.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Activity evaluates the left-hand side against a full assignment.
func (c Constraint) Activity(values []float64) float64 {
	return Expr{Terms: c.Terms}.Value(values)
}

// Slack returns how far the constraint is from binding; negative when violated.
// For equalities it is minus the absolute residual.
func (c Constraint) Slack(values []float64) float64 {
	a := c.Activity(values)
	switch c.Sense {
	case LessEq:
		return c.RHS - a
	case GreaterEq:
		return a - c.RHS
	default:
		return -math.Abs(a - c.RHS)
	}
}

// Model is a mixed binary linear program in minimization form.
type Model struct {
	vars      []Var
	cons      []Constraint
	objective Expr

	// violated holds the names of constant constraints that can never hold.
	violated []string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// AddBinary adds a 0/1 variable and returns it as an expression.
func (m *Model) AddBinary(name string) Expr {
	return m.addVar(name, Binary, 0, 1)
}

// AddContinuous adds a continuous variable with bounds lo <= v <= hi.
// lo must be finite; hi may be +Inf.
func (m *Model) AddContinuous(name string, lo, hi float64) Expr {
	if hi < lo || math.IsInf(lo, 0) {
		panic(fmt.Sprintf("milp: variable %s has empty domain [%v, %v]", name, lo, hi))
	}
	return m.addVar(name, Continuous, lo, hi)
}

func (m *Model) addVar(name string, kind VarKind, lo, hi float64) Expr {
	idx := len(m.vars)
	m.vars = append(m.vars, Var{Index: idx, Name: name, Kind: kind, Lo: lo, Hi: hi})
	return Expr{Terms: []Term{{Var: idx, Coef: 1}}}
}

// AddConstraint adds lhs (sense) rhs. Constraints whose variables all cancel
// are not stored; if such a constraint is violated the model becomes infeasible.
// It reports whether a constraint was stored.
func (m *Model) AddConstraint(name string, lhs Expr, sense Sense, rhs Expr) bool {
	e := lhs.Minus(rhs).normalized()
	c := Constraint{Name: name, Terms: e.Terms, Sense: sense, RHS: -e.Constant}
	if len(c.Terms) == 0 {
		if c.Slack(nil) < -feasibilityTol {
			m.violated = append(m.violated, name)
		}
		return false
	}
	m.cons = append(m.cons, c)
	return true
}

// SetObjective sets the expression to minimize.
func (m *Model) SetObjective(e Expr) {
	m.objective = e.normalized()
}

// Objective returns the expression being minimized.
func (m *Model) Objective() Expr {
	return m.objective
}

// Vars returns the model variables in creation order.
func (m *Model) Vars() []Var {
	return m.vars
}

// Constraints returns the stored constraints in creation order.
func (m *Model) Constraints() []Constraint {
	return m.cons
}

// NumVars returns the number of variables.
func (m *Model) NumVars() int {
	return len(m.vars)
}

// NumConstraints returns the number of stored constraints.
func (m *Model) NumConstraints() int {
	return len(m.cons)
}

// Violated returns the names of constant constraints that can never be satisfied.
func (m *Model) Violated() []string {
	return m.violated
}

// Feasible checks every constraint and bound against a full assignment.
func (m *Model) Feasible(values []float64) bool {
	if len(m.violated) > 0 || len(values) != len(m.vars) {
		return false
	}
	for _, v := range m.vars {
		x := values[v.Index]
		if x < v.Lo-feasibilityTol || x > v.Hi+feasibilityTol {
			return false
		}
	}
	for _, c := range m.cons {
		if c.Slack(values) < -feasibilityTol*(1+math.Abs(c.RHS)) {
			return false
		}
	}
	return true
}
