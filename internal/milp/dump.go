package milp

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a readable listing of the model: every variable with its value,
// every constraint with its slack, and the objective value. Values are shown
// as "-" when the solution carries no assignment.
func Dump(w io.Writer, m *Model, sol *Solution) error {
	status, solverNodes := NotSolved, 0
	if sol != nil {
		status, solverNodes = sol.Status, sol.Nodes
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Status:      %s\n", status)
	fmt.Fprintf(&b, "Variables:   %d\n", m.NumVars())
	fmt.Fprintf(&b, "Constraints: %d\n", m.NumConstraints())
	fmt.Fprintf(&b, "Nodes:       %d\n", solverNodes)
	for _, name := range m.Violated() {
		fmt.Fprintf(&b, "Violated:    %s\n", name)
	}
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 72))

	fmt.Fprintf(&b, "%-48s %-10s %12s\n", "Variable", "Kind", "Value")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 72))
	for _, v := range m.Vars() {
		fmt.Fprintf(&b, "%-48s %-10s %12s\n", v.Name, v.Kind, formatValue(sol, Expr{Terms: []Term{{Var: v.Index, Coef: 1}}}))
	}

	fmt.Fprintf(&b, "\n%-48s %-4s %10s %8s\n", "Constraint", "", "RHS", "Slack")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 72))
	for _, c := range m.Constraints() {
		slack := "-"
		if sol.HasValues() {
			slack = fmt.Sprintf("%.4g", c.Slack(sol.Values))
		}
		fmt.Fprintf(&b, "%-48s %-4s %10.4g %8s\n", c.Name, c.Sense, c.RHS, slack)
	}

	fmt.Fprintf(&b, "\nObjective:   %s\n", formatValue(sol, m.Objective()))

	_, err := io.WriteString(w, b.String())
	return err
}

func formatValue(sol *Solution, e Expr) string {
	if !sol.HasValues() {
		return "-"
	}
	return fmt.Sprintf("%.6g", sol.Value(e))
}
