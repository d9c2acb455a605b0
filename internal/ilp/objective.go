package ilp

import (
	"fmt"
	"math"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/milp"
)

// pendingPenalty keeps leaving a VM pending more expensive than opening a host for it.
const pendingPenalty = 1.1

func (o *Optimizer) setObjective() error {
	pending := o.totalPending()
	migrations := o.totalMigrations()
	migrTie := 1 / (2*float64(o.maxMigrations()) + 1)

	var obj milp.Expr
	switch o.in.Criteria.Policy {
	case mapper.PolicyPack:
		used := make([]milp.Expr, 0, len(o.hostIDs))
		for _, h := range o.hostIDs {
			used = append(used, o.hostUsed[h])
		}
		obj = milp.Sum(milp.Sum(used...), pending.Scale(pendingPenalty), migrations.Scale(migrTie))
	case mapper.PolicyMigrationCount:
		obj = migrations.Plus(pending.Scale(1 / (2*float64(len(o.vmIDs)) + 1)))
	case mapper.PolicyBalance:
		weighted, err := o.weightedBalance()
		if err != nil {
			return err
		}
		obj = milp.Sum(weighted, pending.Scale(pendingPenalty), migrations.Scale(0.01*migrTie))
	default:
		return fmt.Errorf("%w %q: %w", mapper.ErrUnknownCriteria, o.in.Criteria.Policy, mapper.ErrNotImplemented)
	}
	o.model.SetObjective(obj)
	return nil
}

func (o *Optimizer) weightedBalance() (milp.Expr, error) {
	weights := o.in.Criteria.Weights
	if len(weights) == 0 {
		return milp.Expr{}, fmt.Errorf("%w: balance without weights: %w", mapper.ErrUnknownCriteria, mapper.ErrNotImplemented)
	}
	var total float64
	for _, name := range mapper.BalanceNames {
		w, ok := weights[name]
		if !ok {
			continue
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return milp.Expr{}, fmt.Errorf("%w: weight %s=%g", mapper.ErrUnknownCriteria, name, w)
		}
		total += w
	}
	for name := range weights {
		if !mapper.ValidBalance(name) {
			return milp.Expr{}, fmt.Errorf("%w: balance %q: %w", mapper.ErrUnknownCriteria, name, mapper.ErrNotImplemented)
		}
	}
	if total <= 0 {
		return milp.Expr{}, fmt.Errorf("%w: balance weights sum to zero", mapper.ErrUnknownCriteria)
	}
	var terms []milp.Expr
	for _, name := range o.balanceIDs {
		w, ok := weights[name]
		if !ok || w == 0 {
			continue
		}
		terms = append(terms, o.balance[name].Scale(w/total))
	}
	return milp.Sum(terms...), nil
}

func (o *Optimizer) totalPending() milp.Expr {
	terms := make([]milp.Expr, 0, len(o.vmIDs))
	for _, id := range o.vmIDs {
		terms = append(terms, o.pending[id])
	}
	return milp.Sum(terms...)
}

// maxMigrations is the largest number of migrations the model can make.
func (o *Optimizer) maxMigrations() int {
	n := len(o.nMigr)
	if a := o.in.AllowedMigrations; a != nil && *a < n {
		n = max(*a, 0)
	}
	return n
}
