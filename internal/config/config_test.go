package config

import (
	"errors"
	"testing"

	"github.com/guimove/vmplacer/internal/mapper"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.AllowedMigrations() != nil {
		t.Error("default migrations should be unlimited")
	}
}

func TestValidate_InvalidStrategy(t *testing.T) {
	cfg := Default()
	cfg.Mapper.Strategy = "annealing"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid strategy")
	}

	cfg = Default()
	cfg.Mapper.WhatIf.Strategies = []string{"ilp", "random"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid what-if strategy")
	}
}

func TestValidate_Criteria(t *testing.T) {
	cfg := Default()
	cfg.Mapper.Criteria = "cheapest"
	if err := cfg.Validate(); !errors.Is(err, mapper.ErrUnknownCriteria) {
		t.Errorf("expected ErrUnknownCriteria, got %v", err)
	}

	cfg = Default()
	cfg.Mapper.Criteria = mapper.PolicyBalance
	if err := cfg.Validate(); !errors.Is(err, mapper.ErrUnknownCriteria) {
		t.Errorf("balance without weights: expected ErrUnknownCriteria, got %v", err)
	}

	cfg.Mapper.BalanceWeights = map[string]float64{"memory": 1, "cpu_ratio": 0.5}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, err := cfg.Criteria()
	if err != nil {
		t.Fatal(err)
	}
	if c.String() != "balance(cpu_ratio=0.5,memory=1)" {
		t.Errorf("unexpected criteria %s", c)
	}
}

func TestValidate_BalanceConstraints(t *testing.T) {
	cfg := Default()
	cfg.Mapper.BalanceConstraints = map[string]float64{"disk": 0.5}
	if err := cfg.Validate(); !errors.Is(err, mapper.ErrUnknownBalance) {
		t.Errorf("expected ErrUnknownBalance, got %v", err)
	}
}

func TestValidate_Preemptive(t *testing.T) {
	cfg := Default()
	cfg.Mapper.Preemptive = true
	if err := cfg.Validate(); !errors.Is(err, mapper.ErrPreemptiveUnsupported) {
		t.Errorf("expected ErrPreemptiveUnsupported, got %v", err)
	}
}

func TestValidate_Solver(t *testing.T) {
	cfg := Default()
	cfg.Solver.MaxNodes = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative max_nodes")
	}
}

func TestValidate_InvalidFormat(t *testing.T) {
	cfg := Default()
	cfg.Output.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid output format")
	}
}

func TestValidate_NegativeWeight(t *testing.T) {
	cfg := Default()
	cfg.Scoring.Weights.Stability = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative scoring weight")
	}
}

func TestValidate_TopN_FixesZero(t *testing.T) {
	cfg := Default()
	cfg.Output.TopN = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Output.TopN != 5 {
		t.Errorf("expected TopN to be fixed to 5, got %d", cfg.Output.TopN)
	}
}

func TestAllowedMigrations(t *testing.T) {
	cfg := Default()
	cfg.Mapper.AllowedMigrations = 3
	if got := cfg.AllowedMigrations(); got == nil || *got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestBudgets(t *testing.T) {
	cfg := Default()
	if b := cfg.Budgets(); len(b) != 1 || b[0] != nil {
		t.Errorf("expected one unlimited budget, got %v", b)
	}

	cfg.Mapper.WhatIf.Budgets = []int{-1, 0, 2}
	b := cfg.Budgets()
	if len(b) != 3 || b[0] != nil || *b[1] != 0 || *b[2] != 2 {
		t.Errorf("unexpected budgets %v", b)
	}
}
