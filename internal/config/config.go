// Package config holds the vmplacer configuration loaded by the CLI.
package config

import (
	"fmt"
	"slices"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
)

// Mapper strategies.
const (
	StrategyILP = "ilp"
	StrategyBFD = "bfd"
)

// Config is the top-level configuration for vmplacer.
type Config struct {
	Input   InputConfig   `mapstructure:"input"`
	Mapper  MapperConfig  `mapstructure:"mapper"`
	Solver  milp.Config   `mapstructure:"solver"`
	Scoring ScoringConfig `mapstructure:"scoring"`
	Output  OutputConfig  `mapstructure:"output"`
	Log     LogConfig     `mapstructure:"log"`
}

type InputConfig struct {
	// Path of the cluster snapshot (.json, .yaml or .yml).
	Path string `mapstructure:"path"`
}

type MapperConfig struct {
	Strategy string `mapstructure:"strategy"`

	// Criteria is pack, migration_count or balance; balance uses BalanceWeights.
	Criteria       string             `mapstructure:"criteria"`
	BalanceWeights map[string]float64 `mapstructure:"balance_weights"`

	// AllowedMigrations caps migrations; negative means unlimited.
	AllowedMigrations  int                `mapstructure:"allowed_migrations"`
	BalanceConstraints map[string]float64 `mapstructure:"balance_constraints"`
	Preemptive         bool               `mapstructure:"preemptive"`

	// WhatIf lists the strategies, criteria and migration budgets compared by what-if.
	WhatIf WhatIfConfig `mapstructure:"what_if"`
}

type WhatIfConfig struct {
	Strategies  []string `mapstructure:"strategies"`
	Criteria    []string `mapstructure:"criteria"`
	Budgets     []int    `mapstructure:"budgets"`
	Parallelism int      `mapstructure:"parallelism"`
}

type ScoringConfig struct {
	Weights model.ScoringWeights `mapstructure:"weights"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
	TopN   int    `mapstructure:"top_n"`

	// ReportPath receives the mapper's model report when set.
	ReportPath string `mapstructure:"report_path"`

	// MetricsFile receives the solver metrics in Prometheus text format when set.
	MetricsFile string `mapstructure:"metrics_file"`
}

type LogConfig struct {
	Verbose bool `mapstructure:"verbose"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Mapper: MapperConfig{
			Strategy:          StrategyILP,
			Criteria:          mapper.PolicyPack,
			AllowedMigrations: -1,
			WhatIf: WhatIfConfig{
				Strategies: []string{StrategyILP, StrategyBFD},
				Criteria:   []string{mapper.PolicyPack, mapper.PolicyMigrationCount},
			},
		},
		Solver: milp.DefaultConfig(),
		Scoring: ScoringConfig{
			Weights: model.DefaultScoringWeights(),
		},
		Output: OutputConfig{
			Format: "table",
			TopN:   5,
		},
	}
}

// Validate checks the config for consistency.
func (c *Config) Validate() error {
	if !validStrategy(c.Mapper.Strategy) {
		return fmt.Errorf("strategy must be %s or %s, got %q", StrategyILP, StrategyBFD, c.Mapper.Strategy)
	}
	if _, err := c.CriteriaFor(c.Mapper.Criteria); err != nil {
		return err
	}
	for name, bound := range c.Mapper.BalanceConstraints {
		if !mapper.ValidBalance(name) {
			return fmt.Errorf("%w: %q", mapper.ErrUnknownBalance, name)
		}
		if bound < 0 {
			return fmt.Errorf("balance constraint %s must be non-negative, got %v", name, bound)
		}
	}
	if c.Mapper.Preemptive {
		return mapper.ErrPreemptiveUnsupported
	}
	for _, s := range c.Mapper.WhatIf.Strategies {
		if !validStrategy(s) {
			return fmt.Errorf("what_if strategy must be %s or %s, got %q", StrategyILP, StrategyBFD, s)
		}
	}
	for _, name := range c.Mapper.WhatIf.Criteria {
		if _, err := c.CriteriaFor(name); err != nil {
			return fmt.Errorf("what_if: %w", err)
		}
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	w := c.Scoring.Weights
	if w.Placement < 0 || w.Consolidation < 0 || w.Stability < 0 || w.Balance < 0 {
		return fmt.Errorf("scoring weights must be non-negative, got %+v", w)
	}
	validFormats := map[string]bool{"table": true, "json": true, "yaml": true, "markdown": true}
	if !validFormats[c.Output.Format] {
		return fmt.Errorf("output format must be table, json, yaml, or markdown, got %q", c.Output.Format)
	}
	if c.Output.TopN <= 0 {
		c.Output.TopN = 5
	}
	return nil
}

// Criteria returns the configured optimization criteria.
func (c *Config) Criteria() (mapper.Criteria, error) {
	return c.CriteriaFor(c.Mapper.Criteria)
}

// CriteriaFor resolves a criteria name; balance takes the configured weights.
func (c *Config) CriteriaFor(name string) (mapper.Criteria, error) {
	switch name {
	case mapper.PolicyPack:
		return mapper.Pack(), nil
	case mapper.PolicyMigrationCount:
		return mapper.MigrationCount(), nil
	case mapper.PolicyBalance:
		if len(c.Mapper.BalanceWeights) == 0 {
			return mapper.Criteria{}, fmt.Errorf("%w: balance needs balance_weights", mapper.ErrUnknownCriteria)
		}
		for n, w := range c.Mapper.BalanceWeights {
			if !mapper.ValidBalance(n) || w < 0 {
				return mapper.Criteria{}, fmt.Errorf("%w: balance weight %s=%v", mapper.ErrUnknownCriteria, n, w)
			}
		}
		return mapper.Balance(c.Mapper.BalanceWeights), nil
	default:
		return mapper.Criteria{}, fmt.Errorf("%w: %q", mapper.ErrUnknownCriteria, name)
	}
}

// AllowedMigrations returns the migration cap, nil when unlimited.
func (c *Config) AllowedMigrations() *int {
	if c.Mapper.AllowedMigrations < 0 {
		return nil
	}
	n := c.Mapper.AllowedMigrations
	return &n
}

// Budgets returns the what-if migration budgets; negative entries mean unlimited.
func (c *Config) Budgets() []*int {
	if len(c.Mapper.WhatIf.Budgets) == 0 {
		return []*int{c.AllowedMigrations()}
	}
	out := make([]*int, 0, len(c.Mapper.WhatIf.Budgets))
	for _, b := range c.Mapper.WhatIf.Budgets {
		if b < 0 {
			out = append(out, nil)
			continue
		}
		n := b
		out = append(out, &n)
	}
	return out
}

func validStrategy(s string) bool {
	return slices.Contains([]string{StrategyILP, StrategyBFD}, s)
}
