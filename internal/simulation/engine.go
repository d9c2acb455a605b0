// Package simulation runs several placement scenarios side by side and ranks
// their outcomes.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/model"
)

var (
	// ErrNoScenarios is returned when RunAll gets nothing to run.
	ErrNoScenarios = errors.New("no what-if scenarios provided")
	// ErrAllScenariosFailed is returned when no scenario produced a result.
	ErrAllScenariosFailed = errors.New("all what-if scenarios failed")
	// ErrUnknownStrategy is returned for a scenario naming an unregistered mapper.
	ErrUnknownStrategy = errors.New("unknown mapper strategy")
)

// Engine orchestrates placement runs across multiple scenarios.
type Engine struct {
	// Mappers maps a strategy name to the constructor of its mapper.
	Mappers     map[string]mapper.Constructor
	Options     []mapper.Option
	Scorer      *Scorer
	Parallelism int
	Logger      *zap.Logger
}

// NewEngine creates a what-if engine.
func NewEngine(mappers map[string]mapper.Constructor, scorer *Scorer, opts ...mapper.Option) *Engine {
	return &Engine{
		Mappers:     mappers,
		Options:     opts,
		Scorer:      scorer,
		Parallelism: runtime.NumCPU(),
		Logger:      zap.NewNop(),
	}
}

// Scenario defines a single placement run configuration.
type Scenario struct {
	Name               string
	Strategy           string
	Criteria           mapper.Criteria
	AllowedMigrations  *int
	BalanceConstraints map[string]float64
}

// RunAll executes all scenarios against the same snapshot and returns ranked
// recommendations. Failed scenarios are logged and skipped.
func (e *Engine) RunAll(
	ctx context.Context,
	scenarios []Scenario,
	state model.ClusterState,
) ([]model.Recommendation, error) {
	if len(scenarios) == 0 {
		return nil, ErrNoScenarios
	}

	results := make([]model.PlacementResult, len(scenarios))
	errs := make([]error, len(scenarios))

	parallelism := e.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	// Run scenarios in parallel using a worker pool
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i, sc := range scenarios {
		wg.Add(1)
		go func(idx int, scenario Scenario) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := e.runOne(ctx, scenario, state)
			results[idx] = result
			errs[idx] = err
		}(i, sc)
	}

	wg.Wait()

	var successful []model.PlacementResult
	for i, err := range errs {
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger().Warn("scenario failed", zap.String("scenario", scenarios[i].Name), zap.Error(err))
			continue
		}
		successful = append(successful, results[i])
	}

	if len(successful) == 0 {
		return nil, ErrAllScenariosFailed
	}

	return e.Scorer.RankResults(successful, Baseline(state)), nil
}

// runOne executes a single scenario with a fresh mapper.
func (e *Engine) runOne(
	ctx context.Context,
	scenario Scenario,
	state model.ClusterState,
) (model.PlacementResult, error) {
	start := time.Now()

	construct, ok := e.Mappers[scenario.Strategy]
	if !ok {
		return model.PlacementResult{}, fmt.Errorf("scenario %q: %w: %q", scenario.Name, ErrUnknownStrategy, scenario.Strategy)
	}

	in := mapper.NewInput(state, scenario.Criteria)
	in.AllowedMigrations = scenario.AllowedMigrations
	in.BalanceConstraints = scenario.BalanceConstraints

	m, err := construct(in, e.Options...)
	if err != nil {
		return model.PlacementResult{}, fmt.Errorf("building mapper for scenario %q: %w", scenario.Name, err)
	}
	if err := m.Map(ctx); err != nil {
		return model.PlacementResult{}, fmt.Errorf("mapping scenario %q: %w", scenario.Name, err)
	}
	placements, err := m.Placements(1)
	if err != nil {
		return model.PlacementResult{}, fmt.Errorf("reading placement of scenario %q: %w", scenario.Name, err)
	}

	result := BuildResult(scenario.Name, scenario.Strategy, StatusOf(m), placements[0], in, time.Since(start))
	e.logger().Debug("scenario done",
		zap.String("scenario", scenario.Name),
		zap.String("status", result.Status),
		zap.Int("placed", result.Placed()),
		zap.Int("pending", len(result.Pending)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// GenerateScenarios creates one scenario per strategy, criteria and
// migration budget combination. A nil budget means unlimited.
func GenerateScenarios(strategies []string, criteria []mapper.Criteria, budgets []*int) []Scenario {
	if len(budgets) == 0 {
		budgets = []*int{nil}
	}
	var scenarios []Scenario
	for _, strategy := range strategies {
		for _, c := range criteria {
			for _, budget := range budgets {
				name := fmt.Sprintf("%s-%s", strategy, c)
				if budget != nil {
					name = fmt.Sprintf("%s-max%d", name, *budget)
				}
				scenarios = append(scenarios, Scenario{
					Name:              name,
					Strategy:          strategy,
					Criteria:          c,
					AllowedMigrations: budget,
				})
			}
		}
	}
	return scenarios
}
