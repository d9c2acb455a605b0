// Package orchestrator wires snapshot loading, mappers, what-if runs and
// reporting into the pipelines behind the CLI commands.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/config"
	"github.com/guimove/vmplacer/internal/heuristic"
	"github.com/guimove/vmplacer/internal/ilp"
	"github.com/guimove/vmplacer/internal/mapper"
	"github.com/guimove/vmplacer/internal/matching"
	"github.com/guimove/vmplacer/internal/metrics"
	"github.com/guimove/vmplacer/internal/milp"
	"github.com/guimove/vmplacer/internal/model"
	"github.com/guimove/vmplacer/internal/report"
	"github.com/guimove/vmplacer/internal/simulation"
	"github.com/guimove/vmplacer/internal/snapshot"
)

// Mappers returns the constructors of the available mapper strategies.
func Mappers() map[string]mapper.Constructor {
	return map[string]mapper.Constructor{
		config.StrategyILP: ilp.NewMapper,
		config.StrategyBFD: heuristic.NewMapper,
	}
}

// Orchestrator coordinates the end-to-end placement pipeline.
type Orchestrator struct {
	Loader snapshot.Loader
	Config config.Config
	Writer io.Writer
	Logger *zap.Logger
}

// New creates an orchestrator with the given dependencies.
func New(loader snapshot.Loader, cfg config.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Loader: loader,
		Config: cfg,
		Writer: os.Stdout,
		Logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// Place runs the configured mapper once over the snapshot and reports the result.
func (o *Orchestrator) Place(ctx context.Context) (model.PlacementResult, error) {
	cfg := o.Config

	state, err := o.load(ctx)
	if err != nil {
		return model.PlacementResult{}, err
	}

	criteria, err := cfg.Criteria()
	if err != nil {
		return model.PlacementResult{}, err
	}
	in := mapper.NewInput(*state, criteria)
	in.AllowedMigrations = cfg.AllowedMigrations()
	in.BalanceConstraints = cfg.Mapper.BalanceConstraints
	in.Preemptive = cfg.Mapper.Preemptive

	construct, ok := Mappers()[cfg.Mapper.Strategy]
	if !ok {
		return model.PlacementResult{}, fmt.Errorf("%w: %q", simulation.ErrUnknownStrategy, cfg.Mapper.Strategy)
	}

	recorder := o.recorder()
	opts, err := o.options(recorder)
	if err != nil {
		return model.PlacementResult{}, err
	}

	o.logger().Info("placing",
		zap.String("strategy", cfg.Mapper.Strategy),
		zap.Stringer("criteria", criteria),
		zap.Int("vms", len(in.VMs)),
		zap.Int("hosts", len(in.Hosts)))

	start := time.Now()
	m, err := construct(in, opts...)
	if err != nil {
		return model.PlacementResult{}, fmt.Errorf("building mapper: %w", err)
	}
	if err := m.Map(ctx); err != nil {
		return model.PlacementResult{}, fmt.Errorf("mapping: %w", err)
	}
	placements, err := m.Placements(1)
	if err != nil {
		return model.PlacementResult{}, fmt.Errorf("reading placement: %w", err)
	}
	result := simulation.BuildResult(cfg.Mapper.Strategy+"-"+criteria.String(), cfg.Mapper.Strategy,
		simulation.StatusOf(m), placements[0], in, time.Since(start))

	if cfg.Output.ReportPath != "" {
		if _, err := m.Report(cfg.Output.ReportPath); err != nil {
			return model.PlacementResult{}, fmt.Errorf("writing model report: %w", err)
		}
	}
	if err := o.writeMetrics(recorder); err != nil {
		return model.PlacementResult{}, err
	}

	recs := simulation.NewScorer(cfg.Scoring.Weights).RankResults(
		[]model.PlacementResult{result}, simulation.Baseline(*state))
	meta := o.meta(state)
	meta.ShowAllocations = true
	if err := report.NewReporter(cfg.Output.Format, o.Writer).Report(ctx, recs, meta); err != nil {
		return model.PlacementResult{}, fmt.Errorf("generating report: %w", err)
	}
	return result, nil
}

// WhatIf runs every configured strategy, criteria and migration budget
// combination and reports the top ranked outcomes.
func (o *Orchestrator) WhatIf(ctx context.Context) ([]model.Recommendation, error) {
	cfg := o.Config

	state, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	criteria := make([]mapper.Criteria, 0, len(cfg.Mapper.WhatIf.Criteria))
	for _, name := range cfg.Mapper.WhatIf.Criteria {
		c, err := cfg.CriteriaFor(name)
		if err != nil {
			return nil, err
		}
		criteria = append(criteria, c)
	}
	scenarios := simulation.GenerateScenarios(cfg.Mapper.WhatIf.Strategies, criteria, cfg.Budgets())
	for i := range scenarios {
		scenarios[i].BalanceConstraints = cfg.Mapper.BalanceConstraints
	}

	recorder := o.recorder()
	opts, err := o.options(recorder)
	if err != nil {
		return nil, err
	}

	engine := simulation.NewEngine(Mappers(), simulation.NewScorer(cfg.Scoring.Weights), opts...)
	engine.Logger = o.logger()
	if cfg.Mapper.WhatIf.Parallelism > 0 {
		engine.Parallelism = cfg.Mapper.WhatIf.Parallelism
	}

	o.logger().Info("running what-if scenarios", zap.Int("scenarios", len(scenarios)))
	recs, err := engine.RunAll(ctx, scenarios, *state)
	if err != nil {
		return nil, fmt.Errorf("running scenarios: %w", err)
	}

	if cfg.Output.TopN > 0 && len(recs) > cfg.Output.TopN {
		recs = recs[:cfg.Output.TopN]
	}
	if err := o.writeMetrics(recorder); err != nil {
		return nil, err
	}

	if err := report.NewReporter(cfg.Output.Format, o.Writer).Report(ctx, recs, o.meta(state)); err != nil {
		return nil, fmt.Errorf("generating report: %w", err)
	}
	return recs, nil
}

// VMMatch lists the candidates found for one VM.
type VMMatch struct {
	VMID    int                            `json:"vm_id"`
	State   model.VMState                  `json:"state"`
	Hosts   []int                          `json:"hosts"`
	PCI     []matching.PCIDeviceMatch      `json:"pci,omitempty"`
	Storage map[int]matching.DStoreMatches `json:"storage,omitempty"`
	VNets   map[int][]int                  `json:"vnets,omitempty"`
}

// Match runs the matching engine alone and returns the candidates of every VM,
// ordered by VM id.
func (o *Orchestrator) Match(ctx context.Context) ([]VMMatch, bool, error) {
	state, err := o.load(ctx)
	if err != nil {
		return nil, false, err
	}
	in := mapper.NewInput(*state, mapper.Pack())
	in.Preemptive = o.Config.Mapper.Preemptive
	free := in.AllPending() && !in.Preemptive
	matcher := matching.NewMatcher(in.Hosts, in.DStores, in.VNets, free)

	out := make([]VMMatch, 0, len(in.VMs))
	for _, id := range in.SortedVMIDs() {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		vm := in.VMs[id]
		hm := matcher.FindHostMatches(vm)
		out = append(out, VMMatch{
			VMID:    id,
			State:   vm.State,
			Hosts:   hm.Hosts,
			PCI:     hm.PCIDevices,
			Storage: matcher.FindStorageMatches(vm, hm.Hosts),
			VNets:   matcher.VNetCandidates(vm),
		})
	}
	return out, free, nil
}

func (o *Orchestrator) load(ctx context.Context) (*model.ClusterState, error) {
	if err := o.Loader.Ping(ctx); err != nil {
		return nil, err
	}
	state, err := o.Loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	o.logger().Debug("snapshot loaded",
		zap.String("source", o.Loader.Source()),
		zap.Int("vms", len(state.VMs)),
		zap.Int("pending", state.PendingCount()),
		zap.Int("hosts", len(state.Hosts)))
	return state, nil
}

func (o *Orchestrator) options(recorder *metrics.Recorder) ([]mapper.Option, error) {
	solver, err := milp.New(o.Config.Solver)
	if err != nil {
		return nil, err
	}
	return []mapper.Option{
		mapper.WithSolver(solver),
		mapper.WithLogger(o.logger()),
		mapper.WithRecorder(recorder),
	}, nil
}

// recorder returns a metrics recorder when a metrics file is configured, nil otherwise.
func (o *Orchestrator) recorder() *metrics.Recorder {
	if o.Config.Output.MetricsFile == "" {
		return nil
	}
	return metrics.NewRecorder()
}

func (o *Orchestrator) writeMetrics(r *metrics.Recorder) error {
	if r == nil {
		return nil
	}
	if err := r.WriteTextfile(o.Config.Output.MetricsFile); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

func (o *Orchestrator) meta(state *model.ClusterState) report.ReportMeta {
	return report.ReportMeta{
		ClusterName: state.Name,
		Source:      o.Loader.Source(),
		CollectedAt: state.CollectedAt,
		TotalVMs:    len(state.VMs),
		PendingVMs:  state.PendingCount(),
		TotalHosts:  len(state.Hosts),
	}
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}
