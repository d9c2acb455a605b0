package mapper

import (
	"go.uber.org/zap"

	"github.com/guimove/vmplacer/internal/metrics"
	"github.com/guimove/vmplacer/internal/milp"
)

// Options carries the collaborators of a mapper.
type Options struct {
	// Solver is used by model-based mappers; nil selects the default solver.
	Solver   milp.Solver
	Logger   *zap.Logger
	Recorder *metrics.Recorder
}

// Option configures a mapper.
type Option func(*Options)

// WithSolver sets the MILP solver.
func WithSolver(s milp.Solver) Option {
	return func(o *Options) { o.Solver = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *Options) { o.Recorder = r }
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{Logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
