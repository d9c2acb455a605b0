// Package metrics exposes Prometheus instrumentation for placement runs.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vmplacer"

// Recorder collects solver and placement metrics on its own registry.
// All methods are safe on a nil *Recorder, which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	solveDuration    *prometheus.HistogramVec
	solves           *prometheus.CounterVec
	modelVariables   *prometheus.GaugeVec
	modelConstraints *prometheus.GaugeVec
	solverNodes      *prometheus.GaugeVec
	placedVMs        *prometheus.GaugeVec
	pendingVMs       *prometheus.GaugeVec
	hostsUsed        *prometheus.GaugeVec
	migrations       *prometheus.GaugeVec
}

// NewRecorder creates a recorder with every collector registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		solveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "Time spent computing a placement.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mapper"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "Placement runs by outcome.",
		}, []string{"mapper", "status"}),
		modelVariables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_variables",
			Help:      "Decision variables in the last optimization model.",
		}, []string{"mapper"}),
		modelConstraints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_constraints",
			Help:      "Constraints in the last optimization model.",
		}, []string{"mapper"}),
		solverNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solver_nodes",
			Help:      "Branch-and-bound nodes explored by the last solve.",
		}, []string{"mapper"}),
		placedVMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "placed_vms",
			Help:      "VMs with a host in the last placement.",
		}, []string{"mapper"}),
		pendingVMs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_vms",
			Help:      "VMs left pending by the last placement.",
		}, []string{"mapper"}),
		hostsUsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hosts_used",
			Help:      "Hosts running at least one VM in the last placement.",
		}, []string{"mapper"}),
		migrations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migrations",
			Help:      "VMs moved away from their current host by the last placement.",
		}, []string{"mapper"}),
	}
	r.registry.MustRegister(
		r.solveDuration, r.solves,
		r.modelVariables, r.modelConstraints, r.solverNodes,
		r.placedVMs, r.pendingVMs, r.hostsUsed, r.migrations,
	)
	return r
}

// Registry returns the registry holding the recorder's collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveModel records the size of an optimization model.
func (r *Recorder) ObserveModel(mapper string, variables, constraints int) {
	if r == nil {
		return
	}
	r.modelVariables.WithLabelValues(mapper).Set(float64(variables))
	r.modelConstraints.WithLabelValues(mapper).Set(float64(constraints))
}

// ObserveSolve records one placement run.
func (r *Recorder) ObserveSolve(mapper, status string, d time.Duration, nodes int) {
	if r == nil {
		return
	}
	r.solveDuration.WithLabelValues(mapper).Observe(d.Seconds())
	r.solves.WithLabelValues(mapper, status).Inc()
	r.solverNodes.WithLabelValues(mapper).Set(float64(nodes))
}

// ObservePlacement records the shape of a decoded placement.
func (r *Recorder) ObservePlacement(mapper string, placed, pending, hostsUsed, migrations int) {
	if r == nil {
		return
	}
	r.placedVMs.WithLabelValues(mapper).Set(float64(placed))
	r.pendingVMs.WithLabelValues(mapper).Set(float64(pending))
	r.hostsUsed.WithLabelValues(mapper).Set(float64(hostsUsed))
	r.migrations.WithLabelValues(mapper).Set(float64(migrations))
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
