// Package metrics exposes Prometheus collectors for flag resolution, phase
// transitions, automatic rollbacks and configuration reloads.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/metricgate"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
)

const namespace = "rollout"

// Metrics records rollout engine activity. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	resolutions   *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	phaseIndex    *prometheus.GaugeVec
	autoRollbacks *prometheus.CounterVec
	triggered     *prometheus.CounterVec
	feedErrors    *prometheus.CounterVec
	reloads       *prometheus.CounterVec
}

// New registers the collectors on reg. Use prometheus.DefaultRegisterer to
// expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flag",
			Name:      "resolutions_total",
			Help:      "Total flag resolutions by result",
		}, []string{"environment", "flag", "result"}),

		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "phase",
			Name:      "operations_total",
			Help:      "Total administrative phase operations by result",
		}, []string{"environment", "op", "result"}),

		phaseIndex: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "phase",
			Name:      "current_index",
			Help:      "Current phase index per environment",
		}, []string{"environment"}),

		autoRollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "auto_rollbacks_total",
			Help:      "Total automatic rollbacks applied",
		}, []string{"environment", "phase"}),

		triggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "criteria_triggered_total",
			Help:      "Total rollback criteria triggered by live metrics",
		}, []string{"environment", "criterion", "severity"}),

		feedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "feed_errors_total",
			Help:      "Total metric feed fetch failures",
		}, []string{"environment"}),

		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Total configuration reload attempts by result",
		}, []string{"result"}),
	}
}

// ObserveDecision counts a flag decision. It matches feature.Observer.
func (m *Metrics) ObserveDecision(_ context.Context, env string, d feature.Decision) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(env, string(d.Flag), result(d.Enabled, "enabled", "disabled")).Inc()
}

// ObserveTransition counts a phase operation. It matches phase.Hook.
func (m *Metrics) ObserveTransition(_ context.Context, t phase.Transition) {
	if m == nil || t.Op == phase.OpReplace {
		return
	}
	m.transitions.WithLabelValues(t.Environment, string(t.Op), result(t.Err == nil, "applied", "rejected")).Inc()
	if t.Err == nil {
		m.phaseIndex.WithLabelValues(t.Environment).Set(float64(t.ToIndex))
	}
}

// SetPhaseIndex publishes the current index of an environment.
func (m *Metrics) SetPhaseIndex(env string, index int) {
	if m == nil {
		return
	}
	m.phaseIndex.WithLabelValues(env).Set(float64(index))
}

// RecordGate counts triggered criteria and, when applied, the rollback itself.
func (m *Metrics) RecordGate(env, phaseID string, d metricgate.Decision, applied bool) {
	if m == nil {
		return
	}
	for _, t := range d.Triggered {
		m.triggered.WithLabelValues(env, t.Criterion.ID, string(t.Criterion.Severity)).Inc()
	}
	if applied {
		m.autoRollbacks.WithLabelValues(env, phaseID).Inc()
	}
}

// RecordFeedError counts a failed metric fetch.
func (m *Metrics) RecordFeedError(env string) {
	if m == nil {
		return
	}
	m.feedErrors.WithLabelValues(env).Inc()
}

// RecordReload counts a configuration reload attempt.
func (m *Metrics) RecordReload(ok bool) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(result(ok, "success", "failure")).Inc()
}

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
