package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/metricgate"
	"github.com/dmitrymomot/rolloutkit/pkg/metrics"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

// Reasons a warranted rollback was not applied.
const (
	SkipDisabled     = "environment disabled"
	SkipAutoRollback = "auto rollback disabled in settings"
	SkipOverride     = "environment pinned to an override phase"
	SkipFirstPhase   = "already at first phase"
	SkipMoved        = "phase pointer moved since evaluation"
)

// Controller is the part of *phase.Manager the monitor drives.
type Controller interface {
	Status(env string) (phase.EnvironmentStatus, error)
	RollbackPhaseFrom(ctx context.Context, env string, from int) error
	UpdatePhaseStatus(ctx context.Context, phaseID string, status rollout.PhaseStatus, env string) error
	Settings() rollout.Settings
	Environments() []string
}

// MetricSource supplies already-computed metric values for an environment.
type MetricSource interface {
	Fetch(ctx context.Context, env string) (map[string]float64, error)
}

// SourceFunc adapts a function to MetricSource.
type SourceFunc func(ctx context.Context, env string) (map[string]float64, error)

func (f SourceFunc) Fetch(ctx context.Context, env string) (map[string]float64, error) {
	return f(ctx, env)
}

// Result is the outcome of one metric feed evaluation.
type Result struct {
	Environment string                   `json:"environment"`
	PhaseID     string                   `json:"phase_id,omitempty"`
	Decision    metricgate.Decision      `json:"decision"`
	Success     metricgate.SuccessReport `json:"success"`
	// RolledBack is true when the environment pointer moved back.
	RolledBack bool `json:"rolled_back"`
	// MarkedRolledBack is true when the evaluated phase status became rolled_back.
	MarkedRolledBack bool `json:"marked_rolled_back"`
	// Skipped explains why a warranted rollback was not fully applied.
	Skipped string `json:"skipped,omitempty"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSource sets the metric source polled by Run.
func WithSource(s MetricSource) Option {
	return func(m *Monitor) { m.source = s }
}

// WithInterval sets the polling interval of Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithConcurrency bounds how many environments are evaluated at once.
func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics records gate outcomes and feed errors.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// WithResultHandler receives every result produced by Run.
func WithResultHandler(h func(context.Context, Result)) Option {
	return func(m *Monitor) { m.onResult = h }
}

// Monitor evaluates live metrics against the current phase's rollback criteria
// and rolls back automatically when the gate says so and settings allow it.
type Monitor struct {
	ctrl        Controller
	source      MetricSource
	interval    time.Duration
	concurrency int
	log         *slog.Logger
	metrics     *metrics.Metrics
	onResult    func(context.Context, Result)
}

// New creates a monitor over ctrl.
func New(ctrl Controller, opts ...Option) *Monitor {
	m := &Monitor{
		ctrl:        ctrl,
		interval:    time.Minute,
		concurrency: 4,
		log:         logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EvaluateRollback runs the metric gate for the current phase of env. When the
// gate calls for a rollback and settings.AutoRollback is on, the environment
// moves back one phase and the evaluated phase is marked rolled_back if it was
// active. The rollback only applies while env still points at the evaluated
// phase; concurrent feeds therefore move the pointer back at most once.
// Missing metrics never trigger a rollback.
func (m *Monitor) EvaluateRollback(ctx context.Context, env string, live map[string]float64) (Result, error) {
	st, err := m.ctrl.Status(env)
	if err != nil {
		return Result{Environment: env}, err
	}

	res := Result{Environment: st.Name, PhaseID: st.Phase.ID}
	if !st.Enabled {
		res.Skipped = SkipDisabled
		return res, nil
	}

	res.Decision = metricgate.Evaluate(st.Phase.RollbackCriteria, live)
	res.Success = metricgate.EvaluateSuccess(st.Phase.SuccessMetrics, live)
	if !res.Decision.ShouldRollback {
		return res, nil
	}

	log := m.log.With(logger.Environment(st.Name), logger.PhaseID(st.Phase.ID))
	if !m.ctrl.Settings().AutoRollback {
		res.Skipped = SkipAutoRollback
		log.WarnContext(ctx, "rollback criteria triggered, auto rollback disabled",
			logger.Reasons(res.Decision.Reasons))
		m.metrics.RecordGate(st.Name, st.Phase.ID, res.Decision, false)
		return res, nil
	}

	ctx = phase.WithReason(ctx, "auto rollback: "+strings.Join(triggeredIDs(res.Decision), ", "))

	if st.Overridden {
		res.Skipped = SkipOverride
	} else {
		err := m.ctrl.RollbackPhaseFrom(ctx, st.Name, st.CurrentPhaseIndex)
		switch {
		case err == nil:
			res.RolledBack = true
		case errors.Is(err, phase.ErrAtFirstPhase):
			res.Skipped = SkipFirstPhase
		case errors.Is(err, phase.ErrPhaseMoved):
			res.Skipped = SkipMoved
			m.metrics.RecordGate(st.Name, st.Phase.ID, res.Decision, false)
			log.InfoContext(ctx, "rollback criteria triggered, pointer already moved")
			return res, nil
		default:
			return res, err
		}
	}

	if st.Phase.Status == rollout.StatusActive {
		if err := m.ctrl.UpdatePhaseStatus(ctx, st.Phase.ID, rollout.StatusRolledBack, st.Name); err != nil {
			return res, err
		}
		res.MarkedRolledBack = true
	}

	m.metrics.RecordGate(st.Name, st.Phase.ID, res.Decision, res.RolledBack || res.MarkedRolledBack)
	log.WarnContext(ctx, "auto rollback applied",
		slog.Bool("pointer_moved", res.RolledBack),
		slog.Bool("status_marked", res.MarkedRolledBack),
		slog.String("max_severity", string(res.Decision.MaxSeverity())),
		logger.Reasons(res.Decision.Reasons),
	)
	return res, nil
}

// Tick fetches metrics for every enabled environment and evaluates them
// concurrently. A failing environment does not stop the others; the joined
// errors are returned.
func (m *Monitor) Tick(ctx context.Context) error {
	if m.source == nil {
		return ErrNoSource
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	envs := m.ctrl.Environments()
	errs := make([]error, len(envs))
	for i, env := range envs {
		g.Go(func() error {
			errs[i] = m.evaluate(ctx, env)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (m *Monitor) evaluate(ctx context.Context, env string) error {
	st, err := m.ctrl.Status(env)
	if err != nil {
		return err
	}
	if !st.Enabled {
		return nil
	}

	live, err := m.source.Fetch(ctx, env)
	if err != nil {
		m.metrics.RecordFeedError(env)
		m.log.ErrorContext(ctx, "metric feed failed", logger.Environment(env), logger.Error(err))
		return errors.Join(ErrFetchMetrics, err)
	}

	res, err := m.EvaluateRollback(ctx, env, live)
	if err != nil {
		m.log.ErrorContext(ctx, "rollback evaluation failed", logger.Environment(env), logger.Error(err))
		return err
	}
	if m.onResult != nil {
		m.onResult(ctx, res)
	}
	return nil
}

// Run calls Tick every interval until ctx is done. Tick errors are logged and
// do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	if m.source == nil {
		return ErrNoSource
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.InfoContext(ctx, "rollout monitor started", logger.Duration(m.interval))
	for {
		select {
		case <-ctx.Done():
			m.log.InfoContext(ctx, "rollout monitor stopped")
			return nil
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				m.log.WarnContext(ctx, "monitor tick finished with errors", logger.Error(err))
			}
		}
	}
}

func triggeredIDs(d metricgate.Decision) []string {
	ids := make([]string, 0, len(d.Triggered))
	for _, t := range d.Triggered {
		ids = append(ids, t.Criterion.ID)
	}
	return ids
}
