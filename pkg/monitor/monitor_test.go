package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dmitrymomot/rolloutkit/pkg/metricgate"
	"github.com/dmitrymomot/rolloutkit/pkg/metrics"
	"github.com/dmitrymomot/rolloutkit/pkg/monitor"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Fetch(ctx context.Context, env string) (map[string]float64, error) {
	args := m.Called(ctx, env)
	if v := args.Get(0); v != nil {
		return v.(map[string]float64), args.Error(1)
	}
	return nil, args.Error(1)
}

func criteria() []metricgate.RollbackCriterion {
	return []metricgate.RollbackCriterion{
		{
			ID:           "error_rate",
			Name:         "Error rate",
			MetricID:     "error_rate",
			Threshold:    0.05,
			Operator:     metricgate.OpGreaterThan,
			AutoRollback: true,
			Severity:     metricgate.SeverityCritical,
		},
		{
			ID:        "latency",
			Name:      "p95 latency",
			MetricID:  "latency_p95",
			Threshold: 800,
			Operator:  metricgate.OpGreaterThan,
			Severity:  metricgate.SeverityMedium,
		},
	}
}

func monitoredConfig(autoRollback bool) *rollout.Config {
	return &rollout.Config{
		Settings: rollout.Settings{AutoRollback: autoRollback},
		Phases: []rollout.Phase{
			{ID: "canary", Percentage: 10, FeatureGroups: []string{"core"}, Status: rollout.StatusCompleted},
			{
				ID:               "beta",
				Percentage:       50,
				FeatureGroups:    []string{"core", "social"},
				Status:           rollout.StatusActive,
				RollbackCriteria: criteria(),
				SuccessMetrics: []metricgate.SuccessMetric{
					{ID: "conversion", Name: "Conversion", Target: 0.1, Operator: metricgate.OpGreaterThanOrEqual},
					{ID: "retention", Name: "Retention", Target: 0.4, Operator: metricgate.OpGreaterThanOrEqual},
				},
			},
		},
		Environments: map[string]rollout.Environment{
			"production": {CurrentPhaseIndex: 1, Enabled: true},
			"staging":    {CurrentPhaseIndex: 0, Enabled: true},
			"archive":    {CurrentPhaseIndex: 1, Enabled: false},
			"preview": {
				Enabled: true,
				Override: &rollout.Phase{
					ID:               "preview",
					Percentage:       100,
					Status:           rollout.StatusActive,
					RollbackCriteria: criteria(),
				},
			},
		},
	}
}

func newManager(t *testing.T, autoRollback bool, opts ...phase.Option) *phase.Manager {
	t.Helper()
	m, err := phase.New(monitoredConfig(autoRollback), opts...)
	require.NoError(t, err)
	return m
}

func TestEvaluateRollbackHealthy(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "production", map[string]float64{
		"error_rate": 0.01,
		"conversion": 0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, "production", res.Environment)
	assert.Equal(t, "beta", res.PhaseID)
	assert.False(t, res.Decision.ShouldRollback)
	assert.False(t, res.RolledBack)
	assert.False(t, res.MarkedRolledBack)
	assert.Empty(t, res.Skipped)
	assert.True(t, res.Success.Healthy)
	assert.Equal(t, []string{"conversion"}, res.Success.Met)
	assert.Equal(t, []string{"retention"}, res.Success.Missing)

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentPhaseIndex)
	assert.Equal(t, rollout.StatusActive, st.Phase.Status)
}

func TestEvaluateRollbackAppliesRollback(t *testing.T) {
	t.Parallel()

	var (
		mu          sync.Mutex
		transitions []phase.Transition
	)
	mgr := newManager(t, true, phase.WithTransitionHook(func(_ context.Context, tr phase.Transition) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, tr)
	}))
	reg := prometheus.NewRegistry()
	mon := monitor.New(mgr, monitor.WithMetrics(metrics.New(reg)))

	res, err := mon.EvaluateRollback(context.Background(), "production", map[string]float64{
		"error_rate":  0.09,
		"latency_p95": 900,
	})
	require.NoError(t, err)

	assert.True(t, res.Decision.ShouldRollback)
	require.Len(t, res.Decision.Triggered, 1)
	assert.Equal(t, "error_rate", res.Decision.Triggered[0].Criterion.ID)
	assert.Len(t, res.Decision.Reasons, 2)
	assert.True(t, res.RolledBack)
	assert.True(t, res.MarkedRolledBack)
	assert.Empty(t, res.Skipped)

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentPhaseIndex)
	assert.Equal(t, "canary", st.Phase.ID)

	cfg := mgr.Snapshot()
	assert.Equal(t, rollout.StatusRolledBack, cfg.Phases[1].Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 2)
	assert.Equal(t, phase.OpRollback, transitions[0].Op)
	assert.Equal(t, phase.OpStatus, transitions[1].Op)
	for _, tr := range transitions {
		assert.Contains(t, tr.Reason, "auto rollback: error_rate")
		assert.NoError(t, tr.Err)
	}
}

func TestEvaluateRollbackSettingsOff(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, false)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "production", map[string]float64{"error_rate": 0.5})
	require.NoError(t, err)

	assert.True(t, res.Decision.ShouldRollback)
	assert.False(t, res.RolledBack)
	assert.False(t, res.MarkedRolledBack)
	assert.Equal(t, monitor.SkipAutoRollback, res.Skipped)

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentPhaseIndex)
	assert.Equal(t, rollout.StatusActive, st.Phase.Status)
}

func TestEvaluateRollbackMissingMetricsNeverTrigger(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "production", nil)
	require.NoError(t, err)

	assert.False(t, res.Decision.ShouldRollback)
	assert.Len(t, res.Decision.Reasons, 2)
	assert.True(t, res.Success.Healthy)
	assert.ElementsMatch(t, []string{"conversion", "retention"}, res.Success.Missing)
}

func TestEvaluateRollbackAdvisoryOnly(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "production", map[string]float64{
		"error_rate":  0.01,
		"latency_p95": 2000,
	})
	require.NoError(t, err)

	assert.False(t, res.Decision.ShouldRollback)
	require.Len(t, res.Decision.Reasons, 1)
	assert.Contains(t, res.Decision.Reasons[0], "advisory")
	assert.False(t, res.RolledBack)
}

func TestEvaluateRollbackOverride(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "preview", map[string]float64{"error_rate": 0.5})
	require.NoError(t, err)

	assert.Equal(t, "preview", res.PhaseID)
	assert.False(t, res.RolledBack)
	assert.True(t, res.MarkedRolledBack)
	assert.Equal(t, monitor.SkipOverride, res.Skipped)

	p, ok := mgr.CurrentPhase("preview")
	require.True(t, ok)
	assert.Equal(t, rollout.StatusRolledBack, p.Status)
}

func TestEvaluateRollbackAtFirstPhase(t *testing.T) {
	t.Parallel()

	cfg := monitoredConfig(true)
	cfg.Phases[0].RollbackCriteria = criteria()
	cfg.Phases[0].Status = rollout.StatusActive
	mgr, err := phase.New(cfg)
	require.NoError(t, err)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "staging", map[string]float64{"error_rate": 0.5})
	require.NoError(t, err)

	assert.False(t, res.RolledBack)
	assert.True(t, res.MarkedRolledBack)
	assert.Equal(t, monitor.SkipFirstPhase, res.Skipped)

	st, err := mgr.Status("staging")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentPhaseIndex)
	assert.Equal(t, rollout.StatusRolledBack, st.Phase.Status)
}

func TestEvaluateRollbackDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)

	res, err := mon.EvaluateRollback(context.Background(), "archive", map[string]float64{"error_rate": 0.5})
	require.NoError(t, err)
	assert.Equal(t, monitor.SkipDisabled, res.Skipped)
	assert.False(t, res.Decision.ShouldRollback)

	_, err = mon.EvaluateRollback(context.Background(), "nowhere", nil)
	assert.ErrorIs(t, err, phase.ErrUnknownEnvironment)
}

func TestEvaluateRollbackTwice(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	mon := monitor.New(mgr)
	live := map[string]float64{"error_rate": 0.5}

	_, err := mon.EvaluateRollback(context.Background(), "production", live)
	require.NoError(t, err)

	// canary has no criteria, so the second feed is a no-op.
	res, err := mon.EvaluateRollback(context.Background(), "production", live)
	require.NoError(t, err)
	assert.Equal(t, "canary", res.PhaseID)
	assert.False(t, res.Decision.ShouldRollback)
}

// lockstepController lets every caller read Status before any of them acts,
// the interleaving two metric feeds hit when they race on one environment.
type lockstepController struct {
	*phase.Manager
	read *sync.WaitGroup
}

func (c lockstepController) Status(env string) (phase.EnvironmentStatus, error) {
	st, err := c.Manager.Status(env)
	c.read.Done()
	c.read.Wait()
	return st, err
}

func TestEvaluateRollbackConcurrentFeeds(t *testing.T) {
	t.Parallel()

	cfg := monitoredConfig(true)
	cfg.Phases = append(cfg.Phases, rollout.Phase{
		ID:               "ga",
		Percentage:       100,
		FeatureGroups:    []string{"core", "social"},
		Status:           rollout.StatusActive,
		RollbackCriteria: criteria(),
	})
	cfg.Environments["production"] = rollout.Environment{CurrentPhaseIndex: 2, Enabled: true}
	mgr, err := phase.New(cfg)
	require.NoError(t, err)

	const feeds = 2
	var read sync.WaitGroup
	read.Add(feeds)
	mon := monitor.New(lockstepController{Manager: mgr, read: &read})

	results := make([]monitor.Result, feeds)
	var wg sync.WaitGroup
	for i := range feeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := mon.EvaluateRollback(context.Background(), "production", map[string]float64{"error_rate": 0.5})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	var moved, skipped int
	for _, res := range results {
		assert.Equal(t, "ga", res.PhaseID)
		if res.RolledBack {
			moved++
		}
		if res.Skipped == monitor.SkipMoved {
			skipped++
		}
	}
	assert.Equal(t, 1, moved)
	assert.Equal(t, 1, skipped)

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentPhaseIndex, "one evaluated phase moves the pointer back once")
	assert.Equal(t, "beta", st.Phase.ID)
}

func TestTick(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	src := &mockSource{}
	src.On("Fetch", mock.Anything, "production").Return(map[string]float64{"error_rate": 0.5}, nil).Once()
	src.On("Fetch", mock.Anything, "staging").Return(map[string]float64{}, nil).Once()
	src.On("Fetch", mock.Anything, "preview").Return(map[string]float64{"error_rate": 0.01}, nil).Once()

	var (
		mu      sync.Mutex
		results = map[string]monitor.Result{}
	)
	mon := monitor.New(mgr,
		monitor.WithSource(src),
		monitor.WithConcurrency(2),
		monitor.WithResultHandler(func(_ context.Context, r monitor.Result) {
			mu.Lock()
			defer mu.Unlock()
			results[r.Environment] = r
		}),
	)

	require.NoError(t, mon.Tick(context.Background()))
	src.AssertExpectations(t)
	src.AssertNotCalled(t, "Fetch", mock.Anything, "archive")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 3)
	assert.True(t, results["production"].RolledBack)
	assert.False(t, results["staging"].RolledBack)
	assert.False(t, results["preview"].RolledBack)
}

func TestTickFeedError(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	feedErr := errors.New("prometheus unavailable")
	src := &mockSource{}
	src.On("Fetch", mock.Anything, "production").Return(nil, feedErr)
	src.On("Fetch", mock.Anything, "staging").Return(map[string]float64{}, nil)
	src.On("Fetch", mock.Anything, "preview").Return(map[string]float64{}, nil)

	mon := monitor.New(mgr, monitor.WithSource(src), monitor.WithMetrics(metrics.New(prometheus.NewRegistry())))

	err := mon.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, monitor.ErrFetchMetrics)
	assert.ErrorIs(t, err, feedErr)

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 1, st.CurrentPhaseIndex)
}

func TestRunWithoutSource(t *testing.T) {
	t.Parallel()

	mon := monitor.New(newManager(t, true))
	assert.ErrorIs(t, mon.Run(context.Background()), monitor.ErrNoSource)
	assert.ErrorIs(t, mon.Tick(context.Background()), monitor.ErrNoSource)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	mgr := newManager(t, true)
	ticked := make(chan struct{}, 16)
	src := monitor.SourceFunc(func(_ context.Context, env string) (map[string]float64, error) {
		if env == "production" {
			select {
			case ticked <- struct{}{}:
			default:
			}
		}
		return map[string]float64{"error_rate": 0.5}, nil
	})

	mon := monitor.New(mgr, monitor.WithSource(src), monitor.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not tick")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}

	st, err := mgr.Status("production")
	require.NoError(t, err)
	assert.Equal(t, 0, st.CurrentPhaseIndex)
}
