package adminapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/adminapi"
	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/journal"
	"github.com/dmitrymomot/rolloutkit/pkg/metricgate"
	"github.com/dmitrymomot/rolloutkit/pkg/metrics"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

func testConfig() *rollout.Config {
	return &rollout.Config{
		Settings: rollout.Settings{AutoRollback: true},
		Phases: []rollout.Phase{
			{ID: "alpha", Percentage: 100, FeatureGroups: []string{"core"}, Status: rollout.StatusCompleted},
			{
				ID:            "beta",
				Percentage:    100,
				FeatureGroups: []string{"core", "social"},
				Status:        rollout.StatusActive,
				RollbackCriteria: []metricgate.RollbackCriterion{{
					ID:           "error_rate",
					Name:         "Error rate",
					MetricID:     "error_rate",
					Threshold:    0.05,
					Operator:     metricgate.OpGreaterThan,
					AutoRollback: true,
					Severity:     metricgate.SeverityHigh,
				}},
			},
			{ID: "ga", Percentage: 100, FeatureGroups: []string{"core", "social", "premium"}},
		},
		Environments: map[string]rollout.Environment{
			"production": {CurrentPhaseIndex: 1, Enabled: true},
			"staging":    {CurrentPhaseIndex: 0, Enabled: true},
		},
		Flags: []rollout.FlagSpec{
			{Name: "dark_mode", Group: "core"},
			{Name: "activity_feed", Group: "social", DependsOn: []string{"dark_mode"}},
			{Name: "premium_export", Group: "premium"},
		},
	}
}

type fixture struct {
	server  *httptest.Server
	manager *phase.Manager
	journal *journal.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	j := journal.New(journal.NewMemoryStorage(),
		journal.WithMetadataExtractor("request_id", adminapi.RequestIDExtractor),
	)
	cfg := testConfig()
	mgr, err := phase.New(cfg, phase.WithTransitionHook(j.Record))
	require.NoError(t, err)

	reg, err := feature.NewRegistry(cfg.Flags)
	require.NoError(t, err)
	resolver := feature.NewResolver(reg, mgr, feature.WithOverrides(feature.NewMemoryOverrides(nil)))

	promReg := prometheus.NewRegistry()
	metrics.New(promReg)

	api := adminapi.New(mgr, resolver,
		adminapi.WithJournal(j),
		adminapi.WithDefaultEnvironment(environment.Production),
		adminapi.WithMetricsHandler(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})),
	)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, manager: mgr, journal: j}
}

type envelope struct {
	Data  json.RawMessage       `json:"data"`
	Meta  map[string]any        `json:"meta"`
	Error *adminapi.ErrorDetail `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) (int, envelope) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, f.server.URL+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestResolveFlag(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	t.Run("enabled by current phase", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet, "/flags/activity_feed?user=u-1&env=production", "", nil)
		require.Equal(t, http.StatusOK, status)

		d := decodeData[feature.Decision](t, env)
		assert.True(t, d.Enabled)
		assert.Equal(t, "beta", d.PhaseID)
		assert.Equal(t, "production", env.Meta["environment"])
	})

	t.Run("group not unlocked", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet, "/flags/premium_export?user=u-1", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.False(t, decodeData[feature.Decision](t, env).Enabled)
	})

	t.Run("environment from header", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet, "/flags/activity_feed?user=u-1", "",
			http.Header{environment.Header: {"staging"}})
		require.Equal(t, http.StatusOK, status)

		d := decodeData[feature.Decision](t, env)
		assert.False(t, d.Enabled)
		assert.Equal(t, "alpha", d.PhaseID)
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet, "/flags/nope?user=u-1", "", nil)
		assert.Equal(t, http.StatusNotFound, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, adminapi.CodeNotFound, env.Error.Code)
	})

	t.Run("unknown environment", func(t *testing.T) {
		t.Parallel()
		status, _ := f.do(t, http.MethodGet, "/flags/dark_mode?user=u-1&env=mars", "", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("missing user", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet, "/flags/dark_mode", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Contains(t, env.Error.Details, "user")
	})

	t.Run("malformed attributes", func(t *testing.T) {
		t.Parallel()
		status, env := f.do(t, http.MethodGet,
			"/flags/dark_mode?user=u-1&workout_count=many&engagement_score=x&registered_at=yesterday", "", nil)
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, env.Error)
		assert.Contains(t, env.Error.Details, "workout_count")
		assert.Contains(t, env.Error.Details, "engagement_score")
		assert.Contains(t, env.Error.Details, "registered_at")
	})
}

func TestResolveAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	status, env := f.do(t, http.MethodGet, "/flags?user=u-1&env=production&platform=ios&workout_count=3", "", nil)
	require.Equal(t, http.StatusOK, status)

	decisions := decodeData[[]feature.Decision](t, env)
	require.Len(t, decisions, 3)
	byName := make(map[feature.Name]bool)
	for _, d := range decisions {
		byName[d.Flag] = d.Enabled
	}
	assert.Equal(t, map[feature.Name]bool{
		"activity_feed":  true,
		"dark_mode":      true,
		"premium_export": false,
	}, byName)
	assert.EqualValues(t, 3, env.Meta["count"])
}

func TestEnvironments(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, env := f.do(t, http.MethodGet, "/environments", "", nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[[]phase.EnvironmentStatus](t, env)
	require.Len(t, list, 2)
	assert.Equal(t, "production", list[0].Name)
	assert.Equal(t, "staging", list[1].Name)

	status, env = f.do(t, http.MethodGet, "/environments/production/phase", "", nil)
	require.Equal(t, http.StatusOK, status)
	st := decodeData[phase.EnvironmentStatus](t, env)
	assert.Equal(t, 1, st.CurrentPhaseIndex)
	assert.Equal(t, "beta", st.Phase.ID)

	status, _ = f.do(t, http.MethodGet, "/environments/mars/phase", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAdvanceAndRollback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, env := f.do(t, http.MethodPost, "/environments/production/advance", `{"reason":"metrics look good"}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, decodeData[phase.EnvironmentStatus](t, env).CurrentPhaseIndex)

	status, env = f.do(t, http.MethodPost, "/environments/production/advance", "", nil)
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, adminapi.CodeConflict, env.Error.Code)
	assert.Contains(t, env.Error.Message, phase.ErrAtLastPhase.Error())

	status, _ = f.do(t, http.MethodPost, "/environments/staging/rollback", "", nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = f.do(t, http.MethodPost, "/environments/production/rollback", "",
		http.Header{adminapi.ReasonHeader: {"manual"}})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, decodeData[phase.EnvironmentStatus](t, env).CurrentPhaseIndex)

	status, _ = f.do(t, http.MethodPost, "/environments/mars/advance", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPost, "/environments/production/advance", `{"reason":"x","extra":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdatePhaseStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"completes active phase", "/environments/production/phases/beta/status", `{"status":"completed"}`, http.StatusOK},
		{"unchanged status", "/environments/production/phases/beta/status", `{"status":"active"}`, http.StatusOK},
		{"lifecycle violation", "/environments/production/phases/alpha/status", `{"status":"pending"}`, http.StatusConflict},
		{"unknown status", "/environments/production/phases/beta/status", `{"status":"paused"}`, http.StatusBadRequest},
		{"missing status", "/environments/production/phases/beta/status", `{}`, http.StatusBadRequest},
		{"unknown phase", "/environments/production/phases/omega/status", `{"status":"active"}`, http.StatusNotFound},
		{"unknown environment", "/environments/mars/phases/beta/status", `{"status":"active"}`, http.StatusNotFound},
		{"malformed body", "/environments/production/phases/beta/status", `{"status":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			status, _ := f.do(t, http.MethodPut, tt.path, tt.body, nil)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestEvaluateMetrics(t *testing.T) {
	t.Parallel()

	t.Run("breach rolls back", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		status, env := f.do(t, http.MethodPost, "/environments/production/metrics", `{"metrics":{"error_rate":0.2}}`, nil)
		require.Equal(t, http.StatusOK, status)

		var res struct {
			PhaseID          string `json:"phase_id"`
			RolledBack       bool   `json:"rolled_back"`
			MarkedRolledBack bool   `json:"marked_rolled_back"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &res))
		assert.Equal(t, "beta", res.PhaseID)
		assert.True(t, res.RolledBack)
		assert.True(t, res.MarkedRolledBack)

		st, err := f.manager.Status("production")
		require.NoError(t, err)
		assert.Equal(t, 0, st.CurrentPhaseIndex)
	})

	t.Run("healthy feed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		status, _ := f.do(t, http.MethodPost, "/environments/production/metrics", `{"metrics":{"error_rate":0.01}}`, nil)
		require.Equal(t, http.StatusOK, status)

		st, err := f.manager.Status("production")
		require.NoError(t, err)
		assert.Equal(t, 1, st.CurrentPhaseIndex)
	})

	t.Run("empty feed", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		status, _ := f.do(t, http.MethodPost, "/environments/production/metrics", `{"metrics":{}}`, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown environment", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		status, _ := f.do(t, http.MethodPost, "/environments/mars/metrics", `{"metrics":{"error_rate":1}}`, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestOverrides(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, env := f.do(t, http.MethodPut, "/overrides/premium_export", `{"enabled":true}`, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"flag":"premium_export","enabled":true}`, string(env.Data))

	status, env = f.do(t, http.MethodGet, "/flags/premium_export?user=u-1", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decodeData[feature.Decision](t, env).Enabled)

	status, env = f.do(t, http.MethodGet, "/overrides", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"flag":"premium_export","enabled":true}]`, string(env.Data))

	status, _ = f.do(t, http.MethodDelete, "/overrides/premium_export", "", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = f.do(t, http.MethodDelete, "/overrides/premium_export", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(t, http.MethodPut, "/overrides/unknown", `{"enabled":true}`, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = f.do(t, http.MethodPut, "/overrides/dark_mode", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Details, "enabled")
}

func TestJournal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/environments/production/advance", `{"reason":"go"}`,
		http.Header{"X-Request-Id": {"req-42"}})
	require.Equal(t, http.StatusOK, status)
	status, _ = f.do(t, http.MethodPost, "/environments/production/advance", "", nil)
	require.Equal(t, http.StatusConflict, status)

	status, env := f.do(t, http.MethodGet, "/journal?environment=production&result=applied", "", nil)
	require.Equal(t, http.StatusOK, status)
	events := decodeData[[]journal.Event](t, env)
	require.Len(t, events, 1)
	assert.Equal(t, "advance", events[0].Action)
	assert.Equal(t, "go", events[0].Reason)
	assert.Equal(t, "req-42", events[0].Metadata["request_id"])

	status, env = f.do(t, http.MethodGet, "/journal?environment=production", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decodeData[[]journal.Event](t, env), 2)

	status, _ = f.do(t, http.MethodGet, "/journal?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestExportConfig(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	status, _ := f.do(t, http.MethodPost, "/environments/production/advance", "", nil)
	require.Equal(t, http.StatusOK, status)

	resp, err := f.server.Client().Get(f.server.URL + "/config?format=yaml")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "yaml")

	cfg, res, err := rollout.Decode(resp.Body, rollout.FormatYAML)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 2, cfg.Environments["production"].CurrentPhaseIndex)

	status, _ = f.do(t, http.MethodGet, "/config?format=xml", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ALIVE", string(body))

	resp, err = f.server.Client().Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, env := f.do(t, http.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
}

func TestNewPanicsWithoutDependencies(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { adminapi.New(nil, nil) })
}
