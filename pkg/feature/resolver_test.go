package feature_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
	"github.com/dmitrymomot/rolloutkit/pkg/segment"
)

// user_42 falls into bucket 6, user_12 into bucket 99.
const (
	lowBucketUser  = "user_42"
	highBucketUser = "user_12"
)

func flagSpecs() []rollout.FlagSpec {
	return []rollout.FlagSpec{
		{Name: "workout_builder", Group: "core"},
		{Name: "leaderboard", Group: "social", DependsOn: []string{"workout_builder"}, Tags: []string{"beta"}},
		{Name: "coach", Group: "coaching", DependsOn: []string{"leaderboard"}, Tags: []string{"beta", "ai"}},
		{Name: "metrics_page"},
	}
}

func rolloutConfig() *rollout.Config {
	return &rollout.Config{
		Phases: []rollout.Phase{
			{ID: "canary", Percentage: 25, FeatureGroups: []string{"core"}},
			{ID: "beta", Percentage: 50, FeatureGroups: []string{"core", "social"}},
			{ID: "ga", Percentage: 100, FeatureGroups: []string{"core", "social", "coaching"}},
		},
		Environments: map[string]rollout.Environment{
			"production":  {CurrentPhaseIndex: 0, Enabled: true},
			"staging":     {CurrentPhaseIndex: 1, Enabled: true},
			"everyone":    {CurrentPhaseIndex: 2, Enabled: true},
			"development": {CurrentPhaseIndex: 0, Enabled: false},
		},
		Segments: []segment.UserSegment{
			{ID: "power", Criteria: segment.Criteria{SubscriptionTiers: []string{"pro"}}},
		},
		Flags: flagSpecs(),
	}
}

type fixture struct {
	manager  *phase.Manager
	resolver *feature.Resolver
}

func newFixture(t testing.TB, cfg *rollout.Config, opts ...feature.ResolverOption) fixture {
	t.Helper()
	m, err := phase.New(cfg)
	require.NoError(t, err)
	reg, err := feature.NewRegistry(cfg.Flags)
	require.NoError(t, err)
	return fixture{manager: m, resolver: feature.NewResolver(reg, m, opts...)}
}

type mockOverrides struct {
	mock.Mock
}

func (m *mockOverrides) Get(ctx context.Context, flag feature.Name) (bool, bool, error) {
	args := m.Called(ctx, flag)
	return args.Bool(0), args.Bool(1), args.Error(2)
}

func (m *mockOverrides) Set(ctx context.Context, flag feature.Name, value bool) error {
	return m.Called(ctx, flag, value).Error(0)
}

func (m *mockOverrides) Delete(ctx context.Context, flag feature.Name) error {
	return m.Called(ctx, flag).Error(0)
}

func (m *mockOverrides) List(ctx context.Context) (map[feature.Name]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[feature.Name]bool), args.Error(1)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	f := newFixture(t, rolloutConfig())

	tests := []struct {
		name    string
		flag    feature.Name
		user    string
		env     string
		enabled bool
		reasons []string
		phaseID string
		bucket  int
	}{
		{
			name:    "percentage includes low bucket",
			flag:    "workout_builder",
			user:    lowBucketUser,
			env:     "production",
			enabled: true,
			reasons: []string{"percentage rollout: bucket 6 < 25 (percentage)"},
			phaseID: "canary",
			bucket:  6,
		},
		{
			name:    "percentage excludes high bucket",
			flag:    "workout_builder",
			user:    highBucketUser,
			env:     "production",
			reasons: []string{"percentage rollout: bucket 99 >= 25 (percentage)"},
			phaseID: "canary",
			bucket:  99,
		},
		{
			name:    "group not unlocked by phase",
			flag:    "leaderboard",
			user:    lowBucketUser,
			env:     "production",
			reasons: []string{"not in active phase feature set: social"},
			phaseID: "canary",
			bucket:  -1,
		},
		{
			name:    "dependency met and group unlocked",
			flag:    "leaderboard",
			user:    lowBucketUser,
			env:     "staging",
			enabled: true,
			reasons: []string{"percentage rollout: bucket 6 < 50 (percentage)"},
			phaseID: "beta",
			bucket:  6,
		},
		{
			name:    "dependency not met",
			flag:    "leaderboard",
			user:    highBucketUser,
			env:     "staging",
			reasons: []string{"dependency not met: workout_builder"},
			bucket:  -1,
		},
		{
			name:    "transitive dependencies at full rollout",
			flag:    "coach",
			user:    highBucketUser,
			env:     "everyone",
			enabled: true,
			reasons: []string{"percentage rollout: bucket 99 < 100 (percentage)"},
			phaseID: "ga",
			bucket:  99,
		},
		{
			name:    "ungrouped flag follows phase targeting",
			flag:    "metrics_page",
			user:    lowBucketUser,
			env:     "production",
			enabled: true,
			reasons: []string{"percentage rollout: bucket 6 < 25 (percentage)"},
			phaseID: "canary",
			bucket:  6,
		},
		{
			name:    "disabled environment",
			flag:    "workout_builder",
			user:    lowBucketUser,
			env:     "development",
			reasons: []string{"environment disabled or unknown"},
			bucket:  -1,
		},
		{
			name:    "unknown environment",
			flag:    "workout_builder",
			user:    lowBucketUser,
			env:     "moon",
			reasons: []string{"environment disabled or unknown"},
			bucket:  -1,
		},
		{
			name:    "unknown flag",
			flag:    "teleport",
			user:    lowBucketUser,
			env:     "production",
			reasons: []string{"unknown flag"},
			bucket:  -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := f.resolver.Resolve(context.Background(), tt.flag, tt.user, tt.env, segment.UserAttributes{})
			assert.Equal(t, feature.Decision{
				Flag:    tt.flag,
				Enabled: tt.enabled,
				Reasons: tt.reasons,
				PhaseID: tt.phaseID,
				Bucket:  tt.bucket,
			}, d)
		})
	}
}

func TestResolveOverrides(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("override wins over everything", func(t *testing.T) {
		t.Parallel()
		store := feature.NewMemoryOverrides(map[feature.Name]bool{"leaderboard": true})
		f := newFixture(t, rolloutConfig(), feature.WithOverrides(store))

		d := f.resolver.Resolve(ctx, "leaderboard", highBucketUser, "development", segment.UserAttributes{})
		assert.True(t, d.Enabled)
		assert.Equal(t, []string{"explicit override: enabled"}, d.Reasons)
	})

	t.Run("forced off dependency blocks dependents", func(t *testing.T) {
		t.Parallel()
		store := feature.NewMemoryOverrides(map[feature.Name]bool{"workout_builder": false})
		f := newFixture(t, rolloutConfig(), feature.WithOverrides(store))

		d := f.resolver.Resolve(ctx, "workout_builder", lowBucketUser, "staging", segment.UserAttributes{})
		assert.False(t, d.Enabled)
		assert.Equal(t, []string{"explicit override: disabled"}, d.Reasons)

		d = f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "staging", segment.UserAttributes{})
		assert.False(t, d.Enabled)
		assert.Equal(t, []string{"dependency not met: workout_builder"}, d.Reasons)
	})

	t.Run("override changes apply immediately", func(t *testing.T) {
		t.Parallel()
		store := feature.NewMemoryOverrides(nil)
		f := newFixture(t, rolloutConfig(), feature.WithOverrides(store))

		assert.False(t, f.resolver.Resolve(ctx, "coach", lowBucketUser, "production", segment.UserAttributes{}).Enabled)
		require.NoError(t, f.resolver.Overrides().Set(ctx, "coach", true))
		assert.True(t, f.resolver.Resolve(ctx, "coach", lowBucketUser, "production", segment.UserAttributes{}).Enabled)
		require.NoError(t, store.Delete(ctx, "coach"))
		assert.False(t, f.resolver.Resolve(ctx, "coach", lowBucketUser, "production", segment.UserAttributes{}).Enabled)
	})

	t.Run("store failure never flips a flag on", func(t *testing.T) {
		t.Parallel()
		store := new(mockOverrides)
		store.On("Get", mock.Anything, mock.Anything).Return(true, true, errors.New("connection reset"))
		f := newFixture(t, rolloutConfig(), feature.WithOverrides(store))

		d := f.resolver.Resolve(ctx, "workout_builder", highBucketUser, "production", segment.UserAttributes{})
		assert.False(t, d.Enabled)
		assert.Equal(t, []string{"percentage rollout: bucket 99 >= 25 (percentage)"}, d.Reasons)
		store.AssertCalled(t, "Get", mock.Anything, feature.Name("workout_builder"))
	})
}

func TestResolveSegmentsFromActiveConfig(t *testing.T) {
	t.Parallel()

	cfg := rolloutConfig()
	cfg.Phases[1].TargetCriteria.UserSegments = []string{"power"}
	f := newFixture(t, cfg)
	ctx := context.Background()

	d := f.resolver.Resolve(ctx, "workout_builder", highBucketUser, "staging", segment.UserAttributes{SubscriptionTier: "pro"})
	assert.True(t, d.Enabled)
	assert.Equal(t, []string{"segment match: power"}, d.Reasons)

	d = f.resolver.Resolve(ctx, "workout_builder", highBucketUser, "staging", segment.UserAttributes{SubscriptionTier: "free"})
	assert.False(t, d.Enabled)
}

func TestResolveFollowsPhaseChanges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFixture(t, rolloutConfig())
	assert.False(t, f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "production", segment.UserAttributes{}).Enabled)

	require.NoError(t, f.manager.AdvancePhase(ctx, "production"))
	assert.True(t, f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "production", segment.UserAttributes{}).Enabled)

	require.NoError(t, f.manager.RollbackPhase(ctx, "production"))
	assert.False(t, f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "production", segment.UserAttributes{}).Enabled)

	next := rolloutConfig()
	next.Flags = append(next.Flags, rollout.FlagSpec{Name: "streaks", Group: "core"})
	require.NoError(t, f.manager.Replace(ctx, next))
	reg, err := feature.NewRegistry(next.Flags)
	require.NoError(t, err)
	f.resolver.SetRegistry(reg)
	f.resolver.SetRegistry(nil)

	d := f.resolver.Resolve(ctx, "streaks", lowBucketUser, "production", segment.UserAttributes{})
	assert.True(t, d.Enabled)
	assert.Same(t, reg, f.resolver.Registry())
}

func TestResolveAll(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	observed := map[feature.Name]bool{}
	f := newFixture(t, rolloutConfig(), feature.WithObserver(func(_ context.Context, env string, d feature.Decision) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "staging", env)
		observed[d.Flag] = d.Enabled
	}))

	decisions := f.resolver.ResolveAll(context.Background(), lowBucketUser, "staging", segment.UserAttributes{})
	require.Len(t, decisions, 4)

	got := map[feature.Name]bool{}
	var names []feature.Name
	for _, d := range decisions {
		got[d.Flag] = d.Enabled
		names = append(names, d.Flag)
	}
	assert.Equal(t, []feature.Name{"coach", "leaderboard", "metrics_page", "workout_builder"}, names)
	assert.Equal(t, map[feature.Name]bool{
		"coach":           false,
		"leaderboard":     true,
		"metrics_page":    true,
		"workout_builder": true,
	}, got)
	assert.Equal(t, []string{"not in active phase feature set: coaching"}, decisions[0].Reasons)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, got, observed)
}

func TestResolveAllUsesOnePhase(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m, err := phase.New(rolloutConfig())
	require.NoError(t, err)
	reg, err := feature.NewRegistry(flagSpecs())
	require.NoError(t, err)

	var once sync.Once
	r := feature.NewResolver(reg, m, feature.WithObserver(func(ctx context.Context, _ string, _ feature.Decision) {
		once.Do(func() { require.NoError(t, m.AdvancePhase(ctx, "production")) })
	}))

	for _, d := range r.ResolveAll(ctx, lowBucketUser, "production", segment.UserAttributes{}) {
		if d.PhaseID != "" {
			assert.Equal(t, "canary", d.PhaseID, d.Flag)
		}
	}

	d := r.Resolve(ctx, "metrics_page", lowBucketUser, "production", segment.UserAttributes{})
	assert.Equal(t, "beta", d.PhaseID)
}

func TestResolveConcurrentWithTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t, rolloutConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				d := f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "production", segment.UserAttributes{})
				assert.NotEmpty(t, d.Reasons)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			_ = f.manager.AdvancePhase(ctx, "production")
			_ = f.manager.RollbackPhase(ctx, "production")
		}
	}()
	wg.Wait()
}

func BenchmarkResolve(b *testing.B) {
	f := newFixture(b, rolloutConfig(), feature.WithOverrides(feature.NewMemoryOverrides(nil)))
	ctx := context.Background()
	attrs := segment.UserAttributes{SubscriptionTier: "pro"}

	b.ReportAllocs()
	for b.Loop() {
		_ = f.resolver.Resolve(ctx, "leaderboard", lowBucketUser, "staging", attrs)
	}
}

func BenchmarkResolveAll(b *testing.B) {
	f := newFixture(b, rolloutConfig())
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		_ = f.resolver.ResolveAll(ctx, highBucketUser, "everyone", segment.UserAttributes{})
	}
}
