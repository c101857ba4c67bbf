package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/rolloutkit/pkg/adminapi"
	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/httpserver"
	"github.com/dmitrymomot/rolloutkit/pkg/journal"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/metrics"
	"github.com/dmitrymomot/rolloutkit/pkg/monitor"
	"github.com/dmitrymomot/rolloutkit/pkg/pg"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/redis"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout/watcher"
)

func newServeCommand(app *App) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API, metric monitor and config watcher",
		Long: `Serve flag resolution and rollout administration over HTTP.

The rollout document is reloaded when it changes on disk. Overrides are kept
in memory or Redis (ROLLOUT_OVERRIDES), transitions are journaled in memory or
PostgreSQL (ROLLOUT_JOURNAL). With ROLLOUT_METRICS_SOURCE=redis the monitor
polls per-environment metric hashes every ROLLOUT_MONITOR_INTERVAL and rolls
back environments whose rollback criteria trip.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				app.Config.HTTP.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.serve(ctx, !noWatch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (overrides ROLLOUT_HTTP_ADDR)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the document when it changes")
	return cmd
}

// backends holds the external connections opened for serve.
type backends struct {
	redis  *goredis.Client
	checks []func(context.Context) error
	close  []func()
}

func (b *backends) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

func (a *App) openRedis(ctx context.Context, b *backends) (*goredis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := redis.Connect(ctx, a.Config.Redis)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.checks = append(b.checks, redis.Healthcheck(client))
	b.close = append(b.close, func() { _ = client.Close() })
	return client, nil
}

func (a *App) overrideStore(ctx context.Context, b *backends) (feature.OverrideStore, error) {
	switch a.Config.Overrides {
	case BackendMemory:
		return feature.NewMemoryOverrides(nil), nil
	case BackendRedis:
		client, err := a.openRedis(ctx, b)
		if err != nil {
			return nil, err
		}
		return feature.NewRedisOverrides(client, feature.WithRedisKey(a.Config.Redis.OverridesKey)), nil
	}
	return nil, fmt.Errorf("unknown overrides backend %q: must be %q or %q", a.Config.Overrides, BackendMemory, BackendRedis)
}

func (a *App) journalStorage(ctx context.Context, b *backends) (journal.Storage, error) {
	switch a.Config.Journal {
	case BackendMemory:
		return journal.NewMemoryStorage(), nil
	case BackendPostgres:
		pool, err := pg.Connect(ctx, a.Config.PG)
		if err != nil {
			return nil, err
		}
		b.close = append(b.close, pool.Close)
		if err := pg.Migrate(ctx, pool, journal.Migrations, a.Config.PG, a.Log); err != nil {
			return nil, err
		}
		b.checks = append(b.checks, pg.Healthcheck(pool))
		return journal.NewPostgresStorage(pool), nil
	}
	return nil, fmt.Errorf("unknown journal backend %q: must be %q or %q", a.Config.Journal, BackendMemory, BackendPostgres)
}

func (a *App) metricSource(ctx context.Context, b *backends) (monitor.MetricSource, error) {
	switch a.Config.MetricsSource {
	case BackendNone, "":
		return nil, nil
	case BackendRedis:
		client, err := a.openRedis(ctx, b)
		if err != nil {
			return nil, err
		}
		return monitor.NewRedisSource(client, a.Config.Redis.MetricsPrefix), nil
	}
	return nil, fmt.Errorf("unknown metrics source %q: must be %q or %q", a.Config.MetricsSource, BackendNone, BackendRedis)
}

func (a *App) serve(ctx context.Context, watch bool) error {
	cfg, _, err := a.loadDocument()
	if err != nil {
		return err
	}

	b := &backends{}
	defer b.Close()

	overrides, err := a.overrideStore(ctx, b)
	if err != nil {
		return err
	}
	storage, err := a.journalStorage(ctx, b)
	if err != nil {
		return err
	}
	source, err := a.metricSource(ctx, b)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	j := journal.New(storage,
		journal.WithLogger(a.Log),
		journal.WithMetadataExtractor("request_id", adminapi.RequestIDExtractor),
	)
	e, err := a.newEngine(cfg,
		[]phase.Option{
			phase.WithTransitionHook(j.Record),
			phase.WithTransitionHook(m.ObserveTransition),
		},
		feature.WithOverrides(overrides),
		feature.WithObserver(m.ObserveDecision),
	)
	if err != nil {
		return err
	}
	publishPhaseIndexes(e.manager, m)

	monOpts := []monitor.Option{
		monitor.WithLogger(a.Log),
		monitor.WithMetrics(m),
		monitor.WithInterval(a.Config.MonitorInterval),
	}
	if source != nil {
		monOpts = append(monOpts, monitor.WithSource(source))
	}
	mon := monitor.New(e.manager, monOpts...)

	if watch {
		w := watcher.New(a.Config.ConfigPath, e.manager,
			watcher.WithLogger(a.Log),
			watcher.WithMetrics(m),
			watcher.WithCheck(func(c *rollout.Config) error {
				_, err := feature.NewRegistry(c.Flags)
				return err
			}),
			watcher.WithOnReload(func(ctx context.Context, c *rollout.Config) {
				if reg, err := feature.NewRegistry(c.Flags); err == nil {
					e.resolver.SetRegistry(reg)
				}
				publishPhaseIndexes(e.manager, m)
			}),
		)
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	api := adminapi.New(e.manager, e.resolver,
		adminapi.WithLogger(a.Log),
		adminapi.WithMonitor(mon),
		adminapi.WithJournal(j),
		adminapi.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
		adminapi.WithReadinessChecks(b.checks...),
		adminapi.WithDefaultEnvironment(environment.Normalize(a.Config.Environment)),
	)
	srv := httpserver.NewFromConfig(a.Config.HTTP, httpserver.WithLogger(a.Log))

	a.Log.InfoContext(ctx, "starting rollout server",
		logger.Component("serve"),
		logger.Environment(a.environment()),
		logger.Group("backends",
			slog.String("overrides", a.Config.Overrides),
			slog.String("journal", a.Config.Journal),
			slog.String("metrics_source", a.Config.MetricsSource),
		),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx, api.Handler()) })
	if source != nil {
		g.Go(func() error { return mon.Run(gctx) })
	}
	return g.Wait()
}

func publishPhaseIndexes(mgr *phase.Manager, m *metrics.Metrics) {
	for _, name := range mgr.Environments() {
		if st, err := mgr.Status(name); err == nil {
			m.SetPhaseIndex(name, st.CurrentPhaseIndex)
		}
	}
}
