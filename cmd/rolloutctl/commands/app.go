package commands

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/rolloutkit/pkg/adminapi"
	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/httpserver"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/pg"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
	"github.com/dmitrymomot/rolloutkit/pkg/redis"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

// Backend names accepted by ROLLOUT_OVERRIDES, ROLLOUT_JOURNAL and
// ROLLOUT_METRICS_SOURCE.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig is the process configuration. Every variable carries the
// ROLLOUT_ prefix, nested configs included (ROLLOUT_HTTP_ADDR, ROLLOUT_REDIS_URL).
type AppConfig struct {
	ConfigPath      string        `env:"CONFIG_PATH" envDefault:"rollout.yaml"`
	Environment     string        `env:"ENV" envDefault:"development"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL" envDefault:"1m"`
	Overrides       string        `env:"OVERRIDES" envDefault:"memory"`
	Journal         string        `env:"JOURNAL" envDefault:"memory"`
	MetricsSource   string        `env:"METRICS_SOURCE" envDefault:"none"`

	HTTP  httpserver.Config
	Redis redis.Config
	PG    pg.Config
}

// App carries state shared by every command.
type App struct {
	Version string
	// Environ replaces the process environment when set.
	Environ map[string]string

	Config AppConfig
	Log    *slog.Logger
}

func (a *App) setupLogger(w io.Writer, debug bool) error {
	format, err := logger.ParseFormat(a.Config.LogFormat)
	if err != nil {
		return err
	}
	level, err := logger.ParseLevel(a.Config.LogLevel)
	if err != nil {
		return err
	}
	if debug {
		level = slog.LevelDebug
	}
	a.Log = logger.New(
		logger.WithFormat(format),
		logger.WithLevel(level),
		logger.WithOutput(w),
		logger.WithContextExtractors(environment.LoggerExtractor(), adminapi.LoggerExtractor()),
	)
	return nil
}

// environment returns the configured environment name as the manager knows it.
func (a *App) environment() string {
	return string(environment.Normalize(a.Config.Environment))
}

// loadDocument reads the rollout document and logs its warnings.
func (a *App) loadDocument() (*rollout.Config, rollout.ValidationResult, error) {
	cfg, res, err := rollout.LoadFile(a.Config.ConfigPath)
	for _, w := range res.Warnings {
		a.Log.Warn("rollout configuration warning", slog.String("warning", w))
	}
	if err != nil {
		return nil, res, fmt.Errorf("load %s: %w", a.Config.ConfigPath, err)
	}
	return cfg, res, nil
}

// engine is the in-process rollout engine built from one document.
type engine struct {
	manager  *phase.Manager
	resolver *feature.Resolver
}

func (a *App) newEngine(cfg *rollout.Config, phaseOpts []phase.Option, resolverOpts ...feature.ResolverOption) (*engine, error) {
	reg, err := feature.NewRegistry(cfg.Flags)
	if err != nil {
		return nil, err
	}
	mgr, err := phase.New(cfg, append([]phase.Option{phase.WithLogger(a.Log)}, phaseOpts...)...)
	if err != nil {
		return nil, err
	}
	resolverOpts = append([]feature.ResolverOption{feature.WithResolverLogger(a.Log)}, resolverOpts...)
	return &engine{manager: mgr, resolver: feature.NewResolver(reg, mgr, resolverOpts...)}, nil
}

// save writes the manager state back to the document file.
func (a *App) save(e *engine) error {
	if err := rollout.SaveFile(a.Config.ConfigPath, e.manager.Snapshot()); err != nil {
		return fmt.Errorf("save %s: %w", a.Config.ConfigPath, err)
	}
	return nil
}
