package adminapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/rolloutkit/pkg/environment"
	"github.com/dmitrymomot/rolloutkit/pkg/feature"
	"github.com/dmitrymomot/rolloutkit/pkg/httpserver"
	"github.com/dmitrymomot/rolloutkit/pkg/journal"
	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/monitor"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
)

// ReasonHeader carries an operator reason for mutating requests without a body.
const ReasonHeader = "X-Rollout-Reason"

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

// WithMonitor sets the monitor that evaluates pushed metric feeds.
func WithMonitor(m *monitor.Monitor) Option {
	return func(a *API) { a.monitor = m }
}

// WithJournal exposes recorded transitions under /journal.
func WithJournal(j *journal.Journal) Option {
	return func(a *API) { a.journal = j }
}

// WithMetricsHandler mounts h under /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) { a.metrics = h }
}

// WithReadinessChecks adds checks reported by /readyz.
func WithReadinessChecks(checks ...func(context.Context) error) Option {
	return func(a *API) { a.checks = append(a.checks, checks...) }
}

// WithDefaultEnvironment sets the environment used when a request names none.
func WithDefaultEnvironment(env environment.Environment) Option {
	return func(a *API) { a.fallback = env }
}

// API serves flag resolution and rollout administration over HTTP.
type API struct {
	manager  *phase.Manager
	resolver *feature.Resolver
	monitor  *monitor.Monitor
	journal  *journal.Journal
	metrics  http.Handler
	checks   []func(context.Context) error
	fallback environment.Environment
	log      *slog.Logger
}

// New creates an API over a phase manager and a resolver bound to it.
func New(mgr *phase.Manager, resolver *feature.Resolver, opts ...Option) *API {
	if mgr == nil || resolver == nil {
		panic("adminapi: manager and resolver are required")
	}
	a := &API{
		manager:  mgr,
		resolver: resolver,
		fallback: environment.Development,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.monitor == nil {
		a.monitor = monitor.New(mgr, monitor.WithLogger(a.log))
	}
	return a
}

// Handler returns the routed HTTP handler.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(a.log))
	r.Get("/readyz", httpserver.HealthCheckHandler(a.log, a.checks...))
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(environment.Middleware(a.fallback))
		r.Get("/flags", a.resolveAll)
		r.Get("/flags/{flag}", a.resolveFlag)
	})

	r.Route("/environments", func(r chi.Router) {
		r.Get("/", a.listEnvironments)
		r.Get("/{env}/phase", a.currentPhase)
		r.Post("/{env}/advance", a.advance)
		r.Post("/{env}/rollback", a.rollback)
		r.Put("/{env}/phases/{phase}/status", a.updateStatus)
		r.Post("/{env}/metrics", a.evaluateMetrics)
	})

	r.Route("/overrides", func(r chi.Router) {
		r.Get("/", a.listOverrides)
		r.Put("/{flag}", a.setOverride)
		r.Delete("/{flag}", a.deleteOverride)
	})

	r.Get("/journal", a.listJournal)
	r.Get("/config", a.exportConfig)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: &ErrorDetail{Code: CodeNotFound, Message: "route not found"}})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: &ErrorDetail{Code: CodeBadRequest, Message: "method not allowed"}})
	})
	return r
}

// RequestIDExtractor reads the request id assigned by the router. It can be
// passed to journal.WithMetadataExtractor.
func RequestIDExtractor(ctx context.Context) (string, bool) {
	id := middleware.GetReqID(ctx)
	return id, id != ""
}

// LoggerExtractor adds the request id to log records.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := middleware.GetReqID(ctx); id != "" {
			return logger.RequestID(id), true
		}
		return slog.Attr{}, false
	}
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.DebugContext(r.Context(), "admin request",
			logger.Component("adminapi"),
			logger.RequestID(middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
		)
	})
}
