package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/metrics"
	"github.com/dmitrymomot/rolloutkit/pkg/rollout"
)

var (
	ErrWatch   = errors.New("watcher: failed to watch config directory")
	ErrReload  = errors.New("watcher: config reload failed")
	ErrRunning = errors.New("watcher: already running")
)

// Target receives reloaded configurations. *phase.Manager satisfies it.
type Target interface {
	Replace(ctx context.Context, cfg *rollout.Config) error
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

// WithMetrics counts reload attempts.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Watcher) { w.metrics = m }
}

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithCheck adds a check that runs on a decoded config before it is
// installed. A failing check rejects the reload.
func WithCheck(fn func(*rollout.Config) error) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.checks = append(w.checks, fn)
		}
	}
}

// WithOnReload registers a callback that runs after a config was installed.
func WithOnReload(fn func(context.Context, *rollout.Config)) Option {
	return func(w *Watcher) {
		if fn != nil {
			w.onReload = append(w.onReload, fn)
		}
	}
}

// Watcher reloads a rollout document when it changes on disk. The parent
// directory is watched so editors that save by rename are picked up.
// A document that fails to decode, validate or pass checks is logged and
// counted; the active configuration stays in place.
type Watcher struct {
	path     string
	target   Target
	log      *slog.Logger
	metrics  *metrics.Metrics
	debounce time.Duration
	checks   []func(*rollout.Config) error
	onReload []func(context.Context, *rollout.Config)

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a watcher for the document at path.
func New(path string, target Target, opts ...Option) *Watcher {
	w := &Watcher{
		path:     filepath.Clean(path),
		target:   target,
		log:      logger.Discard(),
		debounce: 250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With(logger.Component("config_watcher"), slog.String("path", w.path))
	return w
}

// Start begins watching. It does not block; call Stop to release resources.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrRunning
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Join(ErrWatch, err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		_ = fsw.Close()
		return errors.Join(ErrWatch, err)
	}

	w.fsw = fsw
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.running = true

	go w.run(ctx, fsw, w.stopCh, w.doneCh)
	w.log.InfoContext(ctx, "watching rollout config")
	return nil
}

// Stop stops watching and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stopCh)
	done, fsw := w.doneCh, w.fsw
	w.mu.Unlock()

	<-done
	if err := fsw.Close(); err != nil {
		w.log.Error("failed to close file watcher", logger.Error(err))
	}
}

// Reload reads the document and installs it on the target.
func (w *Watcher) Reload(ctx context.Context) error {
	err := w.reload(ctx)
	w.metrics.RecordReload(err == nil)
	if err != nil {
		w.log.ErrorContext(ctx, "rollout config reload rejected, keeping active config", logger.Error(err))
		return errors.Join(ErrReload, err)
	}
	w.log.InfoContext(ctx, "rollout config reloaded")
	return nil
}

func (w *Watcher) reload(ctx context.Context) error {
	cfg, _, err := rollout.LoadFile(w.path)
	if err != nil {
		return err
	}
	for _, check := range w.checks {
		if err := check(cfg); err != nil {
			return err
		}
	}
	if err := w.target.Replace(ctx, cfg); err != nil {
		return err
	}
	for _, fn := range w.onReload {
		fn(ctx, cfg)
	}
	return nil
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.DebugContext(ctx, "rollout config changed", slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.ErrorContext(ctx, "file watcher error", logger.Error(err))
		case <-timer.C:
			_ = w.Reload(ctx)
		}
	}
}

// relevant reports whether ev changed the watched document. Removal is not a
// reload: the file is expected to reappear on rename-based saves.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)
}
