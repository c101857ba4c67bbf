package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/rolloutkit/pkg/logger"
	"github.com/dmitrymomot/rolloutkit/pkg/phase"
)

// contextExtractor reads a value from context. It returns (value, found).
type contextExtractor func(context.Context) (string, bool)

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the logger used to report storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.log = l
		}
	}
}

// WithMetadataExtractor copies a context value into event metadata under key.
func WithMetadataExtractor(key string, fn contextExtractor) Option {
	return func(j *Journal) {
		if key != "" && fn != nil {
			j.extractors[key] = fn
		}
	}
}

// Journal records administrative phase operations.
type Journal struct {
	storage    Storage
	log        *slog.Logger
	extractors map[string]contextExtractor
}

// New creates a journal over storage.
func New(storage Storage, opts ...Option) *Journal {
	if storage == nil {
		panic("journal: storage cannot be nil")
	}
	j := &Journal{
		storage:    storage,
		log:        logger.Discard(),
		extractors: make(map[string]contextExtractor),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record stores t. Its signature matches phase.Hook, so a journal can be
// registered with phase.WithTransitionHook. Storage failures are logged and
// never affect the operation that was recorded.
func (j *Journal) Record(ctx context.Context, t phase.Transition) {
	e := j.event(ctx, t)
	if err := j.storage.Store(ctx, e); err != nil {
		j.log.ErrorContext(ctx, "failed to record rollout transition",
			logger.Operation(string(t.Op)),
			logger.Environment(t.Environment),
			logger.Error(err),
		)
	}
}

// List returns recorded events matching f, newest first.
func (j *Journal) List(ctx context.Context, f Filter) ([]Event, error) {
	return j.storage.List(ctx, f)
}

func (j *Journal) event(ctx context.Context, t phase.Transition) Event {
	e := Event{
		ID:          uuid.New().String(),
		Environment: t.Environment,
		Action:      string(t.Op),
		PhaseID:     t.PhaseID,
		FromIndex:   t.FromIndex,
		ToIndex:     t.ToIndex,
		FromStatus:  string(t.FromStatus),
		ToStatus:    string(t.ToStatus),
		Result:      ResultApplied,
		Reason:      t.Reason,
		CreatedAt:   t.At,
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if t.Err != nil {
		e.Result = ResultRejected
		e.Error = t.Err.Error()
	}
	for key, fn := range j.extractors {
		if v, ok := fn(ctx); ok {
			if e.Metadata == nil {
				e.Metadata = make(map[string]any, len(j.extractors))
			}
			e.Metadata[key] = v
		}
	}
	return e
}
