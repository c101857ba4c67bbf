package phase

import (
	"context"
	"log/slog"
	"time"
)

// Hook observes every administrative operation after it ran, successful or not.
// Hooks run synchronously after the environment lock is released.
type Hook func(ctx context.Context, t Transition)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for transition logs.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithTransitionHook registers a hook. Hooks run in registration order.
func WithTransitionHook(h Hook) Option {
	return func(m *Manager) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

// WithClock overrides the time source used to stamp transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}
