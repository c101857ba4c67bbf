// Package logger builds context-aware slog loggers and keeps attribute keys
// consistent across the rollout engine.
//
// New creates a *slog.Logger from functional options: output format (JSON or
// text), minimum level, static attributes and ContextExtractor callbacks that
// pull values such as the target environment out of the context at log time.
//
//	log := logger.New(
//		logger.WithEnvironment("production", "rolloutctl"),
//		logger.WithContextExtractors(environment.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "phase advanced",
//		logger.Environment("staging"),
//		logger.PhaseID("beta"),
//	)
//
// Attribute helpers such as Error and PhaseID return an empty attribute for a
// nil error or an empty id, so they can be passed unconditionally.
//
// Components that accept a logger default to Discard.
package logger
