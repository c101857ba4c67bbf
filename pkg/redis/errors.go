package redis

import "errors"

var (
	// ErrEmptyConnectionURL indicates Config.ConnectionURL is not set.
	ErrEmptyConnectionURL = errors.New("redis: empty connection URL (ROLLOUT_REDIS_URL)")

	// ErrInvalidURL indicates the connection URL could not be parsed.
	ErrInvalidURL = errors.New("redis: invalid connection URL")

	// ErrConnect indicates the server did not answer a ping within the retry budget.
	ErrConnect = errors.New("redis: cannot connect")

	// ErrUnhealthy indicates a readiness ping failed.
	ErrUnhealthy = errors.New("redis: server unavailable")
)
