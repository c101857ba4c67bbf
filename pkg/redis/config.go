package redis

import "time"

// Config holds Redis connection settings. Embed it with an envPrefix to
// namespace the variables.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`    // ConnectionURL has the form "redis://:password@localhost:6379/0".
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`                // RetryAttempts is the number of connection attempts.
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`               // RetryInterval is the wait between attempts.
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"15s"`             // ConnectTimeout bounds all attempts together.
	OverridesKey   string        `env:"REDIS_OVERRIDES_KEY" envDefault:"rollout:overrides"` // OverridesKey is the hash that stores flag overrides.
	MetricsPrefix  string        `env:"REDIS_METRICS_PREFIX" envDefault:"rollout:metrics:"` // MetricsPrefix prefixes the per-environment metrics hashes.
}
