package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisMetricsPrefix prefixes the per-environment metrics hash.
const DefaultRedisMetricsPrefix = "rollout:metrics:"

// RedisSource reads the latest metric values from a Redis hash per
// environment (metric id -> value). Metric pipelines write the hash; the
// monitor only reads it.
type RedisSource struct {
	client redis.Cmdable
	prefix string
}

// NewRedisSource creates a source reading prefix+env hashes. An empty prefix
// selects DefaultRedisMetricsPrefix.
func NewRedisSource(client redis.Cmdable, prefix string) *RedisSource {
	if prefix == "" {
		prefix = DefaultRedisMetricsPrefix
	}
	return &RedisSource{client: client, prefix: prefix}
}

// Key returns the hash holding the metrics of env.
func (s *RedisSource) Key(env string) string {
	return s.prefix + env
}

// Fetch returns the metrics of env. A missing hash yields an empty map.
func (s *RedisSource) Fetch(ctx context.Context, env string) (map[string]float64, error) {
	raw, err := s.client.HGetAll(ctx, s.Key(env)).Result()
	if err != nil {
		return nil, errors.Join(ErrFetchMetrics, err)
	}
	out := make(map[string]float64, len(raw))
	for id, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Join(ErrFetchMetrics, fmt.Errorf("metric %s: %w", id, err))
		}
		out[id] = f
	}
	return out, nil
}
