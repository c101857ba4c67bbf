package monitor_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/rolloutkit/pkg/monitor"
)

func TestRedisSource(t *testing.T) {
	url := os.Getenv("ROLLOUT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ROLLOUT_TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	prefix := "rollout:test:metrics:" + uuid.NewString() + ":"
	src := monitor.NewRedisSource(client, prefix)
	t.Cleanup(func() { client.Del(context.Background(), src.Key("production"), src.Key("staging")) })

	require.NoError(t, client.HSet(ctx, src.Key("production"), "error_rate", "0.07", "latency_p95", "640").Err())

	live, err := src.Fetch(ctx, "production")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"error_rate": 0.07, "latency_p95": 640}, live)

	live, err = src.Fetch(ctx, "canary")
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, client.HSet(ctx, src.Key("staging"), "error_rate", "high").Err())
	_, err = src.Fetch(ctx, "staging")
	assert.ErrorIs(t, err, monitor.ErrFetchMetrics)
}

func TestRedisSourceUnavailable(t *testing.T) {
	t.Parallel()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	src := monitor.NewRedisSource(client, "")
	assert.Equal(t, "rollout:metrics:production", src.Key("production"))

	_, err := src.Fetch(context.Background(), "production")
	assert.ErrorIs(t, err, monitor.ErrFetchMetrics)
}
