package feature

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisOverridesKey is the hash that stores overrides.
const DefaultRedisOverridesKey = "rollout:overrides"

// RedisOverrides stores overrides in a single Redis hash (flag -> "1"/"0"),
// so every process sharing the Redis instance sees the same overrides.
type RedisOverrides struct {
	client redis.Cmdable
	key    string
}

// RedisOverridesOption configures a RedisOverrides store.
type RedisOverridesOption func(*RedisOverrides)

// WithRedisKey sets the hash key. Empty keys are ignored.
func WithRedisKey(key string) RedisOverridesOption {
	return func(r *RedisOverrides) {
		if key != "" {
			r.key = key
		}
	}
}

// NewRedisOverrides creates a store on top of a go-redis client.
func NewRedisOverrides(client redis.Cmdable, opts ...RedisOverridesOption) *RedisOverrides {
	r := &RedisOverrides{client: client, key: DefaultRedisOverridesKey}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisOverrides) Get(ctx context.Context, flag Name) (bool, bool, error) {
	raw, err := r.client.HGet(ctx, r.key, string(flag)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Join(ErrOverrideStore, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, errors.Join(ErrOverrideStore, err)
	}
	return v, true, nil
}

func (r *RedisOverrides) Set(ctx context.Context, flag Name, value bool) error {
	if err := r.client.HSet(ctx, r.key, string(flag), encodeBool(value)).Err(); err != nil {
		return errors.Join(ErrOverrideStore, err)
	}
	return nil
}

func (r *RedisOverrides) Delete(ctx context.Context, flag Name) error {
	n, err := r.client.HDel(ctx, r.key, string(flag)).Result()
	if err != nil {
		return errors.Join(ErrOverrideStore, err)
	}
	if n == 0 {
		return ErrOverrideNotFound
	}
	return nil
}

func (r *RedisOverrides) List(ctx context.Context) (map[Name]bool, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.Join(ErrOverrideStore, err)
	}
	out := make(map[Name]bool, len(raw))
	for k, v := range raw {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Join(ErrOverrideStore, err)
		}
		out[Name(k)] = b
	}
	return out, nil
}

func encodeBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
