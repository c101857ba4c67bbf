// Package redis connects to the Redis server that backs shared flag
// overrides.
//
// Connect parses a redis:// URL, then pings with retries so a service fails
// fast when Redis is unreachable. Healthcheck adapts a client to the
// readiness endpoint.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	overrides := feature.NewRedisOverrides(client, feature.WithRedisKey(cfg.OverridesKey))
package redis
