// Package pg bootstraps the PostgreSQL connection used by the transition
// journal.
//
// Connect opens a pgx pool with retries, Migrate applies goose migrations
// from an embedded filesystem through the pgx database/sql bridge, and
// Healthcheck returns a probe for the readiness endpoint.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, journal.Migrations, cfg, log); err != nil {
//		return err
//	}
//
// Settings come from environment variables through Config; see its field
// tags for names and defaults.
package pg
