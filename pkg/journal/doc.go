// Package journal keeps an audit trail of rollout operations.
//
// Every phase advance, rollback, status change and configuration replace
// reported by the phase manager becomes an Event, including rejected
// attempts. Events are written to a Storage: MemoryStorage for tests and
// short-lived processes, PostgresStorage for a durable history.
//
//	j := journal.New(journal.NewPostgresStorage(pool),
//		journal.WithLogger(log),
//		journal.WithMetadataExtractor("request_id", requestIDFromContext),
//	)
//	mgr, err := phase.New(cfg, phase.WithTransitionHook(j.Record))
//
// PostgresStorage expects the rollout_journal table; apply Migrations with
// pg.Migrate before use.
package journal
