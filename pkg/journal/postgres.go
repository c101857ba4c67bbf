package journal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/rolloutkit/pkg/pg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations holds the goose migrations for PostgresStorage. Pass it to pg.Migrate.
var Migrations fs.FS = mustSub(migrationsFS, "migrations")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// DB is the subset of *pgxpool.Pool used by PostgresStorage.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStorage stores events in the rollout_journal table.
type PostgresStorage struct {
	db DB
}

// NewPostgresStorage returns a storage over db. Apply Migrations first.
func NewPostgresStorage(db DB) *PostgresStorage {
	if db == nil {
		panic("journal: db cannot be nil")
	}
	return &PostgresStorage{db: db}
}

const insertEvent = `
	INSERT INTO rollout_journal
		(id, environment, action, phase_id, from_index, to_index, from_status, to_status, result, error, reason, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Store inserts e.
func (s *PostgresStorage) Store(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}

	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return errors.Join(ErrInvalidEvent, err)
		}
	}

	_, err := s.db.Exec(ctx, insertEvent,
		e.ID, e.Environment, e.Action, e.PhaseID, e.FromIndex, e.ToIndex,
		e.FromStatus, e.ToStatus, string(e.Result), e.Error, e.Reason, meta, e.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case pg.IsDuplicateKeyError(err):
		return ErrDuplicateEvent
	default:
		return errors.Join(ErrStorageNotAvailable, err)
	}
}

// List returns matching events, newest first.
func (s *PostgresStorage) List(ctx context.Context, f Filter) ([]Event, error) {
	query, args := listQuery(f)
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Join(ErrStorageNotAvailable, err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e      Event
			result string
			meta   []byte
		)
		if err := rows.Scan(&e.ID, &e.Environment, &e.Action, &e.PhaseID, &e.FromIndex, &e.ToIndex,
			&e.FromStatus, &e.ToStatus, &result, &e.Error, &e.Reason, &meta, &e.CreatedAt); err != nil {
			return nil, errors.Join(ErrStorageNotAvailable, err)
		}
		e.Result = Result(result)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, errors.Join(ErrStorageNotAvailable, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageNotAvailable, err)
	}
	return out, nil
}

func listQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Environment != "" {
		add("environment = $%d", f.Environment)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.PhaseID != "" {
		add("phase_id = $%d", f.PhaseID)
	}
	if f.Result != "" {
		add("result = $%d", string(f.Result))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	var b strings.Builder
	b.WriteString(`SELECT id, environment, action, phase_id, from_index, to_index, from_status, to_status,
		result, error, reason, metadata, created_at FROM rollout_journal`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
