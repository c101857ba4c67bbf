package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrEmptyConnectionString indicates Config.ConnectionString is not set.
	ErrEmptyConnectionString = errors.New("pg: empty connection string (ROLLOUT_PG_CONN_URL)")

	// ErrInvalidConfig indicates the connection string could not be parsed.
	ErrInvalidConfig = errors.New("pg: invalid pool config")

	// ErrConnect indicates no connection could be established within the retry budget.
	ErrConnect = errors.New("pg: cannot connect")

	// ErrUnhealthy indicates a readiness ping failed.
	ErrUnhealthy = errors.New("pg: database unavailable")

	// ErrMigrate indicates the schema migrations did not apply.
	ErrMigrate = errors.New("pg: migrations failed")
)

const uniqueViolation = "23505"

// IsDuplicateKeyError reports whether err is a unique constraint violation.
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
