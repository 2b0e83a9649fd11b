package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors for common storage conditions, returned by every package
// under internal/storage, internal/eventlog, internal/projection, and
// internal/jobqueue so callers can errors.Is against a stable set
// regardless of which component raised them.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrOptimisticConflict indicates an append's expected_version did not
	// match the stream's actual tail (spec.md §4.A).
	ErrOptimisticConflict = errors.New("optimistic conflict")

	// ErrConflict indicates a unique constraint violation other than the
	// idempotency-key no-op path (spec.md §7).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates a malformed request: bad UUID, missing
	// required field, unknown id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient indicates the storage layer is temporarily unavailable;
	// callers may retry, the projector backs off and retries.
	ErrTransient = errors.New("transient storage error")
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// WrapDBError wraps a database error with operation context, normalizing
// sql.ErrNoRows to ErrNotFound and unique-constraint violations to
// ErrConflict, matching the teacher's wrapDBError convention
// (internal/storage/sqlite/errors.go) one-for-one but for the pgx driver's
// error shapes instead of SQLite's.
func WrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, ErrTransient)
}

// WrapDBErrorf wraps a database error with a formatted operation context.
func WrapDBErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return WrapDBError(fmt.Sprintf(format, args...), err)
}
