package main

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const defaultLockRetryInterval = 200 * time.Millisecond

// projectorLock enforces spec.md §5's "exactly one projector loop per
// named projection runs at a time." A Postgres session-level advisory
// lock (pg_advisory_lock) is the authoritative cross-process guarantee —
// it is held by the connection for the lifetime of the process and
// released automatically if the connection drops, so a crashed projector
// never leaves the projection permanently unowned. The gofrs/flock file
// lock underneath it only guards the narrower case of two projector
// processes started on the same host (spec.md's belt-and-suspenders
// note; grounded on the teacher's internal/daemonrunner/flock_unix.go).
type projectorLock struct {
	db       *sql.DB
	conn     *sql.Conn
	key      int64
	fileLock *flock.Flock
}

// acquireProjectorLock blocks until both the local file lock and the
// Postgres advisory lock for name are held, or ctx is canceled.
func acquireProjectorLock(ctx context.Context, db *sql.DB, name string) (*projectorLock, error) {
	fileLock := flock.New(filepath.Join(os.TempDir(), "graphd-projector-"+name+".lock"))
	locked, err := fileLock.TryLockContext(ctx, defaultLockRetryInterval)
	if err != nil {
		return nil, fmt.Errorf("projector lock: local flock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("projector lock: %s already running on this host", name)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("projector lock: acquire connection: %w", err)
	}

	key := advisoryKey(name)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		_ = conn.Close()
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("projector lock: pg_advisory_lock(%s): %w", name, err)
	}

	return &projectorLock{db: db, conn: conn, key: key, fileLock: fileLock}, nil
}

// Release unlocks the advisory lock's dedicated connection and the local
// file lock, in that order.
func (l *projectorLock) Release() error {
	_, err := l.conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, l.key)
	_ = l.conn.Close()
	_ = l.fileLock.Unlock()
	return err
}

// advisoryKey derives a stable int64 lock key from a projection name so
// callers never have to hand-assign lock numbers.
func advisoryKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
