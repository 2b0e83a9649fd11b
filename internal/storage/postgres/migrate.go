package postgres

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/steveyegge/graphd/internal/storage/postgres/migrations"
)

// Migrate applies every unapplied migration from the migrations subpackage,
// in ascending ID order, recording each in schema_migrations as it
// succeeds. Mirrors the teacher's per-migration-function idiom: each
// migration is responsible for its own idempotency check, so re-running
// Migrate against an already-current database is always a no-op.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.Query(`SELECT id FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[id] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate schema_migrations: %w", err)
	}
	rows.Close()

	all := migrations.All()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	for _, m := range all {
		if applied[m.ID] {
			continue
		}
		if err := m.Fn(db); err != nil {
			return fmt.Errorf("migration %03d_%s: %w", m.ID, m.Name, err)
		}
		if _, err := db.Exec(
			`INSERT INTO schema_migrations (id, name) VALUES ($1, $2)`,
			m.ID, m.Name,
		); err != nil {
			return fmt.Errorf("record migration %03d_%s: %w", m.ID, m.Name, err)
		}
	}
	return nil
}
