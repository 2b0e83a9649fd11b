// Package migrations holds graphd's numbered schema migrations, one
// function per file, matching the teacher's
// internal/storage/sqlite/migrations idiom: a plain func(*sql.DB) error,
// idempotent via its own existence check, named NNN_description.go.
package migrations

import "database/sql"

// Migration is one numbered, idempotent schema change.
type Migration struct {
	ID   int
	Name string
	Fn   func(db *sql.DB) error
}

var all []Migration

func register(id int, name string, fn func(db *sql.DB) error) {
	all = append(all, Migration{ID: id, Name: name, Fn: fn})
}

// All returns every registered migration, unordered; callers sort by ID.
func All() []Migration {
	out := make([]Migration, len(all))
	copy(out, all)
	return out
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1 AND column_name = $2
		)
	`, table, column).Scan(&exists)
	return exists, err
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_name = $1
		)
	`, table).Scan(&exists)
	return exists, err
}
