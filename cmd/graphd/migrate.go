package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/steveyegge/graphd/internal/config"
	"github.com/steveyegge/graphd/internal/storage/postgres"
)

var migrateWatch bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Long: `Applies every unapplied migration from internal/storage/postgres/migrations
in ascending order, recording each in schema_migrations as it succeeds.
Safe to re-run against an already-current database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()

		if err := postgres.Migrate(store.DB()); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("graphd: migrations applied")

		if !migrateWatch {
			return nil
		}
		return watchMigrations(ctx, store)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateWatch, "watch", false, "re-run pending migrations when a new migration file is added (development mode)")
	rootCmd.AddCommand(migrateCmd)
}

// watchMigrations re-applies Migrate whenever a file is created in the
// migrations directory, so a developer adding a new migration function
// doesn't need to restart the process to pick it up. Repurposes the
// teacher's fsnotify dependency (internal/coop/watcher.go) for a
// development-only use; never runs in serve/worker.
func watchMigrations(ctx context.Context, store *postgres.Store) error {
	const migrationsDir = "internal/storage/postgres/migrations"

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch migrations: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(migrationsDir); err != nil {
		if os.IsNotExist(err) {
			log.WithField("dir", migrationsDir).Warn("graphd: migrations directory not found, --watch disabled")
			return nil
		}
		return fmt.Errorf("watch migrations: %w", err)
	}

	log.WithField("dir", migrationsDir).Info("graphd: watching for new migration files")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			log.WithField("file", ev.Name).Info("graphd: migration file changed, re-applying")
			if err := postgres.Migrate(store.DB()); err != nil {
				log.WithError(err).Error("graphd: migrate on watch event failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("graphd: migration watcher error")
		}
	}
}
