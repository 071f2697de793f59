package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/messageapi/apiserver/config"
	"github.com/messageapi/apiserver/internal/db/migrations"
)

// MigrateUp applies all pending migrations. It is a no-op when the schema is
// already current.
func MigrateUp(cfg config.DatabaseConfig) error {
	return runMigrations(cfg, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back every applied migration.
func MigrateDown(cfg config.DatabaseConfig) error {
	return runMigrations(cfg, func(m *migrate.Migrate) error { return m.Down() })
}

func runMigrations(cfg config.DatabaseConfig, run func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open migrations failed: %w", err)
	}

	migrator, err := migrate.NewWithSourceInstance("iofs", source, PostgresURL(cfg))
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := run(migrator); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
