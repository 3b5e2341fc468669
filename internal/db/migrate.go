package db

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/geocoder89/certhub/migrations"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// RunMigrations applies the embedded migrations of one service. Each service
// keeps its own version table so they can migrate independently against a
// shared database.
func RunMigrations(log *slog.Logger, dbURL, service string) error {
	src, err := iofs.New(migrations.FS, service)
	if err != nil {
		return fmt.Errorf("migration source %q: %w", service, err)
	}

	dsn, err := withMigrationsTable(dbURL, service+"_schema_migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migration init: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("migrations applied", "schema", service, "version", version, "dirty", dirty)
	return nil
}

func withMigrationsTable(dbURL, table string) (string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}

	q := u.Query()
	q.Set("x-migrations-table", table)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
