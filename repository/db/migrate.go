package db

import (
	"embed"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationSource returns the embedded migrations for an empty path and the
// directory at path otherwise.
func migrationSource(path string) (string, source.Driver, error) {
	if path == "" {
		src, err := iofs.New(migrationsFS, "migrations")
		if err != nil {
			return "", nil, fmt.Errorf("migration source: %w", err)
		}
		return "iofs", src, nil
	}
	src, err := (&file.File{}).Open("file://" + path)
	if err != nil {
		return "", nil, fmt.Errorf("migration source %s: %w", path, err)
	}
	return "file", src, nil
}

// Migration brings the schema at dbDSN up to date. With an empty migratePath
// the migrations embedded in the binary are used, otherwise the directory is
// read from disk.
func Migration(dbDSN, migratePath string) error {
	if dbDSN == "" {
		return fmt.Errorf("migration: empty database DSN")
	}

	name, src, err := migrationSource(migratePath)
	if err != nil {
		log.Println("[ERROR] Failed to open migrations:", err)
		return err
	}
	m, err := migrate.NewWithSourceInstance(name, src, dbDSN)
	if err != nil {
		_ = src.Close()
		log.Println("[ERROR] Failed to initialise migrations:", err)
		return fmt.Errorf("migration database: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Println("[ERROR] Failed to apply migrations:", err)
		return err
	}
	log.Println("[SUCCESS] Database schema is up to date")
	return nil
}
