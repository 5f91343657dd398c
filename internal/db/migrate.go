// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var embeddedMigrations embed.FS

// newMigrator builds a migrate instance for the embedded migrations of
// dbType on top of an already opened connection.
func newMigrator(sqlDB *sql.DB, dbType string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(embeddedMigrations, "migrations/"+dbType)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	var dbDriver database.Driver
	switch dbType {
	case "sqlite":
		dbDriver, err = migratesqlite.WithInstance(sqlDB, &migratesqlite.Config{})
	case "postgres":
		dbDriver, err = migratepgx.WithInstance(sqlDB, &migratepgx.Config{})
	case "mysql":
		dbDriver, err = migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	default:
		return nil, fmt.Errorf("unsupported database type for migrations: '%s'", dbType)
	}
	if err != nil {
		return nil, fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, dbType, dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations applies all pending migrations embedded in the binary.
// Already applied migrations are skipped, so it is safe on every start.
func RunMigrations(sqlDB *sql.DB, dbType string) error {
	start := time.Now()
	dbLogf("db: starting migrations for %s", dbType)
	m, err := newMigrator(sqlDB, dbType)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	dbLogf("db: applied migrations for %s in %s", dbType, time.Since(start))
	return nil
}

// MigrationVersion reports the current schema version and whether the last
// migration was left dirty. A fresh database reports version 0.
func MigrationVersion(sqlDB *sql.DB, dbType string) (version uint, dirty bool, err error) {
	m, err := newMigrator(sqlDB, dbType)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("get migration version: %w", err)
	}
	return version, dirty, nil
}
