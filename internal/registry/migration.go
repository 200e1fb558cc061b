// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/onfeat/fetchcore/pkg/log"
)

const supportedVersion uint = 1

//go:embed migrations/*
var migrationFiles embed.FS

func migrateUp(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("registry: sqlite3 migrate driver: %w", err)
	}
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("registry: migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("registry: migrate instance: %w", err)
	}

	if err := m.Migrate(supportedVersion); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("registry: migrating to version %d: %w", supportedVersion, err)
	}

	v, _, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("registry: reading migration version: %w", err)
	}
	log.Infof("registry: database at schema version %d", v)
	return nil
}
