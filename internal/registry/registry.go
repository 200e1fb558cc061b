// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package registry persists a local, queryable copy of every GroupBy and
// Join configuration the server has successfully loaded. It is purely an
// operability aid for fetchctl — the metadata dataset remains the source
// of truth, and nothing on the fetch path ever reads from here.
package registry

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/qustavo/sqlhooks/v2"
)

var registerDriverOnce sync.Once

// Record is one row of the feature_config table.
type Record struct {
	Name     string `db:"name"`
	Kind     string `db:"kind"`
	LoadedAt int64  `db:"loaded_at"`
	RawJSON  string `db:"raw_json"`
}

type Registry struct {
	db *sqlx.DB
}

// Open connects to the SQLite-backed registry at path and migrates it to
// the supported schema version.
func Open(path string) (*Registry, error) {
	registerDriverOnce.Do(func() {
		sql.Register("sqlite3WithHooks", sqlhooks.Wrap(&sqlite3.SQLiteDriver{}, &Hooks{}))
	})
	db, err := sqlx.Open("sqlite3WithHooks", fmt.Sprintf("%s?_foreign_keys=on", path))
	if err != nil {
		return nil, fmt.Errorf("registry: opening %q: %w", path, err)
	}
	// SQLite does not multiplex writers; one connection avoids lock waits.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	return &Registry{db: db}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

// Upsert records that name/kind was successfully loaded with raw as its
// source document.
func (r *Registry) Upsert(name, kind string, raw []byte, loadedAt time.Time) error {
	query, args, err := sq.Insert("feature_config").
		Columns("name", "kind", "loaded_at", "raw_json").
		Values(name, kind, loadedAt.UnixMilli(), string(raw)).
		Suffix("ON CONFLICT(name, kind) DO UPDATE SET loaded_at = excluded.loaded_at, raw_json = excluded.raw_json").
		ToSql()
	if err != nil {
		return fmt.Errorf("registry: building upsert: %w", err)
	}
	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("registry: upsert %s/%s: %w", kind, name, err)
	}
	return nil
}

// List returns every record of the given kind ("groupby" or "join"),
// ordered by name.
func (r *Registry) List(kind string) ([]Record, error) {
	query, args, err := sq.Select("name", "kind", "loaded_at", "raw_json").
		From("feature_config").
		Where(sq.Eq{"kind": kind}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("registry: building list query: %w", err)
	}

	var records []Record
	if err := r.db.Select(&records, query, args...); err != nil {
		return nil, fmt.Errorf("registry: listing %s: %w", kind, err)
	}
	return records, nil
}

// Get returns one record by name and kind.
func (r *Registry) Get(name, kind string) (Record, error) {
	query, args, err := sq.Select("name", "kind", "loaded_at", "raw_json").
		From("feature_config").
		Where(sq.Eq{"name": name, "kind": kind}).
		ToSql()
	if err != nil {
		return Record{}, fmt.Errorf("registry: building get query: %w", err)
	}

	var record Record
	if err := r.db.Get(&record, query, args...); err != nil {
		return Record{}, fmt.Errorf("registry: getting %s/%s: %w", kind, name, err)
	}
	return record, nil
}
