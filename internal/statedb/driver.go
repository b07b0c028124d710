package statedb

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4/database"

	"github.com/wonop-io/rushd/internal/rushderrors"
)

// sqliteDriver is a minimal database.Driver for golang-migrate backed by
// modernc.org/sqlite. A single process-local run history never needs
// real advisory locking, so Lock/Unlock are no-ops.
type sqliteDriver struct {
	db *sql.DB
}

func newSQLiteDriver(db *sql.DB) (database.Driver, error) {
	d := &sqliteDriver{db: db}
	if err := d.ensureVersionTable(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *sqliteDriver) ensureVersionTable() error {
	_, err := d.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER NOT NULL PRIMARY KEY,
		dirty   INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("statedb: create schema_migrations: %w", rushderrors.ErrIO)
	}
	return nil
}

func (d *sqliteDriver) Open(url string) (database.Driver, error) {
	return nil, fmt.Errorf("statedb: Open not supported, construct via newSQLiteDriver")
}

func (d *sqliteDriver) Close() error { return nil }

func (d *sqliteDriver) Lock() error   { return nil }
func (d *sqliteDriver) Unlock() error { return nil }

func (d *sqliteDriver) Run(migration io.Reader) error {
	body, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("statedb: read migration: %w", rushderrors.ErrIO)
	}
	if _, err := d.db.Exec(string(body)); err != nil {
		return fmt.Errorf("statedb: run migration: %w", rushderrors.ErrIO)
	}
	return nil
}

func (d *sqliteDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin set-version: %w", rushderrors.ErrIO)
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations`); err != nil {
		tx.Rollback()
		return fmt.Errorf("statedb: clear schema_migrations: %w", rushderrors.ErrIO)
	}
	if version >= 0 {
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
			tx.Rollback()
			return fmt.Errorf("statedb: insert schema_migrations: %w", rushderrors.ErrIO)
		}
	}
	return tx.Commit()
}

func (d *sqliteDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return -1, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("statedb: read version: %w", rushderrors.ErrIO)
	}
	return version, dirty, nil
}

func (d *sqliteDriver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("statedb: list tables: %w", rushderrors.ErrIO)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("statedb: scan table name: %w", rushderrors.ErrIO)
		}
		tables = append(tables, name)
	}
	rows.Close()

	for _, t := range tables {
		if _, err := d.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, t)); err != nil {
			return fmt.Errorf("statedb: drop table %s: %w", t, rushderrors.ErrIO)
		}
	}
	return nil
}
