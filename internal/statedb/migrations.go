package statedb

import "embed"

// migrationFiles embeds the run-history schema. golang-migrate's iofs
// source driver reads these directly, so there is no migrations/
// directory to ship alongside the binary.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS
