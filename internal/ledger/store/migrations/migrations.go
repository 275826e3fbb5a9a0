// Package migrations embeds the ledger schema for each SQL engine.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)
