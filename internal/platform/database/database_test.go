package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("data/ledger.db", 250*time.Millisecond)
	assert.Contains(t, dsn, "file:data/ledger.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "busy_timeout%28250%29")
	assert.Contains(t, dsn, "journal_mode%28WAL%29")
}

func TestOpenSQLiteAppliesBusyTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := OpenSQLite(path, WithBusyTimeout(300*time.Millisecond))
	require.NoError(t, err)
	defer db.Close()
	var ms int64
	require.NoError(t, db.QueryRow(`PRAGMA busy_timeout`).Scan(&ms))
	assert.Equal(t, int64(300), ms)

	def, err := OpenSQLite(path)
	require.NoError(t, err)
	defer def.Close()
	require.NoError(t, def.QueryRow(`PRAGMA busy_timeout`).Scan(&ms))
	assert.Equal(t, DefaultBusyTimeout.Milliseconds(), ms)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	fsys := fstest.MapFS{
		"m/000001_widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id INTEGER PRIMARY KEY);")},
		"m/000001_widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
	}

	require.NoError(t, MigrateSQLite(path, fsys, "m"))
	require.NoError(t, MigrateSQLite(path, fsys, "m"))

	db, err := OpenSQLite(path)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&n))
	assert.Zero(t, n)
}
