package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	"sanad/internal/ledger/store/memory"
	"sanad/internal/ledger/store/migrations"
	sqlitestore "sanad/internal/ledger/store/sqlite"
	"sanad/internal/platform/database"
	"sanad/pkg/platform/sentinel"
)

type ledgerFactory func(t *testing.T) store.Ledger

func newMemoryLedger(*testing.T) store.Ledger {
	return memory.New()
}

func newSQLiteLedger(t *testing.T) store.Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	require.NoError(t, database.MigrateSQLite(path, migrations.SQLite, migrations.SQLiteDir))
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlitestore.New(db)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// busyLedger reports contention for the first failures transactions.
type busyLedger struct {
	store.Ledger
	failures int32
	attempts atomic.Int32
}

func (b *busyLedger) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if b.attempts.Add(1) <= b.failures {
		return sentinel.ErrUnavailable
	}
	return b.Ledger.RunInTx(ctx, fn)
}

// brokenCandidates fails every duplicate lookup.
type brokenCandidates struct {
	store.Ledger
}

func (brokenCandidates) FindCottageCandidates(context.Context, []string) ([]models.CottageRecord, error) {
	return nil, errors.New("index unavailable")
}
