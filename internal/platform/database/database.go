// Package database opens the ledger's SQL engines and applies their migrations.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"sanad/internal/platform/config"
)

// DefaultBusyTimeout is how long a SQLite writer waits on BEGIN IMMEDIATE
// before SQLITE_BUSY. It must stay well under the ledger tx timeout so a busy
// writer surfaces as retryable contention rather than a context deadline.
const DefaultBusyTimeout = time.Second

type sqliteOptions struct {
	busyTimeout time.Duration
}

type SQLiteOption func(*sqliteOptions)

// WithBusyTimeout sets the SQLite busy_timeout pragma.
func WithBusyTimeout(d time.Duration) SQLiteOption {
	return func(o *sqliteOptions) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// SQLiteDSN builds a modernc DSN with WAL, a busy timeout and IMMEDIATE write
// transactions, so concurrent writers queue on BEGIN instead of failing at commit.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + filepath.Clean(path) + "?" + q.Encode()
}

// OpenSQLite opens the ledger file. WAL lets readers run beside the single
// writer; IMMEDIATE writers queue on busy_timeout.
func OpenSQLite(path string, opts ...SQLiteOption) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	o := sqliteOptions{busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	db, err := sql.Open("sqlite", SQLiteDSN(path, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// OpenPostgres opens a pgx-backed database/sql pool.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// MigrateSQLite applies migrations from dir in fsys to the SQLite file at path.
// Migrations run on their own connection; golang-migrate closes it when done.
func MigrateSQLite(path string, fsys fs.FS, dir string) error {
	db, err := sql.Open("sqlite", SQLiteDSN(path, DefaultBusyTimeout))
	if err != nil {
		return fmt.Errorf("open sqlite for migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite migration driver: %w", err)
	}
	return run(fsys, dir, "sqlite", driver)
}

// MigratePostgres applies migrations from dir in fsys to the database at dsn.
func MigratePostgres(dsn string, fsys fs.FS, dir string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open postgres for migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("postgres migration driver: %w", err)
	}
	return run(fsys, dir, "pgx5", driver)
}

func run(fsys fs.FS, dir, name string, driver migratedb.Driver) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
