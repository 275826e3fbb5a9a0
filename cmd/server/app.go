package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sanad/internal/ledger/handler"
	"sanad/internal/ledger/idempotency"
	ledgermetrics "sanad/internal/ledger/metrics"
	"sanad/internal/ledger/outbox"
	"sanad/internal/ledger/service"
	"sanad/internal/ledger/store"
	"sanad/internal/ledger/store/memory"
	"sanad/internal/ledger/store/migrations"
	postgresstore "sanad/internal/ledger/store/postgres"
	sqlitestore "sanad/internal/ledger/store/sqlite"
	"sanad/internal/platform/config"
	"sanad/internal/platform/database"
	"sanad/internal/platform/kafka"
	httpmetrics "sanad/internal/platform/metrics"
	"sanad/internal/platform/redis"
	"sanad/pkg/platform/httputil"
	"sanad/pkg/platform/middleware/requesttime"
)

type app struct {
	router  http.Handler
	relay   *outbox.Worker
	closers []func()
	checks  map[string]func(context.Context) error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// migrate applies the schema for the configured engine. The memory store has none.
func migrate(cfg *config.Config) error {
	switch cfg.Ledger.Store {
	case config.StoreSQLite:
		return database.MigrateSQLite(cfg.Ledger.SQLitePath, migrations.SQLite, migrations.SQLiteDir)
	case config.StorePostgres:
		return database.MigratePostgres(cfg.Database.URL, migrations.Postgres, migrations.PostgresDir)
	}
	return nil
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{checks: map[string]func(context.Context) error{}}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := migrate(cfg); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	ledger, err := a.openLedger(ctx, cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := ledgermetrics.New(reg)
	httpMetrics := httpmetrics.New(reg)

	matchMode, err := service.ParseMatchMode(cfg.Ledger.DuplicateMatchMode)
	if err != nil {
		return nil, err
	}
	svc := service.New(ledger,
		service.WithLogger(log),
		service.WithMetrics(ledgerMetrics),
		service.WithDuplicateMatchMode(matchMode),
		service.WithMaxRetries(cfg.Ledger.TxMaxRetries),
		service.WithEvents(cfg.EventsEnabled()),
	)

	idem, err := a.idempotencyStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.EventsEnabled() {
		if err := a.startRelay(cfg, ledger, ledgerMetrics, log); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requesttime.Middleware)
	r.Use(httpMetrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", a.health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	handler.New(svc, log,
		handler.WithIssueMiddleware(idempotency.Middleware(idem, cfg.Redis.IdempotencyTTL, log)),
	).Register(r)

	a.router = r
	return a, nil
}

func (a *app) openLedger(ctx context.Context, cfg *config.Config) (store.Ledger, error) {
	switch cfg.Ledger.Store {
	case config.StoreMemory:
		return memory.New(memory.WithTxTimeout(cfg.Ledger.TxTimeout)), nil
	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.Ledger.SQLitePath,
			database.WithBusyTimeout(cfg.Ledger.SQLiteBusyTimeout))
		if err != nil {
			return nil, err
		}
		a.closeDB(db)
		return sqlitestore.New(db, sqlitestore.WithTxTimeout(cfg.Ledger.TxTimeout)), nil
	case config.StorePostgres:
		db, err := database.OpenPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closeDB(db)
		return postgresstore.New(db,
			postgresstore.WithTxTimeout(cfg.Ledger.TxTimeout),
			postgresstore.WithLockTimeout(cfg.Ledger.LockTimeout),
		), nil
	}
	return nil, fmt.Errorf("unknown ledger store %q", cfg.Ledger.Store)
}

func (a *app) closeDB(db *sql.DB) {
	a.closers = append(a.closers, func() { _ = db.Close() })
	a.checks["database"] = db.PingContext
}

// health reports each dependency; any failure turns the response into a 503.
func (a *app) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := map[string]string{"status": "ok"}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report["status"] = "degraded"
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	httputil.WriteJSON(w, status, report)
}

// idempotencyStore prefers Redis so replays survive restarts and span replicas.
func (a *app) idempotencyStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (idempotency.Store, error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Info("REDIS_URL not set, idempotency keys are kept in memory")
		return idempotency.NewMemory(), nil
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	a.checks["redis"] = client.Health
	return idempotency.NewRedis(client.Client), nil
}

func (a *app) startRelay(cfg *config.Config, ledger store.Ledger, m *ledgermetrics.Metrics, log *slog.Logger) error {
	pending, ok := ledger.(store.Outbox)
	if !ok {
		return fmt.Errorf("store %q does not support the outbox", cfg.Ledger.Store)
	}
	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, producer.Close)
	a.checks["kafka"] = producer.Health

	relay, err := outbox.New(pending, outbox.NewKafkaPublisher(producer, cfg.Kafka.CertificateTopic),
		outbox.WithLogger(log),
		outbox.WithMetrics(m),
		outbox.WithInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
	)
	if err != nil {
		return err
	}
	a.relay = relay
	return nil
}
