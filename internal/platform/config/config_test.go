package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, StoreSQLite, cfg.Ledger.Store)
	assert.Equal(t, "insurance_system.db", cfg.Ledger.SQLitePath)
	assert.Equal(t, 5*time.Second, cfg.Ledger.TxTimeout)
	assert.Equal(t, time.Second, cfg.Ledger.SQLiteBusyTimeout)
	assert.Equal(t, 5, cfg.Ledger.TxMaxRetries)
	assert.Equal(t, MatchSubstring, cfg.Ledger.DuplicateMatchMode)
	assert.Equal(t, 24*time.Hour, cfg.Redis.IdempotencyTTL)
	assert.Equal(t, "sanad.certificates.issued", cfg.Kafka.CertificateTopic)
	assert.False(t, cfg.EventsEnabled())
	assert.False(t, cfg.Server.IsProduction())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LEDGER_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/sanad")
	t.Setenv("LEDGER_DUPLICATE_MATCH_MODE", "token")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("SANAD_ENV", "production")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Ledger.Store)
	assert.Equal(t, MatchToken, cfg.Ledger.DuplicateMatchMode)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.EventsEnabled())
	assert.True(t, cfg.Server.IsProduction())
}

func TestFromEnvRejectsInvalid(t *testing.T) {
	t.Run("postgres without url", func(t *testing.T) {
		t.Setenv("LEDGER_STORE", "postgres")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("unknown store", func(t *testing.T) {
		t.Setenv("LEDGER_STORE", "mysql")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("unknown match mode", func(t *testing.T) {
		t.Setenv("LEDGER_DUPLICATE_MATCH_MODE", "fuzzy")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		t.Setenv("LEDGER_TX_TIMEOUT", "soon")
		_, err := FromEnv()
		assert.Error(t, err)
	})

	t.Run("write timeout shorter than tx timeout", func(t *testing.T) {
		t.Setenv("LEDGER_TX_TIMEOUT", "10s")
		t.Setenv("SANAD_WRITE_TIMEOUT", "5s")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "SANAD_WRITE_TIMEOUT")
	})

	t.Run("busy timeout too close to tx timeout", func(t *testing.T) {
		t.Setenv("LEDGER_SQLITE_BUSY_TIMEOUT", "4s")
		_, err := FromEnv()
		assert.ErrorContains(t, err, "LEDGER_SQLITE_BUSY_TIMEOUT")
	})
}
