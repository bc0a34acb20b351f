package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cases-miniapp-backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LEDGER_BACKEND", "")
	t.Setenv("INIT_DATA_MAX_AGE", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.BackendRedis, cfg.LedgerBackend)
	assert.Equal(t, 24*time.Hour, cfg.InitDataMaxAge)
	assert.Equal(t, 3*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, int64(1), cfg.PriceStars)
	assert.Equal(t, int64(1), cfg.OpensPerPurchase)
}

func TestLoadRequiresBotToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadPostgresNeedsDSN(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LEDGER_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/cases?sslmode=disable")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.BackendPostgres, cfg.LedgerBackend)
}

func TestLoadFreshnessDisabled(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("INIT_DATA_MAX_AGE", "0")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.InitDataMaxAge)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("LEDGER_BACKEND", "mongo")

	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("LEDGER_BACKEND", "memory")
	t.Setenv("LEDGER_TIMEOUT", "soon")
	_, err = config.Load()
	assert.Error(t, err)
}
