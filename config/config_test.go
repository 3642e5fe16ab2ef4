package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 5, cfg.ErrorBudget)
	assert.Equal(t, time.Second, cfg.BatchInterval)
	assert.Equal(t, 24*time.Hour, cfg.DuplicateWindow)
	assert.Equal(t, 90*24*time.Hour, cfg.MaxHistoryWindow)
	assert.Equal(t, "1", cfg.DefaultCountryCode)
	assert.Equal(t, "feedsync_progress", cfg.RabbitQueue)
	assert.False(t, cfg.S3Enabled)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("SYNC_PAGE_SIZE", "100")
	t.Setenv("SYNC_ERROR_BUDGET", "10")
	t.Setenv("SYNC_BATCH_INTERVAL", "250ms")
	t.Setenv("S3_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 10, cfg.ErrorBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchInterval)
	assert.True(t, cfg.S3Enabled)
}

func TestLoadConfigIgnoresInvalidValues(t *testing.T) {
	t.Setenv("SYNC_PAGE_SIZE", "many")
	t.Setenv("SYNC_BATCH_INTERVAL", "soon")
	t.Setenv("S3_ENABLED", "perhaps")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.BatchInterval)
	assert.False(t, cfg.S3Enabled)
}
