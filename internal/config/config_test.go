package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilherme-santos/compasssync/internal/config"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 1, cfg.Import.YearsBack)
	assert.Equal(t, 100, cfg.Import.MaxInstances)
	assert.Equal(t, 15*time.Minute, cfg.Import.StaleAfter)
	assert.Equal(t, 7*24*time.Hour, cfg.Watch.TTL)
	assert.Equal(t, "@every 1h", cfg.Watch.RenewCron)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://compass@localhost/compass?sslmode=disable
listen: ":9000"
webhook_url: https://compass.example.com/v1/notifications/google
webhook_token: s3cret
import:
  years_back: 2
  stale_after: 5m
watch:
  ttl: 72h
  renew_window: 6h
verbose: true
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://compass@localhost/compass?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "s3cret", cfg.WebhookToken)
	assert.Equal(t, 2, cfg.Import.YearsBack)
	assert.Equal(t, 100, cfg.Import.MaxInstances)
	assert.Equal(t, 5*time.Minute, cfg.Import.StaleAfter)
	assert.Equal(t, 72*time.Hour, cfg.Watch.TTL)
	assert.Equal(t, 6*time.Hour, cfg.Watch.RenewWindow)
	assert.Equal(t, "@every 1h", cfg.Watch.RenewCron)
	assert.True(t, cfg.Verbose)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: ["), 0o600))

	_, err := config.Load(path)
	assert.Error(t, err)
}
