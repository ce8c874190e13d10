package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trustcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Zero(t, cfg.Commission.DefaultRateBps)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: ":9090"
  requests_per_second: 10
postgres:
  dsn: "postgres://localhost/trustcore?sslmode=disable"
commission:
  default_rate_bps: 75
fraud:
  max_order_usd6: 5000000000
vault:
  retention_bps: 2000
credit:
  sweep_schedule: "*/30 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, float64(10), cfg.Server.RequestsPerSecond)
	assert.Equal(t, "postgres://localhost/trustcore?sslmode=disable", cfg.Postgres.DSN)
	assert.Equal(t, int64(75), cfg.Commission.DefaultRateBps)
	assert.Equal(t, int64(5_000_000_000), cfg.Fraud.MaxOrderUsd6)
	assert.Equal(t, int64(2000), cfg.Vault.RetentionBps)
	assert.Equal(t, "*/30 * * * *", cfg.Credit.SweepSchedule)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/override")
	t.Setenv("TRUSTCORE_AUTH_SECRET", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/override", cfg.Postgres.DSN)
	assert.Equal(t, "from-env", cfg.Server.AuthSecret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "commission:\n  default_rate_bps: 20000\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "vault:\n  retention_bps: -5\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
