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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file::memory:"
laundry:
  machines:
    - { id: washer-1, type: washer }
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.CacheTTL())
	assert.Equal(t, "anyone", cfg.Laundry.StopPolicy)
	assert.Equal(t, 30*time.Second, cfg.Laundry.ReconcileInterval)
	assert.Equal(t, "washer-1", cfg.Laundry.Machines[0].Name, "name falls back to id")
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.False(t, cfg.Push.Enabled())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  dsn: "file.db"
`)
	t.Setenv("LAUNDRY_DATABASE_DSN", "other.db")
	t.Setenv("LAUNDRY_JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "other.db", cfg.Database.DSN)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"unknown driver", "database: {driver: mysql, dsn: x}"},
		{"missing dsn", "database: {driver: sqlite}"},
		{"bad stop policy", "database: {driver: sqlite, dsn: x}\nlaundry: {stop_policy: nobody}"},
		{"bad machine type", "database: {driver: sqlite, dsn: x}\nlaundry: {machines: [{id: m1, type: oven}]}"},
		{"machine without id", "database: {driver: sqlite, dsn: x}\nlaundry: {machines: [{type: washer}]}"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ListenNotifyNeedsPostgres(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database: {driver: sqlite, dsn: x, listen_notify: true}"))
	require.NoError(t, err)
	assert.False(t, cfg.Database.ListenNotify)
}
