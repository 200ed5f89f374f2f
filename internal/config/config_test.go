package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIELDAUDIT_CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "fieldaudit.db", cfg.DB.Path)
	require.Equal(t, "stdio", cfg.Transport.Mode)
	require.Equal(t, 3, cfg.Sync.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.Sync.BaseBackoff)
	require.Equal(t, 8*time.Second, cfg.Sync.MaxBackoff)
	require.Equal(t, 750*time.Millisecond, cfg.Draft.Debounce)
	require.Equal(t, 100.0, cfg.Geofence.StartRadius)
	require.Equal(t, 500.0, cfg.Geofence.SubmitBlockRadius)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9090
sync:
  max_attempts: 5
  base_backoff: 250ms
draft:
  debounce: 1s
geofence:
  start_radius: 50
templates:
  path: templates.yaml
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("FIELDAUDIT_CONFIG_PATH", path)
	t.Setenv("FIELDAUDIT_SERVER_PORT", "9191")
	t.Setenv("FIELDAUDIT_TRANSPORT_MODE", "http")
	t.Setenv("FIELDAUDIT_API_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9191, cfg.Server.Port)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.Equal(t, 5, cfg.Sync.MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.Sync.BaseBackoff)
	require.Equal(t, 8*time.Second, cfg.Sync.MaxBackoff)
	require.Equal(t, time.Second, cfg.Draft.Debounce)
	require.Equal(t, 3*time.Second, cfg.API.Timeout)
	require.Equal(t, 50.0, cfg.Geofence.StartRadius)
	require.Equal(t, "templates.yaml", cfg.Templates.Path)
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("FIELDAUDIT_CONFIG_PATH", "")

	t.Setenv("FIELDAUDIT_SERVER_PORT", "abc")
	_, err := Load()
	require.ErrorContains(t, err, "FIELDAUDIT_SERVER_PORT")

	t.Setenv("FIELDAUDIT_SERVER_PORT", "")
	t.Setenv("FIELDAUDIT_TRANSPORT_MODE", "carrier-pigeon")
	_, err = Load()
	require.ErrorContains(t, err, "transport mode")

	t.Setenv("FIELDAUDIT_TRANSPORT_MODE", "")
	t.Setenv("FIELDAUDIT_SYNC_MAX_ATTEMPTS", "0")
	_, err = Load()
	require.Error(t, err)
}

func TestValidateGeofenceOrder(t *testing.T) {
	cfg := Default()
	cfg.Geofence.SubmitEntryRadius = 600
	require.Error(t, cfg.Validate())
}

func TestAPIKeysFromEnv(t *testing.T) {
	t.Setenv("FIELDAUDIT_CONFIG_PATH", "")
	t.Setenv("FIELDAUDIT_API_KEYS", "tok-a=alice, tok-b=bob")
	t.Setenv("FIELDAUDIT_API_TOKEN", "tok-a")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, map[string]string{"tok-a": "alice", "tok-b": "bob"}, cfg.Server.APIKeys)
	require.Equal(t, "tok-a", cfg.API.Token)

	t.Setenv("FIELDAUDIT_API_KEYS", "tok-a")
	_, err = Load()
	require.ErrorContains(t, err, "FIELDAUDIT_API_KEYS")
}
