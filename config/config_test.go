package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8090, cfg.Web.Port)
	assert.Equal(t, 5*time.Second, cfg.Messaging.OutboxDrainInterval)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bomdesk.yaml")
	data := []byte(`
database:
  driver: postgres
web:
  port: 9000
messaging:
  backend: kafka
  outbox_drain_interval: 2s
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 9000, cfg.Web.Port)
	assert.Equal(t, "kafka", cfg.Messaging.Backend)
	assert.Equal(t, 2*time.Second, cfg.Messaging.OutboxDrainInterval)
	// untouched sections keep defaults
	assert.Equal(t, "bomdesk.db", cfg.Database.SQLite.Path)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Defaults()
	cfg.Web.Port = 7070
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, got.Web.Port)
}

func TestOverlayFromEnv(t *testing.T) {
	t.Setenv("BOMDESK_PORT", "9191")
	t.Setenv("BOMDESK_DB_PATH", "/tmp/other.db")

	cfg := Defaults()
	cfg.Apply(NewOverlay())
	assert.Equal(t, 9191, cfg.Web.Port)
	assert.Equal(t, "/tmp/other.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestOverlayExplicitSet(t *testing.T) {
	v := NewOverlay()
	v.Set(KeyLogLevel, "debug")

	cfg := Defaults()
	cfg.Apply(v)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
