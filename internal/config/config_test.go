package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves the test into an empty directory so no config or .env is found.
func chdir(t *testing.T) string {
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("HUDDLE_AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Presence.GracePeriod)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "least_loaded", cfg.Relay.Placement)
	assert.Equal(t, 1, cfg.Relay.Workers)
	assert.Equal(t, "s3cret", cfg.Secret, "cookie secret falls back to the auth secret")
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(`
port: 9000
log_level: debug
relay:
  workers: 3
  placement: round_robin
  announced_ip: "203.0.113.7, 203.0.113.8"
store:
  driver: sqlite
  uri: ./data/test.db
`), 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("HUDDLE_AUTH_SECRET", "s3cret")
	t.Setenv("HUDDLE_RELAY_WORKERS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 4, cfg.Relay.Workers, "environment wins over the file")
	assert.Equal(t, "round_robin", cfg.Relay.Placement)
	assert.Equal(t, []string{"203.0.113.7", "203.0.113.8"}, cfg.Relay.AnnouncedIPs())
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadRequiresAuthSecret(t *testing.T) {
	chdir(t)
	t.Setenv("HUDDLE_AUTH_SECRET", "")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HUDDLE_AUTH_SECRET=from-dotenv\n"), 0o644))
	// godotenv never overrides; make sure the variable is unset for this test.
	t.Setenv("HUDDLE_AUTH_SECRET", "")
	require.NoError(t, os.Unsetenv("HUDDLE_AUTH_SECRET"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Auth.Secret)
	t.Cleanup(func() { _ = os.Unsetenv("HUDDLE_AUTH_SECRET") })
}
