package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent to testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "nudge.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Notify.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Notify.InitialInterval)
	assert.Equal(t, 2*time.Second, cfg.Notify.MaxInterval)

	loc, err := cfg.Location.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "nudge.yaml", `
database: /var/lib/nudge/nudge.db
server:
  addr: 127.0.0.1:9000
  shutdown_timeout: 3s
log:
  level: debug
  format: json
notify:
  max_attempts: 5
location:
  timezone: UTC
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/nudge/nudge.db", cfg.Database)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Notify.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Notify.InitialInterval, "unset keys keep defaults")

	loc, err := cfg.Location.Load()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	policy := cfg.Notify.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.MaxInterval)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "nudge.yaml", "server:\n  addr: :9000\n")
	t.Setenv("NUDGE_SERVER_ADDR", ":7000")
	t.Setenv("NUDGE_DATABASE", "env.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "env.db", cfg.Database)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := writeFile(t, "nudge.yaml", "server: [unclosed\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeFile(t, "nudge.yaml", `
log:
  level: loud
notify:
  max_attempts: 0
location:
  timezone: Mars/Olympus_Mons
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "notify.max_attempts")
	assert.Contains(t, err.Error(), "location.timezone")
}
