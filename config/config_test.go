// ABOUTME: Tests for config loading, env expansion, duration parsing

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatsync/ws"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/chatsync
network:
  request_timeout: 30s
  ping_interval: 30s
  backoff_min: 1s
  backoff_max: 30s
  status_delay: 200ms
guard:
  ttl: 1m
  max_size: 500
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/chatsync", cfg.Storage.DataDir)
	assert.Equal(t, 30*time.Second, cfg.Network.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Network.StatusDelay)
	assert.Equal(t, time.Minute, cfg.Guard.TTL)
	assert.Equal(t, 500, cfg.Guard.MaxSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CHATSYNC_TEST_DATA_DIR", "/tmp/chatsync-test")

	path := writeConfig(t, `
storage:
  data_dir: ${CHATSYNC_TEST_DATA_DIR}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/chatsync-test", cfg.Storage.DataDir)
}

func TestLoad_MissingDataDir(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: info
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "data_dir")
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/chatsync
network:
  request_timeout: banana
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "request_timeout")
}

func TestLoad_BackoffOrdering(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/chatsync
network:
  backoff_min: 30s
  backoff_max: 1s
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "backoff_min")
}

func TestPushSettings_OverridesOnlySetKnobs(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/chatsync
network:
  ping_interval: 5s
  backoff_min: 2s
  backoff_max: 20s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	s := cfg.Network.PushSettings()
	require.NotNil(t, s)
	assert.Equal(t, 5*time.Second, s.PingInterval)
	assert.Equal(t, 2*time.Second, s.BackoffMin)
	assert.Equal(t, 20*time.Second, s.BackoffMax)
	// Knobs the config never mentions keep the channel defaults.
	assert.Equal(t, ws.DefaultSettings().ReadTimeout, s.ReadTimeout)
}

func TestPushSettings_AllUnsetMeansNil(t *testing.T) {
	path := writeConfig(t, `
storage:
  data_dir: /var/lib/chatsync
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Network.PushSettings())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
