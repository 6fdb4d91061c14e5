package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "containerd", cfg.Runtime)
	assert.Equal(t, 5*time.Second, cfg.ReconcileInterval())
	assert.Equal(t, 3, cfg.MissedHeartbeatThreshold)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corral.yaml")
	content := `
listen_addr: ":9090"
runtime: sim
reconcile_interval_seconds: 1
heartbeat_interval_seconds: 2
missed_heartbeat_threshold: 5
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "sim", cfg.Runtime)
	assert.Equal(t, time.Second, cfg.ReconcileInterval())
	assert.Equal(t, 2*time.Second, cfg.HeartbeatInterval())
	assert.Equal(t, 5, cfg.MissedHeartbeatThreshold)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)

	// Unset fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.RuntimeTimeout())
}

func TestLoadRejectsUnknownRuntime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corral.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime: lxc\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown runtime")
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corral.yaml")
	require.NoError(t, os.WriteFile(path, []byte("reconcile_interval_seconds: -1\n"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "reconcile_interval_seconds")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
