package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 5, cfg.Agents.MaxAgents)
	assert.Equal(t, 5*time.Minute, cfg.Agents.StaleWindow)
	assert.True(t, cfg.Escalation.Enabled)
	assert.Equal(t, "important", cfg.Escalation.NotificationThreshold)
	assert.Equal(t, 3, cfg.Escalation.MaxAutoRecovery)
	assert.Equal(t, time.Minute, cfg.VirtualTime.RealPerVirtualHour)
	assert.Equal(t, 5, cfg.VirtualTime.DaysPerSprint)
	assert.Equal(t, "", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
agents:
  max_agents: 12
  stale_window: 2m
escalation:
  notification_threshold: severe
virtual_time:
  real_per_virtual_hour: 30s
  days_per_sprint: 10
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Agents.MaxAgents)
	assert.Equal(t, 2*time.Minute, cfg.Agents.StaleWindow)
	assert.Equal(t, "severe", cfg.Escalation.NotificationThreshold)
	assert.Equal(t, 30*time.Second, cfg.VirtualTime.RealPerVirtualHour)
	assert.Equal(t, 10, cfg.VirtualTime.DaysPerSprint)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset keys keep defaults.
	assert.Equal(t, 3, cfg.Escalation.MaxAutoRecovery)
}

func TestLoadFromPathRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  max_agents: 0\n"), 0o644))

	_, err := LoadFromPath(path)
	assert.Error(t, err)

	path2 := filepath.Join(dir, "config2.yaml")
	require.NoError(t, os.WriteFile(path2, []byte("escalation:\n  notification_threshold: loud\n"), 0o644))
	_, err = LoadFromPath(path2)
	assert.Error(t, err)
}
