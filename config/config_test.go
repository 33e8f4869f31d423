package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadNormalMode(t *testing.T) {
	path := writeConfig(t, `
engine:
  mode: normal
  entry_threshold: 0.55
  max_entry_price: 0.80
  max_spread: 0.05
  time_window_minutes: 45
  profit_target: 0.70
  stop_loss: 0.40
  stop_loss_delay_ms: 3000
  max_positions: 2
storage:
  dsn: ":memory:"
log:
  level: warn
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	params := cfg.Params()
	assert.Equal(t, domain.ModeNormal, params.Mode)
	assert.Equal(t, 45*time.Minute, params.TimeWindow)
	assert.Equal(t, 3*time.Second, params.StopLossDelay)
	assert.Equal(t, 2, params.MaxPositions)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)

	// Defaults aplicados donde el YAML calla
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.MarketRefresh())
	assert.Equal(t, 100.0, cfg.Engine.InitialBalance)
}

func TestLoadLadderMode(t *testing.T) {
	path := writeConfig(t, `
engine:
  mode: ladder
  entry_threshold: 0.50
  max_entry_price: 0.80
  compound_limit: 15
  base_balance: 10
  steps:
    - id: 1
      stop_loss: 0.50
      enabled: true
      buy:
        trigger_price: 0.60
        size: {kind: percent, value: 100}
      sell:
        trigger_price: 0.70
        size: {kind: percent, value: 100}
    - id: 2
      stop_loss: 0.45
      enabled: false
      buy:
        trigger_price: 0.55
        size: {kind: fixed, value: 25}
      sell:
        trigger_price: 0.75
        size: {kind: fixed, value: 25}
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	params := cfg.Params()
	assert.Equal(t, domain.ModeLadder, params.Mode)
	require.Len(t, params.Steps, 2)
	assert.Equal(t, domain.SizePercent, params.Steps[0].Buy.Size.Kind)
	assert.Equal(t, 100.0, params.Steps[0].Buy.Size.Value)
	assert.False(t, params.Steps[1].Enabled)
	assert.Equal(t, 15.0, params.CompoundLimit)
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	// Modo ladder sin steps no pasa la validación
	path := writeConfig(t, `
engine:
  mode: ladder
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SNIPER_DSN", "/tmp/override.db")

	path := writeConfig(t, `
engine:
  mode: normal
log:
  level: info
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/tmp/override.db", cfg.Storage.DSN)
}
