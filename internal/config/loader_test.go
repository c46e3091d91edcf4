package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
  mode: debug
log:
  level: debug
  format: console
model:
  conv_channels: [32, 32]
  dense_size: 64
training:
  epochs: 3
  batch_size: 16
dataset:
  path: testdata/tox21.csv
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "graphchem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, []int{32, 32}, cfg.Model.ConvChannels)
	assert.Equal(t, 3, cfg.Training.Epochs)
	// Defaults still fill unset fields.
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultOptimizer, cfg.Training.Optimizer)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/graphchem.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "server:\n  mode: bogus\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GRAPHCHEM_SERVER_PORT", "7070")
	t.Setenv("GRAPHCHEM_LOG_LEVEL", "warn")
	t.Setenv("GRAPHCHEM_SERVER_READ_TIMEOUT", "5s")
	t.Setenv("GRAPHCHEM_TRAINING_LEARNING_RATE", "0.01")
	t.Setenv("GRAPHCHEM_DATABASE_HOST", "db.internal")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 0.01, cfg.Training.LearningRate)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	// Untouched fields still fall back to platform defaults.
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	t.Setenv("GRAPHCHEM_SERVER_PORT", "7071")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7071, cfg.Server.Port)
	// Keys the environment does not override keep their file values.
	assert.Equal(t, "debug", cfg.Server.Mode)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad("/nonexistent/graphchem.yaml")
	})
}
