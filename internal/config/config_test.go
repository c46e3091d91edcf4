package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return NewDefaultConfig()
}

func TestNewDefaultConfig_IsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, []int{64, 64}, cfg.Model.ConvChannels)
	assert.Equal(t, DefaultMaxDegree, cfg.Model.MaxDegree)
	assert.Equal(t, DefaultBatchSize, cfg.Training.BatchSize)
	assert.InDelta(t, 1.0,
		cfg.Dataset.TrainFraction+cfg.Dataset.ValidFraction+cfg.Dataset.TestFraction, 1e-9)
}

func TestApplyDefaults_RespectsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Model.ConvChannels = []int{32}
	cfg.Training.BatchSize = 7
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, []int{32}, cfg.Model.ConvChannels)
	assert.Equal(t, 7, cfg.Training.BatchSize)
}

func TestValidate_ServerPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_ServerMode(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Mode = "production"
	assert.Error(t, cfg.Validate())
}

func TestValidate_LogSettings(t *testing.T) {
	cfg := validConfig()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Log.Format = "text"
	assert.Error(t, cfg.Validate())
}

func TestValidate_Model(t *testing.T) {
	cfg := validConfig()
	cfg.Model.ConvChannels = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Model.ConvChannels = []int{64, 0}
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Model.DropoutRate = 1.0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Model.MaxDegree = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_Training(t *testing.T) {
	cfg := validConfig()
	cfg.Training.Optimizer = "rmsprop"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Training.LearningRate = -0.1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Training.ClipNorm = -1
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Training.ClipNorm = 5
	assert.NoError(t, cfg.Validate())
}

func TestValidate_SplitFractions(t *testing.T) {
	cfg := validConfig()
	cfg.Dataset.TrainFraction = 0.5
	cfg.Dataset.ValidFraction = 0.1
	cfg.Dataset.TestFraction = 0.1
	assert.Error(t, cfg.Validate())
}
