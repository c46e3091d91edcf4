package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "n", Value: 3}, Int("n", 3))
	assert.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))

	assert.Equal(t, Field{Key: "error", Value: "<nil>"}, Err(nil))
	assert.Equal(t, Field{Key: "error", Value: "boom"}, Err(errors.New("boom")))
}

func TestZapLogger_Levels(t *testing.T) {
	log, logs := newObservedLogger(zapcore.DebugLevel)

	log.Debug("d")
	log.Info("i", String("epoch", "3"))
	log.Warn("w")
	log.Error("e")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "epoch", entries[1].Context[0].Key)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	log, logs := newObservedLogger(zapcore.WarnLevel)
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("visible")
	assert.Equal(t, 1, logs.Len())
}

func TestZapLogger_With(t *testing.T) {
	log, logs := newObservedLogger(zapcore.InfoLevel)
	child := log.With(String("run_id", "abc"))
	child.Info("training started")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Context, 1)
	assert.Equal(t, "run_id", entries[0].Context[0].Key)
}

func TestZapLogger_Named(t *testing.T) {
	log, logs := newObservedLogger(zapcore.InfoLevel)
	log.Named("trainer").Info("hello")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "trainer", logs.All()[0].LoggerName)
}

func TestNewLogger_Defaults(t *testing.T) {
	log, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNewLogger_InvalidPath(t *testing.T) {
	_, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir-xyz/out.log"}})
	assert.Error(t, err)
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	// Must not panic and With/Named return usable loggers.
	log.Debug("x")
	log.With(String("a", "b")).Named("n").Info("y")
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	log, logs := newObservedLogger(zapcore.InfoLevel)
	SetDefault(log)
	Default().Info("via default")
	assert.Equal(t, 1, logs.Len())

	// nil is ignored.
	SetDefault(nil)
	assert.Equal(t, log, Default())
}
