package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerValidatesConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLoggerDefaults(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
	assert.NoError(t, logger.Sync())
}

func TestContextFieldsAttached(t *testing.T) {
	tl := NewTestLogger()

	ctx := ContextWithRunID(context.Background(), "run-123")
	ctx = ContextWithNode(ctx, "Extractor")
	tl.Info(ctx, "processing", zap.Int("count", 3))

	entries := tl.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "run-123", fields["run.id"])
	assert.Equal(t, "Extractor", fields["run.node"])
	assert.Equal(t, int64(3), fields["count"])
}

func TestTraceLevelFiltered(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)

	// InfoLevel config: Trace must be a no-op, not a panic.
	logger.Trace(context.Background(), "wire detail")
	assert.False(t, logger.Enabled(TraceLevel))
}

func TestLevelFromString(t *testing.T) {
	l, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, l)

	l, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, l)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestNamedAndWith(t *testing.T) {
	tl := NewTestLogger()
	child := tl.Named("engine").With(zap.String("run.id", "r1"))
	child.Info(context.Background(), "transition")

	entries := tl.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "engine", entries[0].LoggerName)
	assert.Equal(t, "r1", entries[0].ContextMap()["run.id"])
}

func TestOTELOnlyOutputRequiresBridge(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.OTEL = true

	// Valid config, but no provider to bridge into.
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no log output")
}
