package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, InfoLevel, ParseLevel("INFO"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("ERROR"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestZapLogger_Output(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(DebugLevel, &buf)
	require.NoError(t, err)

	logger.Info("cache warmed", Int("entries", 50), String("tier", "l1"))
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "cache warmed")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "50")
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(WarnLevel, &buf)
	require.NoError(t, err)

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "kept")
}

func TestZapLogger_ErrorField(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(DebugLevel, &buf)
	require.NoError(t, err)

	logger.Error("tier call failed", errors.New("connection refused"), String("tier", "l2"))
	require.NoError(t, logger.Sync())

	assert.Contains(t, buf.String(), "connection refused")
}

func TestZapLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base, err := NewZapLogger(DebugLevel, &buf)
	require.NoError(t, err)

	child := base.WithFields(String("component", "coordinator"))
	child.Info("ready")
	require.NoError(t, base.Sync())

	assert.Contains(t, buf.String(), "coordinator")
	// Two lines would mean WithFields logged on its own, which it must not.
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}
