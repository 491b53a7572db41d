package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Output: &buf})
	logger.Info("dropped")
	logger.Warn("kept", "stage", "impact")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "impact", entry["stage"])
	assert.Equal(t, "huntgen", entry["service"])
}

func TestNewLoggerPretty(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(Config{Pretty: true, Output: &buf}).Info("hello", "scenario", "demo")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "scenario=demo")
}
