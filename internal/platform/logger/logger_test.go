package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "json", "info")
	log.Debug("hidden")
	log.Info("placed", "prop_id", "1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "placed", line["msg"])
	assert.Equal(t, "1", line["prop_id"])
	assert.Equal(t, "cityledger", line["service"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "TEXT", "debug").Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
