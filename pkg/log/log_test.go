package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "debug", FormatJSON)
	logger.Debug("dispatching", "rule_id", "r1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "dispatching", line["msg"])
	assert.Equal(t, "r1", line["rule_id"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer

	logger := New(&buf, "warn", FormatText)
	logger.Info("hidden")

	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
}
