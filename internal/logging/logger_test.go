package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-bp/internal/config"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level   string
		logged  []string
		skipped []string
	}{
		{level: "trace", logged: []string{"trace", "debug", "info"}},
		{level: "debug", logged: []string{"debug", "info"}, skipped: []string{"trace"}},
		{level: "info", logged: []string{"info", "warn"}, skipped: []string{"debug"}},
		{level: "warn", logged: []string{"warn", "error"}, skipped: []string{"info"}},
		{level: "error", logged: []string{"error"}, skipped: []string{"warn"}},
		{level: "bogus", logged: []string{"info"}, skipped: []string{"debug"}},
		{level: "", logged: []string{"info"}, skipped: []string{"debug"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tt.level, Output: &buf})

			logger.Trace().Msg("trace message")
			logger.Debug().Msg("debug message")
			logger.Info().Msg("info message")
			logger.Warn().Msg("warn message")
			logger.Error().Msg("error message")

			output := buf.String()
			for _, l := range tt.logged {
				assert.Contains(t, output, l+" message")
			}
			for _, l := range tt.skipped {
				assert.NotContains(t, output, l+" message")
			}
		})
	}
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, "registry")
	logger.Info().Str("class", "Foo").Msg("cascade")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "registry", entry["component"])
	assert.Equal(t, "Foo", entry["class"])
	assert.Equal(t, "cascade", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Pretty: true, Output: &buf})
	logger.Info().Msg("pretty message")

	assert.Contains(t, buf.String(), "pretty message")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestFromConfig(t *testing.T) {
	var buf bytes.Buffer
	cfg := FromConfig(config.LoggingConfig{Level: "warn", Pretty: false}, &buf)

	assert.Equal(t, "warn", cfg.Level)
	assert.False(t, cfg.Pretty)
	assert.Same(t, &buf, cfg.Output)
}
