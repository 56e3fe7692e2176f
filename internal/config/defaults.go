package config

import (
	"github.com/coral-mesh/coral-bp/internal/constants"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: SchemaVersion,
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Runtime: RuntimeConfig{
			AssertExclusive: true,
			MaxEnvironments: constants.DefaultMaxEnvironments,
		},
		Shell: ShellConfig{
			Prompt:      constants.DefaultShellPrompt,
			HistoryFile: constants.DefaultHistoryFile,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}
