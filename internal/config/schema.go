// Package config provides configuration loading and management.
package config

// SchemaVersion is the current config file schema version.
const SchemaVersion = "1"

// Config is the coral-bp configuration, stored at ~/.coral-bp/config.yaml.
type Config struct {
	Version string        `yaml:"version"`
	Logging LoggingConfig `yaml:"logging"`
	Runtime RuntimeConfig `yaml:"runtime"`
	Shell   ShellConfig   `yaml:"shell"`
	Output  OutputConfig  `yaml:"output"`
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level  string `yaml:"level" env:"CORAL_BP_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"CORAL_BP_LOG_PRETTY"`
}

// RuntimeConfig controls the simulated runtime hosting the debug environments.
type RuntimeConfig struct {
	// AssertExclusive makes every lock-requiring operation verify that the
	// caller's token still holds the exclusivity lock.
	AssertExclusive bool `yaml:"assert_exclusive" env:"CORAL_BP_ASSERT_EXCLUSIVE"`

	// MaxEnvironments caps concurrently live debugging environments.
	// Zero means unlimited.
	MaxEnvironments int `yaml:"max_environments" env:"CORAL_BP_MAX_ENVIRONMENTS"`
}

// ShellConfig controls the interactive shell.
type ShellConfig struct {
	Prompt      string `yaml:"prompt" env:"CORAL_BP_SHELL_PROMPT"`
	HistoryFile string `yaml:"history_file" env:"CORAL_BP_SHELL_HISTORY"`
}

// OutputConfig controls command output.
type OutputConfig struct {
	// Format is one of text, json, csv.
	Format string `yaml:"format" env:"CORAL_BP_OUTPUT_FORMAT"`
}
