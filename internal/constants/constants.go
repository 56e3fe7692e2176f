// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".coral-bp"

	// ConfigDirEnv overrides the base directory holding DefaultDir.
	ConfigDirEnv = "CORAL_BP_CONFIG"

	DefaultShellPrompt = "bp> "

	// DefaultHistoryFile is expanded with os.ExpandEnv before use.
	DefaultHistoryFile = "$HOME/" + DefaultDir + "/shell_history"

	// DefaultMaxEnvironments caps live debugging environments per runtime.
	DefaultMaxEnvironments = 16
)
