package helpers

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-bp/internal/config"
	"github.com/coral-mesh/coral-bp/internal/jvmti"
	"github.com/coral-mesh/coral-bp/internal/logging"
	"github.com/coral-mesh/coral-bp/internal/metrics"
)

// GlobalOptions holds the root command's persistent flags.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
}

// LoadConfig loads the layered configuration and applies flag overrides.
func LoadConfig(opts *GlobalOptions) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	return cfg, nil
}

// NewLogger builds the command logger from the logging section.
func NewLogger(cfg *config.Config, output io.Writer) zerolog.Logger {
	return logging.New(logging.FromConfig(cfg.Logging, output))
}

// NewRuntime creates a runtime with a fresh metrics collector.
func NewRuntime(cfg *config.Config, logger zerolog.Logger) *jvmti.Runtime {
	return jvmti.NewRuntime(cfg.Runtime, logger, metrics.New())
}

// ResolveFormat picks the --format flag value, falling back to the config.
func ResolveFormat(flag string, cfg *config.Config) (OutputFormat, error) {
	format := flag
	if format == "" {
		format = cfg.Output.Format
	}
	if err := ValidateFormat(format, SupportedFormats); err != nil {
		return "", err
	}
	return OutputFormat(format), nil
}
