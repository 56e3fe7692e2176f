package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-bp/internal/constants"
)

// Loader resolves the config location and loads or saves the config file.
type Loader struct {
	baseDir string
	layered *LayeredLoader
}

// NewLoader creates a config loader.
// The base directory is resolved in this order:
//  1. CORAL_BP_CONFIG environment variable.
//  2. User home directory (~/).
//  3. A fallback under the temp dir, for environments without a home dir.
func NewLoader() *Loader {
	if baseDir := os.Getenv(constants.ConfigDirEnv); baseDir != "" {
		return &Loader{baseDir: baseDir, layered: NewLayeredLoader()}
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		return &Loader{baseDir: homeDir, layered: NewLayeredLoader()}
	}

	return &Loader{
		baseDir: filepath.Join(os.TempDir(), "coral-bp-fallback"),
		layered: NewLayeredLoader(),
	}
}

// NewLoaderAt creates a loader rooted at baseDir.
func NewLoaderAt(baseDir string, layered *LayeredLoader) *Loader {
	if layered == nil {
		layered = NewLayeredLoader()
	}
	return &Loader{baseDir: baseDir, layered: layered}
}

// ConfigPath returns the path of the config file.
func (l *Loader) ConfigPath() string {
	return filepath.Join(l.baseDir, constants.DefaultDir, constants.ConfigFile)
}

// Load loads the config from ConfigPath, or from path if it is non-empty,
// and validates it. Defaults are used when the file does not exist.
func (l *Loader) Load(path string) (*Config, error) {
	if path == "" {
		path = l.ConfigPath()
	}

	cfg, err := l.layered.Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to ConfigPath.
func (l *Loader) Save(cfg *Config) error {
	path := l.ConfigPath()

	//nolint:gosec // G301: Directory needs standard permissions for traversal
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	//nolint:gosec // G306: Config file is not sensitive
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
