package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"
)

// LayeredLoader loads configuration in layers:
// 1. Defaults - hardcoded default values
// 2. File - configuration file (YAML)
// 3. Environment - environment variables
//
// Each layer overrides values from previous layers. Command-line flags are
// applied by the caller afterwards.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
	lookup        LookupFunc
}

// NewLayeredLoader creates a loader with all layers enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
		},
		lookup: os.LookupEnv,
	}
}

// EnableLayer enables a specific configuration layer.
func (l *LayeredLoader) EnableLayer(layer Layer) {
	l.enabledLayers[layer] = true
}

// DisableLayer disables a specific configuration layer.
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// WithLookup replaces the environment source, mainly for tests.
func (l *LayeredLoader) WithLookup(lookup LookupFunc) *LayeredLoader {
	l.lookup = lookup
	return l
}

// Load builds a Config from the enabled layers. A missing file is not an
// error; the file layer is skipped.
func (l *LayeredLoader) Load(configPath string) (*Config, error) {
	var cfg *Config

	if l.enabledLayers[LayerDefaults] {
		cfg = DefaultConfig()
	} else {
		cfg = &Config{}
	}

	if l.enabledLayers[LayerFile] && configPath != "" {
		if err := mergeFromFile(cfg, configPath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := LoadFromLookup(cfg, l.lookup); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return cfg, nil
}

// mergeFromFile loads configuration from a YAML file and merges it into cfg.
func mergeFromFile(cfg *Config, filePath string) error {
	// #nosec G304 -- filePath comes from the config loader or an explicit flag.
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}
