package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-bp/internal/cli/helpers"
	"github.com/coral-mesh/coral-bp/internal/config"
)

func TestRunInit(t *testing.T) {
	base := t.TempDir()
	loader := config.NewLoaderAt(base, nil)

	var out bytes.Buffer
	require.NoError(t, runInit(loader, false, &out))
	assert.Contains(t, out.String(), filepath.Join(base, ".coral-bp", "config.yaml"))

	err := runInit(loader, false, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, runInit(loader, true, &out))
}

func TestViewCmd(t *testing.T) {
	t.Setenv("CORAL_BP_CONFIG", t.TempDir())
	t.Setenv("CORAL_BP_MAX_ENVIRONMENTS", "4")

	cmd := NewConfigCmd(&helpers.GlobalOptions{LogLevel: "warn"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"view"})
	require.NoError(t, cmd.Execute())

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Runtime.MaxEnvironments)
	assert.Equal(t, config.SchemaVersion, cfg.Version)
}

func TestPathCmd(t *testing.T) {
	base := t.TempDir()
	t.Setenv("CORAL_BP_CONFIG", base)

	cmd := NewConfigCmd(&helpers.GlobalOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"path"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, filepath.Join(base, ".coral-bp", "config.yaml")+"\n", out.String())
}
