// Package config implements the 'coral-bp config' command family.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-bp/internal/cli/helpers"
	"github.com/coral-mesh/coral-bp/internal/config"
	"github.com/coral-mesh/coral-bp/internal/constants"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd(global *helpers.GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage coral-bp configuration",
		Long: `Manage coral-bp configuration.

Configuration Priority:
  1. CORAL_BP_* environment variables (highest)
  2. Config file (--config, or ~/.coral-bp/config.yaml)
  3. Built-in defaults

Environment Variables:
  CORAL_BP_CONFIG    Override config directory (default: ~)`,
	}

	cmd.AddCommand(newViewCmd(global))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPathCmd())

	return cmd
}

func newViewCmd(global *helpers.GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show merged configuration",
		Long: `Display the effective configuration after defaults, the config file
and environment overrides are merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(global)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(config.NewLoader(), force, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.NewLoader().ConfigPath())
			return err
		},
	}
}

func runInit(loader *config.Loader, force bool, out io.Writer) error {
	path := loader.ConfigPath()

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, "Wrote default configuration to %s\nOverride the location with %s.\n",
		path, constants.ConfigDirEnv)
	return err
}

func writeYAML(out io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
