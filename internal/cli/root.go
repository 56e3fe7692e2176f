package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-bp/internal/cli/config"
	"github.com/coral-mesh/coral-bp/internal/cli/helpers"
	"github.com/coral-mesh/coral-bp/internal/cli/run"
	"github.com/coral-mesh/coral-bp/internal/cli/shell"
	bperrors "github.com/coral-mesh/coral-bp/internal/errors"
	"github.com/coral-mesh/coral-bp/pkg/version"
)

// NewRootCmd builds the coral-bp command tree.
func NewRootCmd() *cobra.Command {
	global := &helpers.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "coral-bp",
		Short: "coral-bp - breakpoint registry for a bytecode runtime debug interface",
		Long: `Drive the breakpoint registry of an in-memory bytecode runtime.

Debugging environments set, clear and query breakpoints on (method, location)
pairs. Breakpoints are validated against the method directory, aliases are
canonicalized, and unloading or redefining a class removes its breakpoints
from every environment.

Commands:
- run:    execute a YAML breakpoint script and report each step
- shell:  explore a program interactively
- config: inspect and initialize configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "Config file (default ~/.coral-bp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&global.LogLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	bperrors.Must(rootCmd.MarkPersistentFlagFilename("config", "yaml", "yml"), "register --config completion")

	rootCmd.AddCommand(run.NewRunCmd(global))
	rootCmd.AddCommand(shell.NewShellCmd(global))
	rootCmd.AddCommand(config.NewConfigCmd(global))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("coral-bp version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
