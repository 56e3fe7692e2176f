// Package shell implements the interactive breakpoint shell.
//
//nolint:errcheck
package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-bp/internal/cli/helpers"
	"github.com/coral-mesh/coral-bp/internal/config"
	"github.com/coral-mesh/coral-bp/internal/constants"
	bperrors "github.com/coral-mesh/coral-bp/internal/errors"
	"github.com/coral-mesh/coral-bp/internal/jvmti"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
	"github.com/coral-mesh/coral-bp/internal/scenario"
	"github.com/coral-mesh/coral-bp/pkg/version"
)

var errExit = errors.New("exit")

// NewShellCmd creates the shell command.
func NewShellCmd(global *helpers.GlobalOptions) *cobra.Command {
	var (
		programPath string
		envs        int
	)

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive breakpoint shell",
		Long: `Opens an interactive shell on a fresh in-memory runtime.

The program's classes are loaded into the method directory and the requested
number of debugging environments is created. Each command runs as one step
under the runtime exclusivity lock.

Commands:
  set <Class.method|$name> <location> [--env N]
  clear <Class.method|$name> <location> [--env N]
  contains <Class.method|$name> <location> [--env N]
  list [--env N]
  lookup <Class.method> --as <name>
  unload <Class>
  redefine <Class> <method:code_units>...
  dispose [--env N]

Meta-commands:
  .classes    - List loaded classes and methods
  .envs       - List environments
  .metrics    - Show breakpoint metrics
  .help       - Show help message
  .exit       - Exit shell (or Ctrl+D)
  .quit       - Exit shell

Examples:
  coral-bp shell --program app.yaml
  coral-bp shell --program app.yaml --envs 2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(global)
			if err != nil {
				return err
			}
			logger := helpers.NewLogger(cfg, cmd.ErrOrStderr())

			sh, err := New(cfg, logger, programPath, envs)
			if err != nil {
				return err
			}
			defer bperrors.DeferClose(logger, sh, "failed to close shell")

			return sh.Run(cfg.Shell)
		},
	}

	cmd.Flags().StringVarP(&programPath, "program", "p", "", "Program YAML to load (classes and aliases)")
	cmd.Flags().IntVar(&envs, "envs", 1, "Number of debugging environments")

	return cmd
}

// Shell is an interactive session on one runtime.
type Shell struct {
	rt      *jvmti.Runtime
	session *scenario.Session
	logger  zerolog.Logger
	out     io.Writer
}

// New creates a runtime, loads the program (if any) and opens envs
// environments.
func New(cfg *config.Config, logger zerolog.Logger, programPath string, envs int) (*Shell, error) {
	rt := helpers.NewRuntime(cfg, logger)

	if programPath != "" {
		program, err := scenario.LoadProgram(programPath)
		if err != nil {
			return nil, err
		}
		if err := rt.Exclusive(func(tok *mutator.Token) error {
			return program.Load(tok, rt.Directory())
		}); err != nil {
			return nil, fmt.Errorf("failed to load program: %w", err)
		}
	}

	session, err := scenario.NewSession(rt, envs)
	if err != nil {
		return nil, err
	}

	return &Shell{
		rt:      rt,
		session: session,
		logger:  logger.With().Str("component", "shell").Logger(),
		out:     os.Stdout,
	}, nil
}

// SetOutput redirects command output.
func (s *Shell) SetOutput(w io.Writer) { s.out = w }

// Close disposes the shell's environments.
func (s *Shell) Close() error {
	return s.session.Close()
}

// Run reads commands until .exit or EOF.
func (s *Shell) Run(cfg config.ShellConfig) error {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = constants.DefaultShellPrompt
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     os.ExpandEnv(cfg.HistoryFile),
		InterruptPrompt: "^C",
		EOFPrompt:       ".exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer bperrors.DeferClose(s.logger, rl, "failed to close readline")

	s.printf("coral-bp %s breakpoint shell. Type '.exit' to quit, '.help' for help.\n\n", version.String())

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				s.printf("\n")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		if err := s.Execute(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			s.printf("Error: %v\n", err)
		}
	}
}

// Execute runs a single command or meta-command line.
func (s *Shell) Execute(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	if strings.HasPrefix(line, ".") {
		return s.meta(line)
	}

	step, err := ParseCommand(line)
	if err != nil {
		return err
	}

	res, err := s.session.Exec(step)
	if err != nil {
		return err
	}
	s.printResult(res)
	return nil
}

func (s *Shell) meta(line string) error {
	switch strings.Fields(line)[0] {
	case ".exit", ".quit":
		return errExit

	case ".help":
		s.printf("Commands:\n")
		for _, op := range scenario.Ops {
			s.printf("  %s\n", usage[op])
		}
		s.printf("\nMeta-commands:\n")
		s.printf("  .classes    - List loaded classes and methods\n")
		s.printf("  .envs       - List environments\n")
		s.printf("  .metrics    - Show breakpoint metrics\n")
		s.printf("  .help       - Show this help message\n")
		s.printf("  .exit       - Exit shell\n")
		return nil

	case ".classes":
		return s.printClasses()

	case ".envs":
		return s.printEnvs()

	case ".metrics":
		samples, err := s.rt.Metrics().Snapshot()
		if err != nil {
			return err
		}
		return helpers.WriteMetrics(s.out, helpers.FormatText, samples)

	default:
		return fmt.Errorf("unknown meta-command %q (try .help)", line)
	}
}

func (s *Shell) printResult(res scenario.StepResult) {
	switch res.Op {
	case scenario.OpList:
		if len(res.Entries) == 0 {
			s.printf("No breakpoints in env %d.\n", res.Env)
			return
		}
		for _, e := range res.Entries {
			s.printf("  %s\n", e)
		}
	default:
		s.printf("%s", res.Result)
		if res.Error != "" {
			s.printf(" (%s)", res.Error)
		}
		s.printf("  [env %d: %d breakpoint(s)]\n", res.Env, res.Size)
	}

	if res.Mismatch {
		s.printf("expected %s\n", res.Expect)
	}
}

func (s *Shell) printClasses() error {
	return s.rt.Exclusive(func(tok *mutator.Token) error {
		dir := s.rt.Directory()
		w := tabwriter.NewWriter(s.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "CLASS\tMETHOD\tCODE UNITS\tALIAS OF")

		for _, class := range dir.Classes(tok) {
			ids := append(class.Methods(), class.Aliases()...)
			rows := make([]string, 0, len(ids))
			for _, id := range ids {
				m, ok := dir.Method(tok, id)
				if !ok {
					continue
				}
				target := "-"
				units := fmt.Sprintf("%d", m.BytecodeLength())
				if m.IsAlias() {
					if canonical, ok := dir.ResolveCanonical(tok, id); ok {
						target = canonical.FullName()
						units = fmt.Sprintf("%d", canonical.BytecodeLength())
					} else {
						target = "(stale)"
					}
				}
				rows = append(rows, fmt.Sprintf("%s\t%s\t%s\t%s", class.Name(), m.Name(), units, target))
			}
			sort.Strings(rows)
			if len(rows) == 0 {
				rows = append(rows, class.Name()+"\t-\t-\t-")
			}
			for _, row := range rows {
				fmt.Fprintln(w, row)
			}
		}
		return w.Flush()
	})
}

func (s *Shell) printEnvs() error {
	return s.rt.Exclusive(func(tok *mutator.Token) error {
		w := tabwriter.NewWriter(s.out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ENV\tID\tBREAKPOINTS\tSTATE")
		for i, env := range s.session.Envs() {
			state := "live"
			if env.Disposed() {
				state = "disposed"
			}
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, env.ID(), env.Len(tok), state)
		}
		return w.Flush()
	})
}

func (s *Shell) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
