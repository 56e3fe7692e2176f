// Package run implements the coral-bp run command for executing breakpoint scripts.
package run

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-bp/internal/cli/helpers"
	"github.com/coral-mesh/coral-bp/internal/scenario"
)

// NewRunCmd creates the 'run' command.
func NewRunCmd(global *helpers.GlobalOptions) *cobra.Command {
	var (
		timeout     int
		format      string
		showMetrics bool
		strict      bool
	)

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Run a breakpoint script against a fresh runtime",
		Long: `Run a YAML breakpoint script against a fresh in-memory runtime.

The script's program is loaded into the method directory, the requested
number of debugging environments is created, and every step runs in its own
critical section under the runtime exclusivity lock.

Steps:
  set / clear     - set or clear a breakpoint (method, location)
  contains        - test for a breakpoint (method, location)
  list            - list the environment's breakpoints
  lookup          - capture a method id as $name (method, as)
  unload          - unload a class (class)
  redefine        - redefine a class (class, methods)
  dispose         - dispose the environment

Examples:
  coral-bp run testdata/basic.yaml
  coral-bp run redefine.yaml --format json
  coral-bp run regression.yaml --strict --metrics
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(global)
			if err != nil {
				return err
			}
			outFormat, err := helpers.ResolveFormat(format, cfg)
			if err != nil {
				return err
			}

			logger := helpers.NewLogger(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx = logger.WithContext(ctx)

			// Apply timeout if specified
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
				defer cancel()
			}

			script, err := scenario.LoadScript(args[0])
			if err != nil {
				return err
			}

			rt := helpers.NewRuntime(cfg, logger)
			report, err := scenario.Run(ctx, rt, script)
			if err != nil {
				return fmt.Errorf("script %s: %w", script.Name, err)
			}

			out := cmd.OutOrStdout()
			if err := WriteReport(out, outFormat, report); err != nil {
				return err
			}

			if showMetrics {
				samples, err := rt.Metrics().Snapshot()
				if err != nil {
					return err
				}
				if err := helpers.WriteMetrics(out, outFormat, samples); err != nil {
					return err
				}
			}

			if strict && !report.OK() {
				return fmt.Errorf("%d step(s) did not match their expected result", report.Mismatches)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&timeout, "timeout", 60, "Script timeout in seconds (0 disables)")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Print breakpoint metrics after the report")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with an error when any step misses its expectation")
	helpers.AddFormatFlag(cmd, &format, "", helpers.SupportedFormats)

	return cmd
}

type stepRow struct {
	Step    int    `header:"STEP"`
	Env     int    `header:"ENV"`
	Op      string `header:"OP"`
	Target  string `header:"TARGET"`
	Result  string `header:"RESULT"`
	Expect  string `header:"EXPECT"`
	Size    int    `header:"SIZE"`
	Status  string `header:"STATUS"`
	Entries string `header:"ENTRIES"`
}

// WriteReport renders a script report. JSON output is the report itself;
// text and CSV output are one row per step.
func WriteReport(w io.Writer, format helpers.OutputFormat, report *scenario.Report) error {
	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}

	if format == helpers.FormatJSON {
		return formatter.Format(report, w)
	}

	rows := make([]stepRow, 0, len(report.Steps))
	for _, s := range report.Steps {
		rows = append(rows, stepRow{
			Step:    s.Index,
			Env:     s.Env,
			Op:      string(s.Op),
			Target:  s.Target,
			Result:  s.Result,
			Expect:  s.Expect,
			Size:    s.Size,
			Status:  status(s),
			Entries: strings.Join(s.Entries, ","),
		})
	}

	if err := formatter.Format(rows, w); err != nil {
		return err
	}

	if format == helpers.FormatText {
		_, err = fmt.Fprintf(w, "\n%s: %d step(s), %d mismatch(es)\n",
			report.Name, len(report.Steps), report.Mismatches)
	}
	return err
}

func status(s scenario.StepResult) string {
	switch {
	case s.Mismatch:
		return "MISMATCH"
	case s.Expect != "":
		return "ok"
	default:
		return "-"
	}
}
