package scenario

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	bperrors "github.com/coral-mesh/coral-bp/internal/errors"
	"github.com/coral-mesh/coral-bp/internal/jvmti"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

// Report collects the results of a script run.
type Report struct {
	Name       string       `json:"name"`
	Steps      []StepResult `json:"steps"`
	Mismatches int          `json:"mismatches"`
}

// OK reports whether every step met its expectation.
func (r *Report) OK() bool { return r.Mismatches == 0 }

// Run loads the script's program into rt and executes its steps in order,
// each in its own critical section. A step whose result differs from its
// expectation is counted in the report, not returned as an error.
// Cancelling ctx stops the run between steps; the partial report is returned
// together with the context error.
func Run(ctx context.Context, rt *jvmti.Runtime, script *Script) (*Report, error) {
	logger := zerolog.Ctx(ctx).With().
		Str("component", "scenario").
		Str("script", script.Name).
		Logger()

	if err := script.Validate(); err != nil {
		return nil, err
	}

	err := rt.Exclusive(func(tok *mutator.Token) error {
		return script.Program.Load(tok, rt.Directory())
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	session, err := NewSession(rt, script.Environments)
	if err != nil {
		return nil, err
	}
	defer bperrors.DeferClose(logger, session, "failed to dispose environments")

	report := &Report{Name: script.Name}
	for i, step := range script.Steps {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("script stopped before step %d: %w", i+1, err)
		}

		res, err := session.Exec(step)
		if err != nil {
			return report, fmt.Errorf("step %d: %w", i+1, err)
		}

		if res.Mismatch {
			report.Mismatches++
			logger.Warn().
				Int("step", res.Index).
				Str("op", string(res.Op)).
				Str("target", res.Target).
				Str("expect", res.Expect).
				Str("result", res.Result).
				Msg("Step result mismatch")
		} else {
			logger.Debug().
				Int("step", res.Index).
				Str("op", string(res.Op)).
				Str("result", res.Result).
				Int("size", res.Size).
				Msg("Step completed")
		}
		report.Steps = append(report.Steps, res)
	}

	logger.Info().
		Int("steps", len(report.Steps)).
		Int("mismatches", report.Mismatches).
		Msg("Script finished")
	return report, nil
}
