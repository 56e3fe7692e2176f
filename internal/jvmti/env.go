package jvmti

import (
	"errors"

	"github.com/google/uuid"

	"github.com/coral-mesh/coral-bp/internal/jvmti/breakpoint"
	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

var (
	// ErrEnvDisposed is returned by operations on a disposed environment.
	ErrEnvDisposed = errors.New("environment disposed")
	// ErrTooManyEnvs is returned when the environment limit is reached.
	ErrTooManyEnvs = errors.New("max environments reached")
)

// Operation names used for metrics.
const (
	OpSet   = "set"
	OpClear = "clear"
)

// Env is one debugging environment. It owns a breakpoint registry that lives
// exactly as long as the environment.
type Env struct {
	id       uuid.UUID
	rt       *Runtime
	registry *breakpoint.Registry
	disposed bool
}

// ID returns the environment id.
func (e *Env) ID() uuid.UUID { return e.id }

// SetBreakpoint registers a breakpoint at loc in method.
func (e *Env) SetBreakpoint(tok *mutator.Token, method classdir.MethodID, loc breakpoint.Location) error {
	tok.AssertHolds(e.rt.lock)
	if e.disposed {
		return ErrEnvDisposed
	}

	err := e.registry.SetBreakpoint(tok, method, loc)
	e.rt.metrics.ObserveOp(OpSet, breakpoint.CodeOf(err).String())
	return err
}

// ClearBreakpoint removes the breakpoint at loc in method.
func (e *Env) ClearBreakpoint(tok *mutator.Token, method classdir.MethodID, loc breakpoint.Location) error {
	tok.AssertHolds(e.rt.lock)
	if e.disposed {
		return ErrEnvDisposed
	}

	err := e.registry.ClearBreakpoint(tok, method, loc)
	e.rt.metrics.ObserveOp(OpClear, breakpoint.CodeOf(err).String())
	return err
}

// Contains reports whether a breakpoint is set at loc in method.
// A disposed environment has no breakpoints.
func (e *Env) Contains(tok *mutator.Token, method classdir.MethodID, loc breakpoint.Location) bool {
	tok.AssertHolds(e.rt.lock)
	if e.disposed {
		return false
	}
	return e.registry.Contains(tok, method, loc)
}

// Breakpoints returns a snapshot of the environment's breakpoints.
func (e *Env) Breakpoints(tok *mutator.Token) []breakpoint.Entry {
	tok.AssertHolds(e.rt.lock)
	if e.disposed {
		return nil
	}
	return e.registry.List(tok)
}

// Len returns the number of breakpoints in the environment.
func (e *Env) Len(tok *mutator.Token) int {
	tok.AssertHolds(e.rt.lock)
	return e.registry.Len(tok)
}

// Disposed reports whether Dispose has run.
func (e *Env) Disposed() bool { return e.disposed }

// Dispose tears the environment down and drops all of its breakpoints.
func (e *Env) Dispose(tok *mutator.Token) error {
	tok.AssertHolds(e.rt.lock)
	if e.disposed {
		return ErrEnvDisposed
	}

	dropped := e.registry.Len(tok)
	e.registry.Reset(tok)
	e.disposed = true
	e.rt.dispose(tok, e)

	e.rt.logger.Debug().
		Str("env_id", e.id.String()).
		Int("dropped", dropped).
		Msg("Environment disposed")
	return nil
}
