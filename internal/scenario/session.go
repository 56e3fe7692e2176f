package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coral-mesh/coral-bp/internal/jvmti"
	"github.com/coral-mesh/coral-bp/internal/jvmti/breakpoint"
	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int      `json:"index"`
	Op       Op       `json:"op"`
	Env      int      `json:"env"`
	Target   string   `json:"target"`
	Result   string   `json:"result"`
	Expect   string   `json:"expect,omitempty"`
	Size     int      `json:"size"`
	Entries  []string `json:"entries,omitempty"`
	Error    string   `json:"error,omitempty"`
	Mismatch bool     `json:"mismatch"`
}

// Session is a set of environments on one runtime plus the method ids
// captured by lookup steps. Scripts and the interactive shell both drive a
// Session.
type Session struct {
	rt       *jvmti.Runtime
	envs     []*jvmti.Env
	bindings map[string]classdir.MethodID
	steps    int
}

// NewSession creates n environments on rt.
func NewSession(rt *jvmti.Runtime, n int) (*Session, error) {
	s := &Session{rt: rt, bindings: make(map[string]classdir.MethodID)}

	err := rt.Exclusive(func(tok *mutator.Token) error {
		for i := 0; i < n; i++ {
			env, err := rt.NewEnv(tok)
			if err != nil {
				return fmt.Errorf("create environment %d: %w", i, err)
			}
			s.envs = append(s.envs, env)
		}
		return nil
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Envs returns the session's environments, indexed as steps address them.
func (s *Session) Envs() []*jvmti.Env { return s.envs }

// Bound reports which names have been captured by lookup steps.
func (s *Session) Bound() map[string]bool {
	bound := make(map[string]bool, len(s.bindings))
	for name := range s.bindings {
		bound[name] = true
	}
	return bound
}

// Exec validates and runs one step in its own critical section.
func (s *Session) Exec(step Step) (StepResult, error) {
	if err := step.Validate(len(s.envs), s.Bound()); err != nil {
		return StepResult{}, err
	}

	var res StepResult
	_ = s.rt.Exclusive(func(tok *mutator.Token) error {
		res = s.exec(tok, step)
		return nil
	})
	return res, nil
}

// Close disposes every live environment of the session.
func (s *Session) Close() error {
	return s.rt.Exclusive(func(tok *mutator.Token) error {
		var errs []error
		for _, env := range s.envs {
			if env.Disposed() {
				continue
			}
			if err := env.Dispose(tok); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

func (s *Session) exec(tok *mutator.Token, step Step) StepResult {
	s.steps++
	res := StepResult{Index: s.steps, Op: step.Op, Env: step.Env, Expect: step.Expect}
	env := s.envs[step.Env]
	dir := s.rt.Directory()
	loc := breakpoint.Location(step.Location)

	var err error
	switch step.Op {
	case OpSet, OpClear:
		res.Target = fmt.Sprintf("%s@%d", step.Method, step.Location)
		var method classdir.MethodID
		if method, err = s.method(tok, step.Method); err == nil {
			if step.Op == OpSet {
				err = env.SetBreakpoint(tok, method, loc)
			} else {
				err = env.ClearBreakpoint(tok, method, loc)
			}
		}
		res.Result = envResult(err)

	case OpContains:
		res.Target = fmt.Sprintf("%s@%d", step.Method, step.Location)
		var method classdir.MethodID
		found := false
		if method, err = s.method(tok, step.Method); err == nil {
			found = env.Contains(tok, method, loc)
		}
		res.Result = strconv.FormatBool(found)

	case OpList:
		entries := env.Breakpoints(tok)
		for _, e := range entries {
			res.Entries = append(res.Entries, describe(tok, dir, e))
		}
		res.Result = strconv.Itoa(len(entries))

	case OpLookup:
		res.Target = step.Method + " as $" + step.As
		var method classdir.MethodID
		if method, err = dir.LookupMethod(tok, step.Method); err == nil {
			s.bindings[step.As] = method
		}
		res.Result = directoryResult(err)

	case OpUnload:
		res.Target = step.Class
		var class classdir.ClassID
		if class, err = dir.LookupClass(tok, step.Class); err == nil {
			err = dir.Unload(tok, class)
		}
		res.Result = directoryResult(err)

	case OpRedefine:
		res.Target = step.Class
		var class classdir.ClassID
		if class, err = dir.LookupClass(tok, step.Class); err == nil {
			err = dir.Redefine(tok, class, step.Methods)
		}
		res.Result = directoryResult(err)

	case OpDispose:
		err = env.Dispose(tok)
		res.Result = envResult(err)
	}

	if err != nil {
		res.Error = err.Error()
	}
	res.Size = env.Len(tok)
	res.Mismatch = step.Expect != "" && step.Expect != res.Result
	return res
}

// method resolves a step's method reference. Unknown names fail the same
// way an unresolvable id does.
func (s *Session) method(tok *mutator.Token, ref string) (classdir.MethodID, error) {
	if name, ok := strings.CutPrefix(ref, "$"); ok {
		return s.bindings[name], nil
	}
	id, err := s.rt.Directory().LookupMethod(tok, ref)
	if err != nil {
		return classdir.MethodID{}, fmt.Errorf("%w: %v", breakpoint.ErrInvalidMethod, err)
	}
	return id, nil
}

func envResult(err error) string {
	if errors.Is(err, jvmti.ErrEnvDisposed) {
		return ResultEnvDisposed
	}
	return breakpoint.CodeOf(err).String()
}

func directoryResult(err error) string {
	switch {
	case err == nil:
		return breakpoint.Success.String()
	case errors.Is(err, classdir.ErrClassNotFound), errors.Is(err, classdir.ErrMethodNotFound):
		return breakpoint.NotFound.String()
	default:
		return breakpoint.Internal.String()
	}
}

func describe(tok *mutator.Token, dir *classdir.Directory, e breakpoint.Entry) string {
	if m, ok := dir.Method(tok, e.Breakpoint.Method()); ok {
		return fmt.Sprintf("%s@%d", m.FullName(), e.Breakpoint.Location())
	}
	return e.Breakpoint.String()
}
