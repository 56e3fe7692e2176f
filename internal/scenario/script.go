package scenario

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-bp/internal/jvmti/breakpoint"
	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/safe"
)

// ErrInvalidScript is wrapped by every script validation error.
var ErrInvalidScript = errors.New("invalid script")

// Op is a script step operation.
type Op string

const (
	OpSet      Op = "set"
	OpClear    Op = "clear"
	OpContains Op = "contains"
	OpList     Op = "list"
	OpLookup   Op = "lookup"
	OpUnload   Op = "unload"
	OpRedefine Op = "redefine"
	OpDispose  Op = "dispose"
)

// Ops lists every known operation in help order.
var Ops = []Op{OpSet, OpClear, OpContains, OpList, OpLookup, OpUnload, OpRedefine, OpDispose}

// ResultEnvDisposed is the result of a step on a disposed environment.
const ResultEnvDisposed = "ENV_DISPOSED"

// Step is one agent action.
//
// Method is either "Class.method", resolved when the step runs, or "$name",
// a method id captured earlier by a lookup step. A captured id keeps pointing
// at the method version it was looked up from, which is how scripts exercise
// stale ids after a redefinition.
type Step struct {
	Op       Op                    `yaml:"op"`
	Env      int                   `yaml:"env,omitempty"`
	Method   string                `yaml:"method,omitempty"`
	Location int64                 `yaml:"location,omitempty"`
	Class    string                `yaml:"class,omitempty"`
	Methods  []classdir.MethodSpec `yaml:"methods,omitempty"`
	As       string                `yaml:"as,omitempty"`
	Expect   string                `yaml:"expect,omitempty"`
}

// Script is a program plus the steps to run against it.
type Script struct {
	Name         string  `yaml:"name"`
	Program      Program `yaml:"program"`
	ProgramFile  string  `yaml:"program_file,omitempty"`
	Environments int     `yaml:"environments,omitempty"`
	Steps        []Step  `yaml:"steps"`
}

// LoadScript reads and validates a script file. A program_file is resolved
// relative to the script and merged after the inline program.
func LoadScript(path string) (*Script, error) {
	data, err := safe.ReadFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	script, err := ParseScript(data)
	if err != nil {
		return nil, err
	}

	if script.ProgramFile != "" {
		programPath := script.ProgramFile
		if !filepath.IsAbs(programPath) {
			programPath = filepath.Join(filepath.Dir(path), programPath)
		}
		program, err := LoadProgram(programPath)
		if err != nil {
			return nil, err
		}
		script.Program.Merge(program)
	}

	if script.Name == "" {
		script.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := script.Validate(); err != nil {
		return nil, err
	}
	return script, nil
}

// ParseScript parses a YAML script without validating it.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if s.Environments == 0 {
		s.Environments = 1
	}
	return &s, nil
}

// Validate checks every step against the script's environment count and the
// bindings made by earlier lookup steps.
func (s *Script) Validate() error {
	if s.Environments < 1 {
		return fmt.Errorf("%w: environments must be at least 1", ErrInvalidScript)
	}

	bound := make(map[string]bool)
	for i, step := range s.Steps {
		if err := step.Validate(s.Environments, bound); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if step.Op == OpLookup {
			bound[step.As] = true
		}
	}
	return nil
}

// Validate checks a single step. bound holds the names of captured method ids.
func (st Step) Validate(envs int, bound map[string]bool) error {
	if st.Env < 0 || st.Env >= envs {
		return fmt.Errorf("%w: env %d out of range [0,%d)", ErrInvalidScript, st.Env, envs)
	}

	switch st.Op {
	case OpSet, OpClear, OpContains:
		if err := validateMethodRef(st.Method, bound); err != nil {
			return err
		}
	case OpLookup:
		if st.Method == "" || strings.HasPrefix(st.Method, "$") {
			return fmt.Errorf("%w: lookup needs a Class.method name", ErrInvalidScript)
		}
		if st.As == "" {
			return fmt.Errorf("%w: lookup needs 'as'", ErrInvalidScript)
		}
	case OpUnload, OpRedefine:
		if st.Class == "" {
			return fmt.Errorf("%w: %s needs a class", ErrInvalidScript, st.Op)
		}
	case OpList, OpDispose:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidScript, st.Op)
	}

	return st.validateExpect()
}

func validateMethodRef(ref string, bound map[string]bool) error {
	if ref == "" {
		return fmt.Errorf("%w: method is required", ErrInvalidScript)
	}
	if name, ok := strings.CutPrefix(ref, "$"); ok && !bound[name] {
		return fmt.Errorf("%w: %s is not bound by an earlier lookup", ErrInvalidScript, ref)
	}
	return nil
}

func (st Step) validateExpect() error {
	if st.Expect == "" {
		return nil
	}

	switch st.Op {
	case OpContains:
		if st.Expect != "true" && st.Expect != "false" {
			return fmt.Errorf("%w: contains expects true or false", ErrInvalidScript)
		}
	case OpList:
		if n, err := strconv.Atoi(st.Expect); err != nil || n < 0 {
			return fmt.Errorf("%w: list expects a breakpoint count", ErrInvalidScript)
		}
	default:
		if st.Expect == ResultEnvDisposed {
			return nil
		}
		if _, err := breakpoint.ParseCode(st.Expect); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScript, err)
		}
	}
	return nil
}
