package shell

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/scenario"
)

var errUsage = errors.New("usage")

// usage lists the argument form of each step command.
var usage = map[scenario.Op]string{
	scenario.OpSet:      "set <Class.method|$name> <location> [--env N] [--expect CODE]",
	scenario.OpClear:    "clear <Class.method|$name> <location> [--env N] [--expect CODE]",
	scenario.OpContains: "contains <Class.method|$name> <location> [--env N]",
	scenario.OpList:     "list [--env N]",
	scenario.OpLookup:   "lookup <Class.method> --as <name>",
	scenario.OpUnload:   "unload <Class>",
	scenario.OpRedefine: "redefine <Class> <method:code_units>...",
	scenario.OpDispose:  "dispose [--env N]",
}

// ParseCommand turns a shell line into a script step.
// Negative locations must follow "--", e.g. "set A.m -- -1".
func ParseCommand(line string) (scenario.Step, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return scenario.Step{}, fmt.Errorf("%w: empty command", errUsage)
	}

	op := scenario.Op(fields[0])
	help, known := usage[op]
	if !known {
		return scenario.Step{}, fmt.Errorf("unknown command %q (try .help)", fields[0])
	}

	fs := pflag.NewFlagSet(string(op), pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	env := fs.IntP("env", "e", 0, "environment index")
	as := fs.String("as", "", "binding name for lookup")
	expect := fs.String("expect", "", "expected result")

	if err := fs.Parse(fields[1:]); err != nil {
		return scenario.Step{}, fmt.Errorf("%w: %s: %v", errUsage, help, err)
	}
	args := fs.Args()

	step := scenario.Step{Op: op, Env: *env, As: *as, Expect: *expect}

	bad := func() (scenario.Step, error) {
		return scenario.Step{}, fmt.Errorf("%w: %s", errUsage, help)
	}

	switch op {
	case scenario.OpSet, scenario.OpClear, scenario.OpContains:
		if len(args) != 2 {
			return bad()
		}
		loc, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return scenario.Step{}, fmt.Errorf("%w: location %q is not an integer", errUsage, args[1])
		}
		step.Method = args[0]
		step.Location = loc

	case scenario.OpLookup:
		if len(args) != 1 {
			return bad()
		}
		step.Method = args[0]

	case scenario.OpUnload:
		if len(args) != 1 {
			return bad()
		}
		step.Class = args[0]

	case scenario.OpRedefine:
		if len(args) < 1 {
			return bad()
		}
		step.Class = args[0]
		for _, arg := range args[1:] {
			spec, err := parseMethodSpec(arg)
			if err != nil {
				return scenario.Step{}, err
			}
			step.Methods = append(step.Methods, spec)
		}

	case scenario.OpList, scenario.OpDispose:
		if len(args) != 0 {
			return bad()
		}
	}

	return step, nil
}

func parseMethodSpec(arg string) (classdir.MethodSpec, error) {
	name, units, ok := strings.Cut(arg, ":")
	if !ok || name == "" {
		return classdir.MethodSpec{}, fmt.Errorf("%w: method spec %q must be name:code_units", errUsage, arg)
	}
	n, err := strconv.ParseUint(units, 10, 32)
	if err != nil {
		return classdir.MethodSpec{}, fmt.Errorf("%w: code units %q: %v", errUsage, units, err)
	}
	return classdir.MethodSpec{Name: name, CodeUnits: uint32(n)}, nil
}
