package breakpoint

import (
	"errors"
	"fmt"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
)

// Code is the result reported to the debugging agent.
type Code int

const (
	Success Code = iota
	InvalidMethod
	InvalidLocation
	Duplicate
	NotFound
	// Internal covers errors that did not come from the registry.
	Internal
)

func (c Code) String() string {
	switch c {
	case Success:
		return "SUCCESS"
	case InvalidMethod:
		return "INVALID_METHOD"
	case InvalidLocation:
		return "INVALID_LOCATION"
	case Duplicate:
		return "DUPLICATE"
	case NotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL"
	}
}

// ParseCode parses the String form of a Code.
func ParseCode(s string) (Code, error) {
	for c := Success; c <= Internal; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return Internal, fmt.Errorf("unknown result code %q", s)
}

// Error is returned by failed registry operations.
type Error struct {
	Code     Code
	Method   classdir.MethodID
	Location Location
}

// Sentinels for errors.Is. Any *Error with the same Code matches.
var (
	ErrInvalidMethod   = &Error{Code: InvalidMethod}
	ErrInvalidLocation = &Error{Code: InvalidLocation}
	ErrDuplicate       = &Error{Code: Duplicate}
	ErrNotFound        = &Error{Code: NotFound}
)

func (e *Error) Error() string {
	var what string
	switch e.Code {
	case InvalidMethod:
		what = "invalid method"
	case InvalidLocation:
		what = "invalid location"
	case Duplicate:
		what = "duplicate breakpoint"
	case NotFound:
		what = "breakpoint not found"
	default:
		what = "breakpoint error"
	}
	if e.Method.IsNil() && e.Location == 0 {
		return what
	}
	return fmt.Sprintf("%s: %s@%d", what, e.Method, e.Location)
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// CodeOf maps err to the agent-facing result code.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var bpErr *Error
	if errors.As(err, &bpErr) {
		return bpErr.Code
	}
	return Internal
}

func newError(code Code, method classdir.MethodID, loc Location) error {
	return &Error{Code: code, Method: method, Location: loc}
}
