package breakpoint

import (
	"sort"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

// Directory resolves method tokens to canonical methods.
type Directory interface {
	ResolveCanonical(tok *mutator.Token, id classdir.MethodID) (*classdir.Method, bool)
}

// Entry is a registered breakpoint together with the class that owns its method.
type Entry struct {
	Breakpoint Breakpoint
	Class      classdir.ClassID
}

// Registry is the breakpoint set of one debugging environment.
type Registry struct {
	lock *mutator.Lock
	dir  Directory
	// The owning class is captured at insertion so class removal never has
	// to dereference method metadata.
	set map[Breakpoint]classdir.ClassID
}

// NewRegistry creates an empty registry backed by dir. Every operation must
// be called with a token of lock.
func NewRegistry(lock *mutator.Lock, dir Directory) *Registry {
	return &Registry{
		lock: lock,
		dir:  dir,
		set:  make(map[Breakpoint]classdir.ClassID),
	}
}

// SetBreakpoint registers a breakpoint at loc in method.
func (r *Registry) SetBreakpoint(tok *mutator.Token, method classdir.MethodID, loc Location) error {
	tok.AssertHolds(r.lock)

	m, ok := r.resolve(tok, method)
	if !ok {
		return newError(InvalidMethod, method, loc)
	}
	if loc < 0 || uint64(loc) >= uint64(m.BytecodeLength()) {
		return newError(InvalidLocation, m.ID(), loc)
	}

	bp := New(m.ID(), loc)
	if _, exists := r.set[bp]; exists {
		return newError(Duplicate, m.ID(), loc)
	}
	r.set[bp] = m.OwningClass()
	return nil
}

// ClearBreakpoint removes the breakpoint at loc in method. Aliases resolve to
// the same canonical method as in SetBreakpoint.
func (r *Registry) ClearBreakpoint(tok *mutator.Token, method classdir.MethodID, loc Location) error {
	tok.AssertHolds(r.lock)

	m, ok := r.resolve(tok, method)
	if !ok {
		return newError(InvalidMethod, method, loc)
	}

	bp := New(m.ID(), loc)
	if _, exists := r.set[bp]; !exists {
		return newError(NotFound, m.ID(), loc)
	}
	delete(r.set, bp)
	return nil
}

// Contains reports whether a breakpoint is registered at loc in method.
func (r *Registry) Contains(tok *mutator.Token, method classdir.MethodID, loc Location) bool {
	tok.AssertHolds(r.lock)

	m, ok := r.resolve(tok, method)
	if !ok {
		return false
	}
	_, exists := r.set[New(m.ID(), loc)]
	return exists
}

// RemoveBreakpointsInClass drops every breakpoint whose method belongs to
// class and returns how many were removed.
func (r *Registry) RemoveBreakpointsInClass(tok *mutator.Token, class classdir.ClassID) int {
	tok.AssertHolds(r.lock)

	var toRemove []Breakpoint
	for bp, owner := range r.set {
		if owner == class {
			toRemove = append(toRemove, bp)
		}
	}
	for _, bp := range toRemove {
		delete(r.set, bp)
	}
	return len(toRemove)
}

// Len returns the number of registered breakpoints.
func (r *Registry) Len(tok *mutator.Token) int {
	tok.AssertHolds(r.lock)
	return len(r.set)
}

// List returns a snapshot of all breakpoints ordered by method token and
// location.
func (r *Registry) List(tok *mutator.Token) []Entry {
	tok.AssertHolds(r.lock)

	entries := make([]Entry, 0, len(r.set))
	for bp, owner := range r.set {
		entries = append(entries, Entry{Breakpoint: bp, Class: owner})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Breakpoint, entries[j].Breakpoint
		if a.method.Index != b.method.Index {
			return a.method.Index < b.method.Index
		}
		if a.method.Gen != b.method.Gen {
			return a.method.Gen < b.method.Gen
		}
		return a.location < b.location
	})
	return entries
}

// Reset drops every breakpoint.
func (r *Registry) Reset(tok *mutator.Token) {
	tok.AssertHolds(r.lock)
	clear(r.set)
}

func (r *Registry) resolve(tok *mutator.Token, method classdir.MethodID) (*classdir.Method, bool) {
	if method.IsNil() {
		return nil, false
	}
	return r.dir.ResolveCanonical(tok, method)
}
