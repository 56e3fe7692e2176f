// Package breakpoint implements the per-environment breakpoint registry.
//
// A Breakpoint is the pair (canonical method, bytecode location). The
// Registry keeps a set of them for one debugging environment and validates
// every request against the method directory. All Registry operations,
// including read-only lookups, require the runtime exclusivity lock; the
// Registry performs no locking of its own and has no side effects beyond its
// own set.
package breakpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/coral-mesh/coral-bp/internal/runtime/classdir"
)

// Location is an offset into a method's bytecode, in code units.
type Location int64

// Breakpoint identifies a breakpoint by method and location.
// It is an immutable value; two breakpoints are equal iff both components are.
type Breakpoint struct {
	method   classdir.MethodID
	location Location
}

// New builds a breakpoint identity. No validation happens here.
func New(method classdir.MethodID, location Location) Breakpoint {
	return Breakpoint{method: method, location: location}
}

// Method returns the canonical method token.
func (b Breakpoint) Method() classdir.MethodID { return b.method }

// Location returns the bytecode location.
func (b Breakpoint) Location() Location { return b.location }

// Equal reports whether b and other denote the same breakpoint.
func (b Breakpoint) Equal(other Breakpoint) bool {
	return b == other
}

// Hash returns a deterministic hash of the breakpoint. The method hash seeds
// the location hash, so the combination is order-sensitive.
//
// Registry keys its set on the Breakpoint value itself and never calls Hash.
// It is provided for consumers that index breakpoints outside a Go map, such
// as native event tables or persisted snapshots, and is stable across
// processes.
func (b Breakpoint) Hash() uint64 {
	var mbuf [8]byte
	binary.LittleEndian.PutUint32(mbuf[0:4], b.method.Index)
	binary.LittleEndian.PutUint32(mbuf[4:8], b.method.Gen)

	var lbuf [8]byte
	binary.LittleEndian.PutUint64(lbuf[:], uint64(b.location))

	return xxh3.HashSeed(lbuf[:], xxh3.Hash(mbuf[:]))
}

func (b Breakpoint) String() string {
	return fmt.Sprintf("%s@%d", b.method, b.location)
}
