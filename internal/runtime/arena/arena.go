// Package arena provides a generation-checked slot table.
//
// Runtime objects that can be redefined or unloaded (classes, methods) are
// never identified by their memory address. Instead each object lives in an
// arena slot and is referred to by a Handle carrying the slot index and the
// generation the slot had when the handle was issued. Retiring the object
// bumps the slot generation, so every handle issued for it becomes stale even
// if the slot is later reused for a different object.
//
// An Arena performs no locking. Callers serialize access themselves.
package arena

import (
	"fmt"
)

// Handle is an opaque reference to an arena slot.
// The zero value is the nil handle and never resolves.
type Handle struct {
	Index uint32
	Gen   uint32
}

// IsNil reports whether h is the nil handle.
func (h Handle) IsNil() bool {
	return h.Gen == 0
}

// String returns a compact representation, e.g. "#12.3".
func (h Handle) String() string {
	if h.IsNil() {
		return "#nil"
	}
	return fmt.Sprintf("#%d.%d", h.Index, h.Gen)
}

type slot[T any] struct {
	gen   uint32
	live  bool
	value T
}

// Arena stores values of type T addressed by generation-checked handles.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	live  int
}

// New creates an empty arena.
func New[T any]() *Arena[T] {
	return &Arena[T]{}
}

// Insert stores v and returns a fresh handle for it.
func (a *Arena[T]) Insert(v T) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, slot[T]{})
	}

	s := &a.slots[idx]
	s.gen++
	if s.gen == 0 {
		// Generation 0 is reserved for the nil handle.
		s.gen = 1
	}
	s.live = true
	s.value = v
	a.live++

	return Handle{Index: idx, Gen: s.gen}
}

// Get returns the value referenced by h.
// It returns false for the nil handle and for stale handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if h.IsNil() || int(h.Index) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[h.Index]
	if !s.live || s.gen != h.Gen {
		return zero, false
	}
	return s.value, true
}

// Contains reports whether h references a live slot.
func (a *Arena[T]) Contains(h Handle) bool {
	_, ok := a.Get(h)
	return ok
}

// Remove retires the slot referenced by h.
// It returns false if h was already stale.
func (a *Arena[T]) Remove(h Handle) bool {
	if !a.Contains(h) {
		return false
	}
	var zero T
	s := &a.slots[h.Index]
	s.live = false
	s.value = zero
	// Bump now so the stale handle can never match again, even before reuse.
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, h.Index)
	a.live--
	return true
}

// Len returns the number of live values.
func (a *Arena[T]) Len() int {
	return a.live
}

// Each calls fn for every live value in slot order.
// fn must not mutate the arena.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.live {
			fn(Handle{Index: uint32(i), Gen: s.gen}, s.value)
		}
	}
}
