// Package mutator implements the runtime-wide exclusivity lock.
//
// While the lock is held no other thread mutates managed runtime state
// (classes, methods). Code that requires the lock takes a *Token parameter:
// a token can only be obtained from Lock.Acquire, so holding one is the proof
// that the caller is inside the critical section.
package mutator

import (
	"sync"
	"sync/atomic"
)

// Lock is the runtime-wide exclusivity lock.
type Lock struct {
	mu         sync.Mutex
	holder     atomic.Pointer[Token]
	assertions bool
}

// Option configures a Lock.
type Option func(*Lock)

// WithAssertions enables or disables the released-token check of AssertHolds.
func WithAssertions(enabled bool) Option {
	return func(l *Lock) {
		l.assertions = enabled
	}
}

// New creates an unlocked Lock. Assertions are enabled by default.
func New(opts ...Option) *Lock {
	l := &Lock{assertions: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Token proves that its owner currently holds the Lock.
type Token struct {
	lock *Lock
}

// Acquire blocks until the lock is available and returns a token for it.
// The token must be handed back with Release.
func (l *Lock) Acquire() *Token {
	l.mu.Lock()
	t := &Token{lock: l}
	l.holder.Store(t)
	return t
}

// Release gives up the lock held by t. Releasing a token that does not
// currently hold l panics.
func (l *Lock) Release(t *Token) {
	if t == nil || t.lock != l || !l.holder.CompareAndSwap(t, nil) {
		panic("mutator: release of a token that does not hold the lock")
	}
	l.mu.Unlock()
}

// Do runs fn while holding the lock.
func (l *Lock) Do(fn func(*Token) error) error {
	t := l.Acquire()
	defer l.Release(t)
	return fn(t)
}

// Held reports whether any token currently holds the lock.
func (l *Lock) Held() bool {
	return l.holder.Load() != nil
}

// AssertionsEnabled reports whether AssertHolds checks for released tokens.
func (l *Lock) AssertionsEnabled() bool {
	return l.assertions
}

// Valid reports whether t currently holds its lock.
func (t *Token) Valid() bool {
	return t != nil && t.lock != nil && t.lock.holder.Load() == t
}

// AssertHolds panics unless t is the current holder of l.
// A nil token or a token of another lock always panics. The released-token
// check only runs when l was built with assertions enabled.
func (t *Token) AssertHolds(l *Lock) {
	if t == nil || t.lock == nil {
		panic("mutator: operation requires the exclusivity lock (nil token)")
	}
	if t.lock != l {
		panic("mutator: operation requires the exclusivity lock (token of another lock)")
	}
	if !l.assertions {
		return
	}
	if l.holder.Load() != t {
		panic("mutator: operation requires the exclusivity lock (token released)")
	}
}
