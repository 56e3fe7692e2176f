package testutil

import (
	"testing"

	"github.com/coral-mesh/coral-bp/internal/runtime/mutator"
)

// HoldLock acquires lock for the rest of the test and releases it on cleanup.
func HoldLock(t *testing.T, lock *mutator.Lock) *mutator.Token {
	t.Helper()
	tok := lock.Acquire()
	t.Cleanup(func() {
		if tok.Valid() {
			lock.Release(tok)
		}
	})
	return tok
}
