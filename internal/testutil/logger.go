package testutil

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
)

// NewTestLogger returns a debug-level logger that writes to t.Log under
// `go test -v` and discards output otherwise.
func NewTestLogger(t *testing.T) zerolog.Logger {
	t.Helper()

	var out io.Writer = io.Discard
	if testing.Verbose() {
		out = &testLogWriter{t: t}
	}
	return zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}

// testLogWriter wraps testing.T to implement io.Writer.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
