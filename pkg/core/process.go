package core

import (
	"context"

	"github.com/modoterra/logcatotel/pkg/logcat"
)

// Process is a running log producer whose stdout is consumed line by line.
// Exactly one goroutine owns a Process.
type Process interface {
	// ReadLine blocks for the next line, keeping its trailing newline. It
	// returns ("", io.EOF) when the stream yields no bytes; the final line
	// may come back together with io.EOF when it has no newline.
	ReadLine() (string, error)

	// TryWait reports whether the process has exited, without blocking.
	TryWait() (exited bool, err error)

	// Kill forcibly terminates the process.
	Kill() error

	// Pid returns the OS process ID, or 0 if there is none.
	Pid() int
}

// Emitter receives parsed records. Failures are the emitter's concern;
// callers never retry.
type Emitter interface {
	Emit(ctx context.Context, line logcat.LogLine)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(ctx context.Context, line logcat.LogLine)

func (f EmitterFunc) Emit(ctx context.Context, line logcat.LogLine) { f(ctx, line) }
