package runner

import (
	"context"
	"time"
)

// Runner invokes the transformation engine once.
type Runner interface {
	// Run executes the engine for one invocation and blocks until it exits.
	// A non-nil error means the process failed to start or exited non-zero;
	// the Outcome is still populated as far as it is known. Callers decide
	// success by the presence of the output file, not by the error.
	Run(ctx context.Context, inv Invocation) (Outcome, error)
}

// Invocation describes one engine run.
type Invocation struct {
	JobID      string
	InputPath  string
	OutputPath string
	Flags      []string

	// LogWriter is an optional callback invoked once per line the engine
	// writes to its error stream.
	LogWriter func(line string)
}

// Outcome is the exit telemetry of an engine run.
type Outcome struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}
