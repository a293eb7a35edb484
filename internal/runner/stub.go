package runner

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Stub is an in-process Runner for local development. It sleeps for Delay,
// reports Lines as diagnostics, and writes Banner followed by the input to
// the output path.
type Stub struct {
	Delay  time.Duration
	Lines  []string
	Banner string
}

// Run implements Runner.
func (s *Stub) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	start := time.Now()

	select {
	case <-time.After(s.Delay):
	case <-ctx.Done():
		return Outcome{ExitCode: -1, Duration: time.Since(start)}, ctx.Err()
	}

	if inv.LogWriter != nil {
		for _, line := range s.Lines {
			inv.LogWriter(line)
		}
	}

	in, err := os.ReadFile(inv.InputPath)
	if err != nil {
		return Outcome{ExitCode: 1, Stderr: err.Error(), Duration: time.Since(start)}, fmt.Errorf("read input: %w", err)
	}

	out := append([]byte(s.Banner), in...)
	if err := os.WriteFile(inv.OutputPath, out, 0o644); err != nil {
		return Outcome{ExitCode: 1, Stderr: err.Error(), Duration: time.Since(start)}, fmt.Errorf("write output: %w", err)
	}

	return Outcome{ExitCode: 0, Duration: time.Since(start)}, nil
}
