package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// maxLineSize bounds a single diagnostic line read from the engine.
const maxLineSize = 1 << 20

// Process runs the engine as an OS process:
//
//	<Bin> [Script] <input> <output> <flags...>
type Process struct {
	Bin    string
	Script string
	Dir    string
}

// Compile-time interface satisfaction check.
var _ Runner = (*Process)(nil)

// NewProcess creates a process runner. An empty script runs bin directly.
func NewProcess(bin, script, dir string) *Process {
	return &Process{Bin: bin, Script: script, Dir: dir}
}

// Args returns the argument vector passed to Bin for inv.
func (p *Process) Args(inv Invocation) []string {
	args := make([]string, 0, len(inv.Flags)+3)
	if p.Script != "" {
		args = append(args, p.Script)
	}
	args = append(args, inv.InputPath, inv.OutputPath)
	return append(args, inv.Flags...)
}

// Run executes one engine invocation, capturing stderr and the exit code.
func (p *Process) Run(ctx context.Context, inv Invocation) (Outcome, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, p.Bin, p.Args(inv)...)
	cmd.Dir = p.Dir

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Outcome{ExitCode: -1}, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Outcome{ExitCode: -1, Duration: time.Since(start)}, fmt.Errorf("start engine: %w", err)
	}

	var stderr strings.Builder
	streamLines(stderrPipe, &stderr, inv.LogWriter)

	waitErr := cmd.Wait()
	out := Outcome{
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if waitErr != nil {
		out.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		}
		return out, fmt.Errorf("engine exited: %w", waitErr)
	}

	return out, nil
}

// streamLines reads r line by line, appending each line to buf and handing it
// to emit when set.
func streamLines(r io.Reader, buf *strings.Builder, emit func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if emit != nil {
			emit(line)
		}
	}
	// Keep the pipe drained so the engine never blocks on a full buffer.
	_, _ = io.Copy(io.Discard, r)
}
