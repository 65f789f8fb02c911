// Package execx provides the narrow "launch external process" capability the
// sync and scan stages are built on: execute argv in a directory, stream
// stdout to an optional sink, and report an exit code plus a short captured
// tail of combined output. Runners never return errors; a launch failure is reported
// as exit code 1 with the failure text as output.
package execx

import (
	"context"
	"io"
	"os/exec"
)

// TailBytes is how much trailing output a Runner retains for diagnostics.
const TailBytes = 500

// Spec describes one external process invocation.
type Spec struct {
	// Argv is the full command line; Argv[0] is the program.
	Argv []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Stdout, when non-nil, receives the process's stdout stream. Stderr is
	// always captured into the result tail only, so artifact files built
	// from stdout stay clean.
	Stdout io.Writer

	// Env entries are appended to the process environment.
	Env []string
}

// Result is the outcome of one invocation.
type Result struct {
	// ExitCode is the process exit status, or 1 if the process could not
	// be launched.
	ExitCode int

	// Tail holds the last TailBytes of combined output, used solely for a
	// trailing diagnostic when an operation ultimately fails.
	Tail string
}

// Runner executes one external process synchronously.
type Runner interface {
	Run(ctx context.Context, spec Spec) Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, spec Spec) Result {
	if len(spec.Argv) == 0 {
		return Result{ExitCode: 1, Tail: "empty command"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tail := newTailBuffer(TailBytes)
	var stdout io.Writer = tail
	if spec.Stdout != nil {
		stdout = io.MultiWriter(spec.Stdout, tail)
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Stdout = stdout
	cmd.Stderr = tail
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0, Tail: tail.String()}
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return Result{ExitCode: exitErr.ExitCode(), Tail: tail.String()}
	}
	// Launch failure: report the error text as captured output.
	_, _ = io.WriteString(tail, err.Error())
	return Result{ExitCode: 1, Tail: tail.String()}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
