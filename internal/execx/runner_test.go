package execx

import (
	"context"
	"strings"
	"testing"
)

func TestExecRunner_CapturesExitCodeAndTail(t *testing.T) {
	var runner ExecRunner

	res := runner.Run(context.Background(), Spec{
		Argv: []string{"sh", "-c", "echo hello out; echo hello err 1>&2; exit 3"},
	})
	if res.ExitCode != 3 {
		t.Fatalf("expected rc=3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Tail, "hello out") || !strings.Contains(res.Tail, "hello err") {
		t.Errorf("expected combined output in tail, got %q", res.Tail)
	}
}

func TestExecRunner_LaunchFailureIsExitCodeOne(t *testing.T) {
	var runner ExecRunner

	res := runner.Run(context.Background(), Spec{
		Argv: []string{"reposweep-no-such-binary-zz"},
	})
	if res.ExitCode != 1 {
		t.Fatalf("expected rc=1 for launch failure, got %d", res.ExitCode)
	}
	if res.Tail == "" {
		t.Error("expected failure text as captured output")
	}
}

func TestExecRunner_StreamsToSink(t *testing.T) {
	var runner ExecRunner
	var sink strings.Builder

	res := runner.Run(context.Background(), Spec{
		Argv:   []string{"sh", "-c", "echo streamed"},
		Stdout: &sink,
	})
	if res.ExitCode != 0 {
		t.Fatalf("expected rc=0, got %d", res.ExitCode)
	}
	if !strings.Contains(sink.String(), "streamed") {
		t.Errorf("expected sink to receive output, got %q", sink.String())
	}
}

func TestTailBuffer_KeepsLastBytes(t *testing.T) {
	tail := newTailBuffer(8)
	_, _ = tail.Write([]byte("0123456789abcdef"))
	if got := tail.String(); got != "89abcdef" {
		t.Errorf("tail = %q, want %q", got, "89abcdef")
	}
}
