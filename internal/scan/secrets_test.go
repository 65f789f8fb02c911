package scan

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"reposweep/internal/execx"
)

// tieredRunner fails the first n invocations, then succeeds.
type tieredRunner struct {
	failFirst int
	calls     []execx.Spec
}

func (r *tieredRunner) Run(_ context.Context, spec execx.Spec) execx.Result {
	r.calls = append(r.calls, spec)
	if len(r.calls) <= r.failFirst {
		return execx.Result{ExitCode: 1, Tail: "error updating"}
	}
	return execx.Result{ExitCode: 0}
}

func TestSecretScanner_FirstTierSucceeds(t *testing.T) {
	runner := &tieredRunner{}
	s := &SecretScanner{Runner: runner}

	out := filepath.Join(t.TempDir(), "app.trufflehog.jsonl")
	res := s.Scan(context.Background(), "/ws/app", out)
	if res.ExitCode != 0 {
		t.Fatalf("rc = %d", res.ExitCode)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(runner.calls))
	}
	call := runner.calls[0]
	if got := strings.Join(call.Argv, " "); got != "trufflehog git . --json" {
		t.Errorf("argv = %q", got)
	}
	if call.Dir != "/ws/app" {
		t.Errorf("dir = %q", call.Dir)
	}
	if call.Stdout == nil {
		t.Error("findings must be captured into the artifact file")
	}
}

func TestSecretScanner_FallsThroughTiers(t *testing.T) {
	tests := []struct {
		name      string
		failFirst int
		wantCalls int
		wantLast  string
		wantRC    int
	}{
		{"second tier disables updater", 1, 2, "trufflehog git . --json --no-update", 0},
		{"third tier scans filesystem", 2, 3, "trufflehog filesystem . --json", 0},
		{"all tiers fail", 3, 3, "trufflehog filesystem . --json", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &tieredRunner{failFirst: tt.failFirst}
			s := &SecretScanner{Runner: runner}

			out := filepath.Join(t.TempDir(), "app.trufflehog.jsonl")
			res := s.Scan(context.Background(), "/ws/app", out)
			if res.ExitCode != tt.wantRC {
				t.Fatalf("rc = %d, want %d", res.ExitCode, tt.wantRC)
			}
			if len(runner.calls) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(runner.calls), tt.wantCalls)
			}
			last := strings.Join(runner.calls[len(runner.calls)-1].Argv, " ")
			if last != tt.wantLast {
				t.Errorf("last argv = %q, want %q", last, tt.wantLast)
			}
		})
	}
}

func TestSecretScanner_OnlyVerifiedFlag(t *testing.T) {
	runner := &tieredRunner{failFirst: 3}
	s := &SecretScanner{Runner: runner, OnlyVerified: true}

	out := filepath.Join(t.TempDir(), "app.trufflehog.jsonl")
	_ = s.Scan(context.Background(), "/ws/app", out)
	for _, call := range runner.calls {
		joined := strings.Join(call.Argv, " ")
		if !strings.HasSuffix(joined, "--only-verified") {
			t.Errorf("argv %q missing --only-verified", joined)
		}
	}
}
