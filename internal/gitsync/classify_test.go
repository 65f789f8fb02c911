package gitsync

import (
	"context"
	"testing"

	"reposweep/internal/execx"
)

func TestClassifyProbe(t *testing.T) {
	// Git's generic hint footer, which co-occurs with almost every failure.
	const hintFooter = "\nPlease make sure you have the correct access rights\nand the repository exists."

	tests := []struct {
		name     string
		exitCode int
		out      string
		want     AccessClass
	}{
		{"success", 0, "abc123\trefs/heads/main", AccessOK},
		{"timeout", 128, "ssh: connect to host ssh.dev.azure.com port 22: Operation timed out" + hintFooter, AccessTimeout},
		{"connection timeout", 128, "ssh: connect to host example port 22: Connection timed out", AccessTimeout},
		{"connection reset", 128, "Connection reset by peer", AccessTimeout},
		{"not found", 128, "remote: TF401019: The Git repository with name or identifier api does not exist", AccessNotFound},
		{"repository not found", 128, "ERROR: Repository not found." + hintFooter, AccessNotFound},
		{"permission publickey", 255, "git@ssh.dev.azure.com: Permission denied (publickey)." + hintFooter, AccessNoPermission},
		{"permission keyboard", 255, "Permission denied (keyboard-interactive).", AccessNoPermission},
		{"auth fail", 128, "fatal: Auth fail", AccessNoPermission},
		// A timeout must win even when the permission-hint footer is present.
		{"timeout with hint footer", 128, "Operation timed out" + hintFooter, AccessTimeout},
		{"unknown", 1, "fatal: the remote end hung up unexpectedly", AccessUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyProbe(tt.exitCode, tt.out); got != tt.want {
				t.Errorf("ClassifyProbe(%d, %q) = %s, want %s", tt.exitCode, tt.out, got, tt.want)
			}
		})
	}
}

func TestAccessClass_Disposition(t *testing.T) {
	if !AccessTimeout.Transient() || !AccessUnknown.Transient() {
		t.Error("timeout and unknown must be transient")
	}
	if AccessNotFound.Transient() || AccessNoPermission.Transient() {
		t.Error("not-found and no-permission must not be transient")
	}
	if !AccessNotFound.Permanent() || !AccessNoPermission.Permanent() {
		t.Error("not-found and no-permission must be permanent")
	}
	if AccessOK.Permanent() || AccessOK.Transient() {
		t.Error("ok is neither permanent nor transient")
	}
}

type probeRunner struct {
	argv []string
	res  execx.Result
}

func (p *probeRunner) Run(_ context.Context, spec execx.Spec) execx.Result {
	p.argv = spec.Argv
	return p.res
}

func TestClassifier_ProbeCountsAgainstNetGate(t *testing.T) {
	gates, err := NewGates(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	runner := &probeRunner{res: execx.Result{ExitCode: 0}}
	cl := &Classifier{Runner: runner, Gates: gates}

	// With the net gate held, the probe cannot be admitted.
	if err := gates.AcquireNet(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	class, _ := cl.Classify(ctx, "ssh://remote")
	if class != AccessUnknown {
		t.Errorf("class = %s, want %s", class, AccessUnknown)
	}
	if runner.argv != nil {
		t.Errorf("probe ran while the net gate was full: %v", runner.argv)
	}
	gates.ReleaseNet()

	// Once capacity frees up the probe runs, and releases the gate after.
	if class, _ := cl.Classify(context.Background(), "ssh://remote"); class != AccessOK {
		t.Errorf("class = %s, want %s", class, AccessOK)
	}
	if err := gates.AcquireNet(context.Background()); err != nil {
		t.Errorf("net gate still held after probe: %v", err)
	}
}

func TestClassifier_ProbesWithoutContentTransfer(t *testing.T) {
	runner := &probeRunner{res: execx.Result{ExitCode: 128, Tail: "Repository not found"}}
	cl := &Classifier{Runner: runner}

	class, out := cl.Classify(context.Background(), "git@ssh.dev.azure.com:v3/o/p/r")
	if class != AccessNotFound {
		t.Errorf("class = %s, want %s", class, AccessNotFound)
	}
	if out != "Repository not found" {
		t.Errorf("probe output = %q", out)
	}
	want := []string{"git", "ls-remote", "--heads", "git@ssh.dev.azure.com:v3/o/p/r"}
	if len(runner.argv) != len(want) {
		t.Fatalf("argv = %v, want %v", runner.argv, want)
	}
	for i := range want {
		if runner.argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", runner.argv, want)
		}
	}
}
