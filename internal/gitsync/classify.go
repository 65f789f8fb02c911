package gitsync

import (
	"context"
	"strings"
	"time"

	"reposweep/internal/execx"
)

// AccessClass buckets a failed repository by probe outcome. Permanent
// classes are excluded from the run; transient classes are queued for one
// later retry pass.
type AccessClass string

const (
	AccessOK           AccessClass = "ok"
	AccessTimeout      AccessClass = "timeout"
	AccessNotFound     AccessClass = "not-found-or-renamed"
	AccessNoPermission AccessClass = "no-permission"
	AccessUnknown      AccessClass = "unknown"
)

// Transient reports whether the class may succeed on a later retry.
func (c AccessClass) Transient() bool {
	return c == AccessTimeout || c == AccessUnknown
}

// Permanent reports whether the class permanently excludes the repository
// for this run.
func (c AccessClass) Permanent() bool {
	return c == AccessNotFound || c == AccessNoPermission
}

// Classifier probes a remote with a bare reference listing (no content
// transfer) to decide the disposition of a repository after a full sync
// failure.
type Classifier struct {
	Runner  execx.Runner
	Timeout time.Duration

	// Gates, when set, admits the probe through the net gate: probes are
	// network git operations and count against the same bound as fetches.
	Gates *Gates
}

// Classify probes remoteURL and returns its class plus the probe output.
func (cl *Classifier) Classify(ctx context.Context, remoteURL string) (AccessClass, string) {
	if cl.Gates != nil {
		if err := cl.Gates.AcquireNet(ctx); err != nil {
			return AccessUnknown, ""
		}
		defer cl.Gates.ReleaseNet()
	}

	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := cl.Runner.Run(probeCtx, execx.Spec{
		Argv: []string{"git", "ls-remote", "--heads", remoteURL},
	})
	return ClassifyProbe(res.ExitCode, res.Tail), res.Tail
}

// ClassifyProbe maps a probe's exit code and output to an AccessClass.
// Timeout phrases are checked first: git appends a generic "access rights"
// hint footer even on timeouts, and that footer must not mask them. Then
// missing/renamed phrases, then explicit permission denials.
func ClassifyProbe(exitCode int, out string) AccessClass {
	if exitCode == 0 {
		return AccessOK
	}
	lower := strings.ToLower(out)

	for _, phrase := range []string{
		"operation timed out",
		"connection timed out",
		"timed out",
		"connection reset",
	} {
		if strings.Contains(lower, phrase) {
			return AccessTimeout
		}
	}
	for _, phrase := range []string{
		"tf401019",
		"repository not found",
		"not found",
	} {
		if strings.Contains(lower, phrase) {
			return AccessNotFound
		}
	}
	for _, phrase := range []string{
		"permission denied (publickey)",
		"permission denied (keyboard-interactive)",
		"auth fail",
	} {
		if strings.Contains(lower, phrase) {
			return AccessNoPermission
		}
	}
	return AccessUnknown
}
