package execx

import (
	"context"
	"math/rand/v2"
	"strings"
	"time"

	"reposweep/internal/output"
)

// Retrier re-runs a command on non-zero exit with exponential backoff and
// additive jitter, up to a retry ceiling. Like the Runner it wraps, it never
// returns an error: exhaustion yields the last non-zero result and the
// caller decides what happens next (e.g. transport fallback).
type Retrier struct {
	Runner      Runner
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Log         *output.Console

	// Debug logs every invocation before it runs.
	Debug bool

	// Sleep and Jitter are seams for tests. Nil means time.Sleep and
	// rand.Float64.
	Sleep  func(time.Duration)
	Jitter func() float64
}

// Run executes spec, retrying up to MaxRetries additional times. The label
// identifies the operation in log lines (e.g. "fetch my-repo"). On final
// failure the captured tail is logged as a short diagnostic.
func (r *Retrier) Run(ctx context.Context, spec Spec) Result {
	return r.RunLabeled(ctx, spec, "")
}

func (r *Retrier) RunLabeled(ctx context.Context, spec Spec, label string) Result {
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	jitter := r.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}

	attempts := 0
	for {
		if r.Debug && label != "" {
			r.Log.Infof("exec: %s → %s", label, strings.Join(spec.Argv, " "))
		}
		res := r.Runner.Run(ctx, spec)
		if res.ExitCode == 0 {
			return res
		}
		attempts++
		if attempts > r.MaxRetries {
			if label != "" {
				if tail := strings.TrimSpace(res.Tail); tail != "" {
					r.Log.Warnf("%s failed rc=%d. Last output:\n%s", label, res.ExitCode, tail)
				} else {
					r.Log.Warnf("%s failed rc=%d", label, res.ExitCode)
				}
			}
			return res
		}
		wait := Backoff(attempts, r.BackoffBase, r.BackoffCap, jitter())
		if label != "" {
			r.Log.Warnf("%s: rc=%d; retrying in %.2fs (attempt %d/%d)",
				label, res.ExitCode, wait.Seconds(), attempts, r.MaxRetries)
		}
		sleep(wait)
	}
}

// Backoff returns the sleep before retry number attempt (1-based):
// exponential growth from base with an additive jitter fraction of base,
// capped at max. jitter is expected in [0, 1).
func Backoff(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Beyond 30 doublings the cap always wins; avoid shift overflow.
	shift := uint(attempt - 1)
	if shift > 30 {
		shift = 30
	}
	d := base<<shift + time.Duration(jitter*float64(base))
	if d > max {
		d = max
	}
	return d
}
