package gitsync

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"reposweep/internal/execx"
	"reposweep/internal/output"
)

// FallbackMode selects how a secondary-transport fetch updates the local
// remote configuration.
type FallbackMode int

const (
	// FallbackOverlay fetches the secondary URL directly into the primary
	// remote's tracking refs, leaving the recorded remote untouched.
	FallbackOverlay FallbackMode = iota

	// FallbackSwap repoints the recorded remote at the secondary URL
	// before fetching.
	FallbackSwap
)

// ParseFallbackMode maps the configured mode name to its tagged value.
// Anything other than "swap" selects the overlay mode.
func ParseFallbackMode(s string) FallbackMode {
	if strings.EqualFold(strings.TrimSpace(s), "swap") {
		return FallbackSwap
	}
	return FallbackOverlay
}

// Fallback describes the secondary transport: enabled or not, how the
// remote is updated, and the Authorization header value injected into git's
// HTTP requests. An empty AuthHeader disables fallback regardless of
// Enabled, since the secondary transport cannot authenticate.
type Fallback struct {
	Enabled    bool
	Mode       FallbackMode
	AuthHeader string
}

// Outcome is the sync engine's result for one repository.
type Outcome struct {
	OK     bool
	Status string
}

// Syncer drives one repository through NotStarted → Syncing → Synced/Failed.
// Exactly one Syncer invocation touches a given workspace entry per run.
type Syncer struct {
	Runner execx.Runner
	Retry  *execx.Retrier
	Gates  *Gates
	Log    *output.Console

	WorkspaceDir string
	Quiet        bool
	PartialClone bool
	Fallback     Fallback

	// Stream receives git output when Quiet is false.
	Stream io.Writer

	// Env entries are appended to every git invocation (SSH hardening).
	Env []string
}

// Sync executes the plan's branch for target. It never returns an error:
// any unresolved failure is attributed to this repository alone via the
// outcome, and the run continues.
func (s *Syncer) Sync(ctx context.Context, t Target, plan Plan) Outcome {
	switch plan {
	case PlanUpdate:
		return s.update(ctx, t)
	case PlanClone:
		return s.clone(ctx, t)
	default:
		return Outcome{OK: false, Status: "not planned for sync"}
	}
}

func (s *Syncer) update(ctx context.Context, t Target) Outcome {
	dir := t.Dir(s.WorkspaceDir)

	// Repoint origin at the primary transport (update stale remotes).
	res := s.Runner.Run(ctx, s.spec("git", "-C", dir, "remote", "set-url", "origin", t.PrimaryURL))
	if res.ExitCode != 0 {
		return Outcome{OK: false, Status: fmt.Sprintf("git remote set-url failed rc=%d", res.ExitCode)}
	}
	s.verifyRemote(ctx, dir, t.PrimaryURL)

	fetch := []string{"git", "-C", dir, "fetch", "--all", "--prune"}
	if s.Quiet {
		fetch = append(fetch, "--quiet")
	}
	rc := s.runGated(ctx, s.Gates.AcquireNet, s.Gates.ReleaseNet, s.spec(fetch...), "fetch "+t.Name)

	viaSecondary := false
	if rc != 0 {
		ok, fellBack := s.fallbackFetch(ctx, t, dir)
		if !ok {
			return Outcome{OK: false, Status: fmt.Sprintf("git fetch failed rc=%d", rc)}
		}
		viaSecondary = fellBack
	}

	// Best-effort: reset the default branch to the remote's advertised head
	// so analysis stages see a clean checkout.
	reset := []string{"git", "-C", dir, "reset", "--hard", "origin/HEAD"}
	if s.Quiet {
		reset = append(reset, "--quiet")
	}
	_ = s.Runner.Run(ctx, s.spec(reset...))

	if viaSecondary {
		return Outcome{OK: true, Status: "updated via secondary"}
	}
	return Outcome{OK: true, Status: "updated"}
}

// fallbackFetch retries the fetch over the secondary transport. It returns
// (true, true) on secondary success, (true, false) never (primary success is
// handled by the caller), and (false, _) when fallback was impossible or
// also failed.
func (s *Syncer) fallbackFetch(ctx context.Context, t Target, dir string) (ok, fellBack bool) {
	if !s.fallbackReady(t) {
		return false, false
	}
	s.Log.Infof("Falling back to secondary transport fetch for %s", t.Name)

	header := "http.extraHeader=AUTHORIZATION: " + s.Fallback.AuthHeader
	var argv []string
	if s.Fallback.Mode == FallbackSwap {
		_ = s.Runner.Run(ctx, s.spec("git", "-C", dir, "remote", "set-url", "origin", t.SecondaryURL))
		argv = []string{"git", "-c", header, "-C", dir, "fetch", "--all", "--prune"}
	} else {
		// Leave origin alone; fetch from the URL into origin/* refs.
		argv = []string{"git", "-c", header, "-C", dir, "fetch", t.SecondaryURL, "+refs/heads/*:refs/remotes/origin/*", "--prune"}
	}
	if s.Quiet {
		argv = append(argv, "--quiet")
	}
	rc := s.runGated(ctx, s.Gates.AcquireNet, s.Gates.ReleaseNet, s.spec(argv...), "fetch-secondary "+t.Name)
	return rc == 0, rc == 0
}

func (s *Syncer) clone(ctx context.Context, t Target) Outcome {
	dir := t.Dir(s.WorkspaceDir)

	// A prior failed clone's partial state is not a valid starting point;
	// the target is overwritten, never resumed.
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() && !Initialized(s.WorkspaceDir, t.Name) {
		_ = os.RemoveAll(dir)
	}

	argv := s.cloneArgv(t.PrimaryURL, dir, nil)
	rc := s.runGated(ctx, s.Gates.AcquireClone, s.Gates.ReleaseClone, s.spec(argv...), "clone "+t.Name)
	if rc == 0 {
		return Outcome{OK: true, Status: "cloned"}
	}

	if !s.fallbackReady(t) {
		return Outcome{OK: false, Status: fmt.Sprintf("git clone failed rc=%d", rc)}
	}
	s.Log.Infof("Falling back to secondary transport clone for %s", t.Name)

	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		_ = os.RemoveAll(dir)
	}
	header := []string{"-c", "http.extraHeader=AUTHORIZATION: " + s.Fallback.AuthHeader}
	argv = s.cloneArgv(t.SecondaryURL, dir, header)
	rc = s.runGated(ctx, s.Gates.AcquireClone, s.Gates.ReleaseClone, s.spec(argv...), "clone-secondary "+t.Name)
	if rc != 0 {
		return Outcome{OK: false, Status: fmt.Sprintf("git clone failed rc=%d", rc)}
	}
	return Outcome{OK: true, Status: "cloned via secondary"}
}

func (s *Syncer) cloneArgv(remoteURL, dir string, configArgs []string) []string {
	argv := []string{"git"}
	argv = append(argv, configArgs...)
	argv = append(argv, "clone", "--no-tags", "--origin", "origin")
	if s.Quiet {
		argv = append(argv, "--quiet")
	}
	if s.PartialClone {
		// Partial clone reduces transferred data but may hide blobs from
		// scanners.
		argv = append(argv, "--filter=blob:none")
	}
	return append(argv, remoteURL, dir)
}

// fallbackReady reports whether the secondary transport can be attempted.
// A missing URL or credential is logged once and disables the fallback.
func (s *Syncer) fallbackReady(t Target) bool {
	if !s.Fallback.Enabled {
		return false
	}
	if t.SecondaryURL == "" {
		s.Log.Warnf("secondary transport not possible for %s: no secondary URL", t.Name)
		return false
	}
	if s.Fallback.AuthHeader == "" {
		s.Log.Warnf("secondary transport requested for %s but no credential is configured; skipping fallback", t.Name)
		return false
	}
	return true
}

// verifyRemote re-reads the recorded remote after a repoint. A mismatch is
// logged but non-fatal.
func (s *Syncer) verifyRemote(ctx context.Context, dir, wantURL string) {
	verifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	res := s.Runner.Run(verifyCtx, execx.Spec{
		Argv: []string{"git", "-C", dir, "remote", "get-url", "origin"},
		Env:  s.Env,
	})
	got := strings.TrimSpace(res.Tail)
	if res.ExitCode != 0 || got != wantURL {
		s.Log.Warnf("Remote URL mismatch: expected %s, got %s", wantURL, got)
	}
}

// runGated runs one network git operation under a gate, through the retry
// engine. Gates are held per operation, never across pipeline stages.
func (s *Syncer) runGated(ctx context.Context, acquire func(context.Context) error, release func(), spec execx.Spec, label string) int {
	if err := acquire(ctx); err != nil {
		return 1
	}
	defer release()
	return s.Retry.RunLabeled(ctx, spec, label).ExitCode
}

func (s *Syncer) spec(argv ...string) execx.Spec {
	spec := execx.Spec{Argv: argv, Env: s.Env}
	if !s.Quiet && s.Stream != nil {
		spec.Stdout = s.Stream
	}
	return spec
}
