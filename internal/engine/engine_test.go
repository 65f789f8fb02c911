package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"reposweep/internal/execx"
	"reposweep/internal/gitsync"
	"reposweep/internal/hosting"
)

type staticLister struct {
	repos []hosting.Repository
	err   error
}

func (l staticLister) List(context.Context) ([]hosting.Repository, error) {
	return l.repos, l.err
}

// flakyRunner fails the first failCount git operations that reference
// failURL, then succeeds; everything else always succeeds.
type flakyRunner struct {
	mu        sync.Mutex
	failURL   string
	failTail  string
	failCount int
}

func (r *flakyRunner) Run(_ context.Context, spec execx.Spec) execx.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCount > 0 {
		for _, arg := range spec.Argv {
			if arg == r.failURL {
				r.failCount--
				return execx.Result{ExitCode: 128, Tail: r.failTail}
			}
		}
	}
	return execx.Result{ExitCode: 0}
}

func newTestEngine(t *testing.T, lister hosting.Lister, runner execx.Runner) (*Engine, *bytes.Buffer) {
	t.Helper()
	p := newTestPipeline(t, runner)
	var out bytes.Buffer
	return &Engine{
		Lister:       lister,
		Pipeline:     p,
		Planner:      gitsync.Planner{WorkspaceDir: p.Syncer.WorkspaceDir, UpdateExisting: true},
		Log:          p.Log,
		Project:      "Platform",
		WorkspaceDir: p.Syncer.WorkspaceDir,
		SBOMDir:      p.SBOMDir,
		SecretsDir:   p.SecretsDir,
		Workers:      2,
		Out:          &out,
		LookPath: func(name string) (string, error) {
			if name == "cdxgen" {
				return "/usr/bin/cdxgen", nil
			}
			return "", errors.New("not found")
		},
	}, &out
}

func TestEngine_Run(t *testing.T) {
	lister := staticLister{repos: []hosting.Repository{
		{Name: "api", SSHURL: "ssh://api", RemoteURL: "https://api"},
		{Name: "web", SSHURL: "ssh://web", RemoteURL: "https://web"},
		{Name: "dead", SSHURL: "ssh://dead", Disabled: true},
		{Name: "blank"},
	}}
	e, out := newTestEngine(t, lister, &countingRunner{})

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.CountRepos != 4 {
		t.Errorf("count_repos = %d, want 4", summary.CountRepos)
	}
	if summary.SBOMTool != "cdxgen" {
		t.Errorf("sbom_tool = %q", summary.SBOMTool)
	}
	if got := len(summary.Results); got != 4 {
		t.Fatalf("results = %d, want 4", got)
	}

	byRepo := map[string]OperationResult{}
	for _, r := range summary.Results {
		byRepo[r.Repo] = r
	}
	if byRepo["api"].Sync != "cloned" || byRepo["web"].Sync != "cloned" {
		t.Errorf("sync results = %+v", byRepo)
	}
	if byRepo["dead"].Sync != "disabled" {
		t.Errorf("disabled result = %+v", byRepo["dead"])
	}
	if !byRepo["blank"].Failed() {
		t.Errorf("URL-less repository must fail: %+v", byRepo["blank"])
	}
	if summary.Failures() != 1 {
		t.Errorf("failures = %d, want 1", summary.Failures())
	}

	// The summary document on stdout must round-trip.
	var decoded Summary
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("summary output is not valid JSON: %v", err)
	}
	if decoded.Project != "Platform" {
		t.Errorf("decoded project = %q", decoded.Project)
	}
}

func TestEngine_Run_PreflightFailures(t *testing.T) {
	t.Run("listing error", func(t *testing.T) {
		e, _ := newTestEngine(t, staticLister{err: errors.New("HTTP 502")}, &countingRunner{})
		if _, err := e.Run(context.Background()); err == nil || !strings.Contains(err.Error(), "HTTP 502") {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("empty listing", func(t *testing.T) {
		e, _ := newTestEngine(t, staticLister{}, &countingRunner{})
		if _, err := e.Run(context.Background()); err == nil {
			t.Error("empty listing must be fatal")
		}
	})
	t.Run("no sbom tool", func(t *testing.T) {
		e, _ := newTestEngine(t, staticLister{repos: []hosting.Repository{{Name: "api", SSHURL: "ssh://api"}}}, &countingRunner{})
		e.LookPath = func(string) (string, error) { return "", errors.New("not found") }
		if _, err := e.Run(context.Background()); err == nil {
			t.Error("missing SBOM tool must be fatal")
		}
	})
}

func TestEngine_SecondPassRecoversTransients(t *testing.T) {
	// Pass one references the URL twice for the failing repo (clone attempt,
	// then the classification probe); both fail with a timeout. Pass two's
	// clone is the third reference and succeeds.
	runner := &flakyRunner{failURL: "ssh://slow", failTail: "Operation timed out", failCount: 2}
	lister := staticLister{repos: []hosting.Repository{
		{Name: "slow", SSHURL: "ssh://slow", RemoteURL: "https://slow"},
		{Name: "ok", SSHURL: "ssh://ok", RemoteURL: "https://ok"},
	}}
	e, _ := newTestEngine(t, lister, runner)

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	byRepo := map[string]OperationResult{}
	for _, r := range summary.Results {
		byRepo[r.Repo] = r
	}
	if byRepo["slow"].Sync != "cloned" || byRepo["slow"].SyncClass != "ok" {
		t.Errorf("second pass did not recover: %+v", byRepo["slow"])
	}
	if summary.Failures() != 0 {
		t.Errorf("failures = %d, want 0", summary.Failures())
	}
	if byRepo["ok"].Sync != "cloned" {
		t.Errorf("healthy repo = %+v", byRepo["ok"])
	}
}
