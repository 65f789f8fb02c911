package engine

import (
	"bytes"
	"strings"
	"testing"

	"reposweep/internal/gitsync"
	"reposweep/internal/output"
)

func TestAggregator_ReplaceOverwritesByRepo(t *testing.T) {
	agg := NewAggregator(2, output.NewConsole(&bytes.Buffer{}, &bytes.Buffer{}))

	agg.Complete(OperationResult{
		Repo:      "api",
		Sync:      "git clone failed rc=128",
		SyncClass: string(gitsync.AccessTimeout),
		Errors:    []string{"clone/fetch: git clone failed rc=128"},
	})
	agg.Complete(OperationResult{Repo: "web", Sync: "cloned", SyncClass: "ok", Errors: []string{}})

	agg.Replace(OperationResult{Repo: "api", Sync: "cloned", SyncClass: "ok", Errors: []string{}})

	results := agg.Results()
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	// First-seen order is preserved across replacement.
	if results[0].Repo != "api" || results[0].Sync != "cloned" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if len(agg.TransientFailures()) != 0 {
		t.Error("replaced result must clear the transient set")
	}
}

func TestAggregator_TransientFailures(t *testing.T) {
	agg := NewAggregator(4, output.NewConsole(&bytes.Buffer{}, &bytes.Buffer{}))

	agg.Complete(OperationResult{Repo: "slow", SyncClass: string(gitsync.AccessTimeout), Errors: []string{"clone/fetch: timeout"}})
	agg.Complete(OperationResult{Repo: "odd", SyncClass: string(gitsync.AccessUnknown), Errors: []string{"clone/fetch: rc=1"}})
	agg.Complete(OperationResult{Repo: "gone", SyncClass: string(gitsync.AccessNotFound), Errors: []string{"clone/fetch: not found"}})
	agg.Complete(OperationResult{Repo: "ok", SyncClass: "ok", Errors: []string{}})

	trans := agg.TransientFailures()
	if len(trans) != 2 {
		t.Fatalf("transient = %d, want 2", len(trans))
	}
	names := map[string]bool{}
	for _, r := range trans {
		names[r.Repo] = true
	}
	if !names["slow"] || !names["odd"] {
		t.Errorf("transient repos = %v", names)
	}
}

func TestAggregator_ProgressLine(t *testing.T) {
	var out bytes.Buffer
	agg := NewAggregator(3, output.NewConsole(&out, &bytes.Buffer{}))

	// Synthetic results never advance the progress counter.
	agg.Add(DisabledResult("dead"))
	if out.Len() != 0 {
		t.Errorf("synthetic add logged progress: %q", out.String())
	}

	agg.Complete(OperationResult{Repo: "api", Sync: "cloned", Errors: []string{}})
	agg.Complete(OperationResult{Repo: "web", Errors: []string{"clone/fetch: rc=128"}})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.Contains(lines[1], "Progress: 2/3 done, failures 1") {
		t.Errorf("second progress line = %q", lines[1])
	}
}
