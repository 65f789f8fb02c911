package gitsync

import (
	"os"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T, workspace, name string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(workspace, name, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestInitialized(t *testing.T) {
	ws := t.TempDir()
	initRepo(t, ws, "ready")

	// A bare directory without metadata is not a usable copy.
	if err := os.MkdirAll(filepath.Join(ws, "partial"), 0o755); err != nil {
		t.Fatal(err)
	}
	// A .git file (worktree pointer) does not count either.
	if err := os.MkdirAll(filepath.Join(ws, "worktree"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "worktree", ".git"), []byte("gitdir: elsewhere"), 0o644); err != nil {
		t.Fatal(err)
	}

	if !Initialized(ws, "ready") {
		t.Error("Initialized(ready) = false, want true")
	}
	if Initialized(ws, "partial") {
		t.Error("Initialized(partial) = true, want false")
	}
	if Initialized(ws, "worktree") {
		t.Error("Initialized(worktree) = true, want false")
	}
	if Initialized(ws, "absent") {
		t.Error("Initialized(absent) = true, want false")
	}
}

func TestPlanner(t *testing.T) {
	ws := t.TempDir()
	initRepo(t, ws, "existing")

	tests := []struct {
		name           string
		repo           string
		updateExisting bool
		onlyUpdate     bool
		want           Plan
	}{
		{"missing default", "missing", true, false, PlanClone},
		{"missing only-update", "missing", true, true, PlanSkipMissing},
		{"existing default", "existing", true, false, PlanUpdate},
		{"existing frozen", "existing", false, false, PlanSkipExists},
		{"existing frozen only-update", "existing", false, true, PlanSkipExists},
		{"existing only-update", "existing", true, true, PlanUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Planner{WorkspaceDir: ws, UpdateExisting: tt.updateExisting, OnlyUpdate: tt.onlyUpdate}
			if got := p.Plan(tt.repo); got != tt.want {
				t.Errorf("Plan(%s) = %s, want %s", tt.repo, got, tt.want)
			}
		})
	}
}

func TestPlanCounts(t *testing.T) {
	var c PlanCounts
	for _, p := range []Plan{PlanClone, PlanUpdate, PlanUpdate, PlanSkipExists, PlanSkipMissing} {
		c.Observe(p)
	}
	if c.Clone != 1 || c.Update != 2 || c.Skip != 2 {
		t.Errorf("counts = %+v, want clone 1, update 2, skip 2", c)
	}
}

func TestPlan_Runnable(t *testing.T) {
	if !PlanClone.Runnable() || !PlanUpdate.Runnable() {
		t.Error("clone and update must be runnable")
	}
	if PlanSkipExists.Runnable() || PlanSkipMissing.Runnable() {
		t.Error("skip plans must not be runnable")
	}
}
