// Package gitsync owns the per-repository synchronization machinery: the
// four-way sync plan, the two capacity gates throttling network git
// operations, the clone/update state machine with secondary-transport
// fallback, and the post-failure access classifier.
package gitsync

import (
	"os"
	"path/filepath"
)

// Plan is the per-repository decision computed once before dispatch and
// never recomputed mid-run.
type Plan int

const (
	PlanClone Plan = iota
	PlanUpdate
	PlanSkipExists
	PlanSkipMissing
)

func (p Plan) String() string {
	switch p {
	case PlanClone:
		return "clone"
	case PlanUpdate:
		return "update"
	case PlanSkipExists:
		return "exists-skipped"
	case PlanSkipMissing:
		return "missing-skipped"
	default:
		return "unknown"
	}
}

// Target carries the resolved transport endpoints for one repository.
// PrimaryURL is the preferred (SSH) remote; SecondaryURL the HTTPS fallback.
type Target struct {
	Name         string
	PrimaryURL   string
	SecondaryURL string
}

// Dir returns the repository's workspace directory.
func (t Target) Dir(workspaceDir string) string {
	return filepath.Join(workspaceDir, t.Name)
}

// Initialized reports whether a workspace entry holds version-control
// metadata, the sole marker of a usable local copy.
func Initialized(workspaceDir, name string) bool {
	fi, err := os.Stat(filepath.Join(workspaceDir, name, ".git"))
	return err == nil && fi.IsDir()
}

// Planner decides each repository's plan from local workspace state and the
// update/only-update configuration.
type Planner struct {
	WorkspaceDir   string
	UpdateExisting bool
	OnlyUpdate     bool
}

func (p Planner) Plan(name string) Plan {
	if Initialized(p.WorkspaceDir, name) {
		if !p.UpdateExisting {
			return PlanSkipExists
		}
		return PlanUpdate
	}
	if p.OnlyUpdate {
		return PlanSkipMissing
	}
	return PlanClone
}

// PlanCounts summarizes a planning pass for the pre-dispatch log line.
type PlanCounts struct {
	Clone  int
	Update int
	Skip   int
}

func (c *PlanCounts) Observe(plan Plan) {
	switch plan {
	case PlanClone:
		c.Clone++
	case PlanUpdate:
		c.Update++
	default:
		c.Skip++
	}
}

// Runnable reports whether a plan results in pipeline dispatch.
func (p Plan) Runnable() bool {
	return p == PlanClone || p == PlanUpdate
}
