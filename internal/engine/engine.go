package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"reposweep/internal/gitsync"
	"reposweep/internal/hosting"
	"reposweep/internal/output"
	"reposweep/internal/scan"
)

// Engine drives a full run: list, plan, dispatch, retry transients, report.
type Engine struct {
	Lister   hosting.Lister
	Pipeline *Pipeline
	Planner  gitsync.Planner
	Log      *output.Console

	Project      string
	WorkspaceDir string
	SBOMDir      string
	SecretsDir   string
	Workers      int
	OnlyVerified bool

	// ReportPath, when set, additionally writes the summary JSON to a file.
	ReportPath string

	// Out receives the summary document. Nil means os.Stdout.
	Out io.Writer

	// LookPath is a seam for SBOM tool discovery. Nil means exec.LookPath.
	LookPath func(string) (string, error)
}

// Summary is the run's final machine-readable document.
type Summary struct {
	Project          string            `json:"project"`
	Workspace        string            `json:"workspace"`
	SBOMOutputDir    string            `json:"sbom_output_dir"`
	SecretsOutputDir string            `json:"secrets_output_dir"`
	CountRepos       int               `json:"count_repos"`
	SBOMTool         string            `json:"sbom_tool"`
	OnlyVerified     bool              `json:"only_verified"`
	Results          []OperationResult `json:"results"`
}

// Failures counts repositories that ended the run with errors.
func (s *Summary) Failures() int {
	n := 0
	for _, r := range s.Results {
		if r.Failed() {
			n++
		}
	}
	return n
}

// Run executes the whole orchestration. Only preflight problems (output
// directories, listing, tool discovery) return an error; once dispatch
// begins, failures are per-repository and land in the summary.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	for _, dir := range []string{e.WorkspaceDir, e.SBOMDir, e.SecretsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	look := e.LookPath
	if look == nil {
		look = exec.LookPath
	}
	tool, err := scan.DiscoverSBOMTool(look)
	if err != nil {
		return nil, err
	}
	e.Pipeline.SBOM.Tool = tool

	repos, err := e.Lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	if len(repos) == 0 {
		return nil, errors.New("no repositories found")
	}

	e.Log.Infof("Found %d repositories in %s", len(repos), e.Project)
	e.Log.Infof("Workspace %s, SBOM tool %s, %d workers", e.WorkspaceDir, tool, e.Workers)

	agg := NewAggregator(0, e.Log)
	var tasks []Task
	var counts gitsync.PlanCounts
	for _, repo := range repos {
		if repo.Disabled {
			e.Log.Skipf("%s is disabled; skipping", repo.Name)
			agg.Add(DisabledResult(repo.Name))
			continue
		}
		primary := repo.SSHURL
		if primary == "" {
			primary = repo.RemoteURL
		}
		if primary == "" {
			e.Log.Warnf("%s has no usable remote URL; skipping", repo.Name)
			agg.Add(OperationResult{
				Repo:   repo.Name,
				Sync:   "no-remote",
				Errors: []string{"no usable remote URL"},
			})
			continue
		}

		plan := e.Planner.Plan(repo.Name)
		counts.Observe(plan)
		if !plan.Runnable() {
			agg.Add(PlanSkipResult(repo.Name, plan))
			continue
		}
		tasks = append(tasks, Task{
			Target: gitsync.Target{
				Name:         repo.Name,
				PrimaryURL:   primary,
				SecondaryURL: repo.RemoteURL,
			},
			Plan: plan,
		})
	}
	agg.total = len(tasks)
	e.Log.Infof("Plan: clone %d, update %d, skip %d (dispatching %d)",
		counts.Clone, counts.Update, counts.Skip, len(tasks))

	if len(tasks) > 0 {
		sched, err := NewScheduler(e.Pipeline.Process, e.Workers)
		if err != nil {
			return nil, err
		}
		for res := range sched.Execute(ctx, tasks) {
			agg.Complete(res)
		}

		e.secondPass(ctx, agg, tasks)
	}

	summary := &Summary{
		Project:          e.Project,
		Workspace:        e.WorkspaceDir,
		SBOMOutputDir:    e.SBOMDir,
		SecretsOutputDir: e.SecretsDir,
		CountRepos:       len(repos),
		SBOMTool:         tool,
		OnlyVerified:     e.OnlyVerified,
		Results:          agg.Results(),
	}

	out := e.Out
	if out == nil {
		out = os.Stdout
	}
	if err := output.WriteJSON(out, summary); err != nil {
		e.Log.Warnf("writing summary: %v", err)
	}
	if e.ReportPath != "" {
		if err := output.WriteJSONFile(e.ReportPath, summary); err != nil {
			e.Log.Warnf("writing summary file %s: %v", e.ReportPath, err)
		} else {
			e.Log.Okf("Summary written to %s", e.ReportPath)
		}
	}
	return summary, nil
}

// secondPass re-runs repositories whose sync failed for a reason that may
// have cleared (timeouts, unclassified faults) through a much smaller pool,
// so stragglers do not re-trigger the congestion that likely failed them.
func (e *Engine) secondPass(ctx context.Context, agg *Aggregator, tasks []Task) {
	transient := agg.TransientFailures()
	if len(transient) == 0 {
		return
	}
	e.Log.Infof("Re-processing %d transient failures after initial pass", len(transient))

	byName := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byName[t.Target.Name] = t
	}
	var retry []Task
	for _, res := range transient {
		if t, ok := byName[res.Repo]; ok {
			retry = append(retry, t)
		}
	}
	if len(retry) == 0 {
		return
	}

	workers := e.Workers
	if workers > 2 {
		workers = 2
	}
	sched, err := NewScheduler(e.Pipeline.Process, workers)
	if err != nil {
		return
	}
	for res := range sched.Execute(ctx, retry) {
		agg.Replace(res)
	}
}
