package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"reposweep/internal/gitsync"
	"reposweep/internal/output"
	"reposweep/internal/scan"
)

// Pipeline runs one repository through sync, classification, bill-of-
// materials generation, and secret scanning. Stage failures are attributed
// to the repository and never abort the run; a sync failure skips the
// analysis stages since there is nothing trustworthy to analyze.
type Pipeline struct {
	Project    string
	Syncer     *gitsync.Syncer
	Classifier *gitsync.Classifier
	SBOM       *scan.SBOMGenerator
	Secrets    *scan.SecretScanner
	Log        *output.Console

	SBOMDir            string
	SecretsDir         string
	SkipIfResultsExist bool

	// StartStagger smears pipeline starts over a random delay to soften
	// the initial connection burst against the remote host.
	StartStagger time.Duration

	// Sleep and Jitter are seams for tests. Nil means time.Sleep and
	// rand.Float64.
	Sleep  func(time.Duration)
	Jitter func() float64
}

func (p *Pipeline) Process(ctx context.Context, task Task) OperationResult {
	p.stagger()

	name := task.Target.Name
	res := OperationResult{Repo: name, Errors: []string{}}

	sbomPath, secretsPath := scan.ArtifactPaths(p.SBOMDir, p.SecretsDir, p.Project, name)

	// Idempotence: a repository whose artifacts both exist is finished work
	// from a previous run and costs nothing to skip.
	if p.SkipIfResultsExist && artifactExists(sbomPath) && artifactExists(secretsPath) {
		p.Log.Skipf("%s: results already present, skipping", name)
		res.Sync = "results-exist-skip"
		res.SBOM = "exists:" + sbomPath
		res.Secrets = "exists:" + secretsPath
		return res
	}

	if !task.Plan.Runnable() {
		return PlanSkipResult(name, task.Plan)
	}

	switch task.Plan {
	case gitsync.PlanUpdate:
		p.Log.Infof("Updating %s", name)
	case gitsync.PlanClone:
		p.Log.Infof("Cloning %s", name)
	}

	outcome := p.Syncer.Sync(ctx, task.Target, task.Plan)
	res.Sync = outcome.Status
	if !outcome.OK {
		class, _ := p.Classifier.Classify(ctx, task.Target.PrimaryURL)
		res.SyncClass = string(class)
		res.Errors = append(res.Errors, "clone/fetch: "+outcome.Status)
		if class.Permanent() {
			res.Errors = append(res.Errors, string(class))
			p.Log.Skipf("%s is inaccessible (%s); excluding from this run", name, class)
		} else {
			p.Log.Errorf("%s sync failed (%s): %s", name, class, outcome.Status)
		}
		return res
	}
	res.SyncClass = string(gitsync.AccessOK)

	repoDir := task.Target.Dir(p.Syncer.WorkspaceDir)
	res.SBOM = p.sbomStage(ctx, name, repoDir, sbomPath, &res)
	res.Secrets = p.secretsStage(ctx, name, repoDir, secretsPath, &res)
	return res
}

func (p *Pipeline) sbomStage(ctx context.Context, name, repoDir, outPath string, res *OperationResult) string {
	if p.SkipIfResultsExist && artifactExists(outPath) {
		return "exists:" + outPath
	}
	r := p.SBOM.Generate(ctx, repoDir, outPath)
	if r.ExitCode != 0 {
		p.Log.Errorf("%s: SBOM generation failed rc=%d", name, r.ExitCode)
		res.Errors = append(res.Errors, fmt.Sprintf("sbom rc=%d", r.ExitCode))
		return fmt.Sprintf("failed rc=%d", r.ExitCode)
	}
	return "written:" + outPath
}

func (p *Pipeline) secretsStage(ctx context.Context, name, repoDir, outPath string, res *OperationResult) string {
	if p.SkipIfResultsExist && artifactExists(outPath) {
		return "exists:" + outPath
	}
	r := p.Secrets.Scan(ctx, repoDir, outPath)
	if r.ExitCode != 0 {
		p.Log.Errorf("%s: secret scan failed rc=%d", name, r.ExitCode)
		res.Errors = append(res.Errors, fmt.Sprintf("trufflehog rc=%d", r.ExitCode))
		return fmt.Sprintf("failed rc=%d", r.ExitCode)
	}
	return "written:" + outPath
}

func (p *Pipeline) stagger() {
	if p.StartStagger <= 0 {
		return
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	jitter := p.Jitter
	if jitter == nil {
		jitter = rand.Float64
	}
	sleep(time.Duration(jitter() * float64(p.StartStagger)))
}

// artifactExists is the sole idempotence signal: the file being there is
// enough. An empty findings file is a legitimate clean-scan result.
func artifactExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
