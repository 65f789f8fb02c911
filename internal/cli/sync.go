package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposweep/internal/engine"
	"reposweep/internal/execx"
	"reposweep/internal/flags"
	"reposweep/internal/gitsync"
	"reposweep/internal/hosting"
	"reposweep/internal/hosting/azdo"
	"reposweep/internal/hosting/ghub"
	"reposweep/internal/output"
	"reposweep/internal/scan"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Clone or update every repository and scan each one",
	Long: `Sync clones every repository of a project into the workspace (or fetches
into existing clones), then generates a CycloneDX SBOM and a trufflehog
secret report per repository.

Transport:
	SSH is the primary git transport. When an SSH transfer exhausts its
	retries and a credential is configured, the transfer is retried once over
	authenticated HTTPS (--fallback-mode url leaves the recorded remote
	untouched; swap repoints it).

Failure handling:
	A repository that cannot be synced is probed with a bare reference
	listing and classified. Missing or permission-denied repositories are
	excluded from the run; timeouts and unclassified faults are retried in a
	small second pass after the main pool drains. Repository failures never
	abort the run; only preflight problems (listing, output directories,
	missing SBOM tooling) are fatal.

Exit codes:
	0 = the run completed; per-repository outcomes are in the summary
	3 = fatal error (run did not start)

Examples:
  export AZDO_PAT="<your_pat>"
  reposweep sync --org-url https://dev.azure.com/contoso --project Platform

	# GitHub organization instead of Azure DevOps
	export GITHUB_TOKEN="<your_token>"
	reposweep sync --provider github --github-org contoso

	# Re-run only repositories without artifacts, updating nothing
	reposweep sync --only-update=false --skip-if-results-exist
`,
	Run: func(cmd *cobra.Command, args []string) {
		log := output.NewConsole(nil, nil)

		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		if err := cfg.RequireHosting(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}

		ctx := context.Background()
		eng, err := buildEngine(ctx, log)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(3)
		}

		summary, err := eng.Run(ctx)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(3)
		}
		// Per-repository failures are data in the summary, not a process
		// failure. Only preflight problems change the exit status.
		if n := summary.Failures(); n > 0 {
			log.Warnf("%d of %d repositories failed; see the summary for details", n, summary.CountRepos)
			return
		}
		log.Okf("All %d repositories processed", summary.CountRepos)
	},
}

func buildEngine(ctx context.Context, log *output.Console) (*engine.Engine, error) {
	lister, authHeader, project, err := buildLister(ctx, log)
	if err != nil {
		return nil, err
	}

	runner := execx.ExecRunner{}
	retry := &execx.Retrier{
		Runner:      runner,
		MaxRetries:  cfg.Git.MaxRetries,
		BackoffBase: cfg.Runtime.BackoffBase,
		BackoffCap:  cfg.Runtime.BackoffCap,
		Log:         log,
		Debug:       cfg.Runtime.Debug,
	}
	gates, err := gitsync.NewGates(cfg.Git.NetConcurrency, cfg.Git.CloneConcurrency)
	if err != nil {
		return nil, err
	}

	// An operator-supplied GIT_SSH_COMMAND wins over the hardened defaults.
	var env []string
	if _, ok := os.LookupEnv("GIT_SSH_COMMAND"); !ok {
		env = gitsync.SSHEnv(cfg.Git.SSHOpts, cfg.Git.SSHKey)
	}

	syncer := &gitsync.Syncer{
		Runner:       runner,
		Retry:        retry,
		Gates:        gates,
		Log:          log,
		WorkspaceDir: cfg.Workspace.Dir,
		Quiet:        cfg.Git.Quiet,
		PartialClone: cfg.Git.PartialClone,
		Fallback: gitsync.Fallback{
			Enabled:    cfg.Git.FallbackEnabled,
			Mode:       gitsync.ParseFallbackMode(cfg.Git.FallbackMode),
			AuthHeader: authHeader,
		},
		Stream: os.Stderr,
		Env:    env,
	}

	pipeline := &engine.Pipeline{
		Project:            project,
		Syncer:             syncer,
		Classifier:         &gitsync.Classifier{Runner: runner, Gates: gates},
		SBOM:               &scan.SBOMGenerator{Runner: runner},
		Secrets:            &scan.SecretScanner{Runner: runner, OnlyVerified: cfg.Sync.OnlyVerified},
		Log:                log,
		SBOMDir:            cfg.Workspace.SBOMDir,
		SecretsDir:         cfg.Workspace.SecretsDir,
		SkipIfResultsExist: cfg.Sync.SkipIfResultsExist,
		StartStagger:       cfg.Runtime.StartStagger,
	}

	return &engine.Engine{
		Lister:   lister,
		Pipeline: pipeline,
		Planner: gitsync.Planner{
			WorkspaceDir:   cfg.Workspace.Dir,
			UpdateExisting: cfg.Sync.UpdateExisting,
			OnlyUpdate:     cfg.Sync.OnlyUpdate,
		},
		Log:          log,
		Project:      project,
		WorkspaceDir: cfg.Workspace.Dir,
		SBOMDir:      cfg.Workspace.SBOMDir,
		SecretsDir:   cfg.Workspace.SecretsDir,
		Workers:      cfg.Runtime.Workers,
		OnlyVerified: cfg.Sync.OnlyVerified,
		ReportPath:   cfg.Runtime.Report,
	}, nil
}

// buildLister resolves the configured provider into a repository lister, the
// Authorization header for the secondary HTTPS transport, and the project
// label used for artifact naming.
func buildLister(ctx context.Context, log *output.Console) (hosting.Lister, string, string, error) {
	if cfg.Hosting.Provider == "github" {
		lister, err := ghub.NewLister(ctx, cfg.Hosting.GitHubToken, cfg.Hosting.GitHubOrg)
		if err != nil {
			return nil, "", "", err
		}
		return lister, ghub.BasicAuthHeader(cfg.Hosting.GitHubToken), cfg.Hosting.GitHubOrg, nil
	}

	var opts []azdo.Option
	var header string
	switch {
	case cfg.Hosting.PAT != "":
		opts = append(opts, azdo.WithPAT(cfg.Hosting.PAT))
		header = azdo.BasicAuthHeader(cfg.Hosting.PAT)
	case cfg.Hosting.BearerToken != "":
		opts = append(opts, azdo.WithBearerToken(cfg.Hosting.BearerToken))
	}
	client, err := azdo.NewClient(cfg.Hosting.OrgURL, cfg.Hosting.Project, log, opts...)
	if err != nil {
		return nil, "", "", err
	}
	client.MaxRetries = cfg.Hosting.HTTPMaxRetries
	return client, header, cfg.Hosting.Project, nil
}

func init() {
	rootCmd.AddCommand(syncCmd)

	// Hosting
	syncCmd.Flags().StringVar(&cfg.Hosting.Provider, flags.FlagProvider, cfg.Hosting.Provider, "Repository host: azdo|github")
	syncCmd.Flags().StringVar(&cfg.Hosting.OrgURL, flags.FlagOrgURL, cfg.Hosting.OrgURL, "Azure DevOps organization URL (env AZDO_ORG_URL)")
	syncCmd.Flags().StringVar(&cfg.Hosting.Project, flags.FlagProject, cfg.Hosting.Project, "Azure DevOps project (env AZDO_PROJECT)")
	syncCmd.Flags().StringVar(&cfg.Hosting.PAT, flags.FlagPAT, cfg.Hosting.PAT, "Azure DevOps personal access token (env AZDO_PAT)")
	syncCmd.Flags().StringVar(&cfg.Hosting.BearerToken, flags.FlagBearerToken, cfg.Hosting.BearerToken, "OAuth bearer token for the listing API (env AZDO_BEARER_TOKEN)")
	syncCmd.Flags().StringVar(&cfg.Hosting.GitHubOrg, flags.FlagGitHubOrg, cfg.Hosting.GitHubOrg, "GitHub organization (with --provider github)")
	syncCmd.Flags().StringVar(&cfg.Hosting.GitHubToken, flags.FlagGitHubToken, cfg.Hosting.GitHubToken, "GitHub access token (env GITHUB_TOKEN)")

	// Workspace
	syncCmd.Flags().StringVar(&cfg.Workspace.Dir, flags.FlagWorkspace, cfg.Workspace.Dir, "Directory repositories are cloned into (env WORKSPACE_DIR)")
	syncCmd.Flags().StringVar(&cfg.Workspace.SBOMDir, flags.FlagSBOMDir, cfg.Workspace.SBOMDir, "Directory for generated SBOMs (env SBOM_OUT_DIR)")
	syncCmd.Flags().StringVar(&cfg.Workspace.SecretsDir, flags.FlagSecretsDir, cfg.Workspace.SecretsDir, "Directory for secret-scan reports (env SECRETS_OUT_DIR)")

	// Git
	syncCmd.Flags().IntVar(&cfg.Git.MaxRetries, flags.FlagGitRetries, cfg.Git.MaxRetries, "Retries per git network operation (env GIT_MAX_RETRIES)")
	syncCmd.Flags().IntVar(&cfg.Git.NetConcurrency, flags.FlagNetConcurrency, cfg.Git.NetConcurrency, "Concurrent network git operations (env GIT_MAX_CONCURRENCY)")
	syncCmd.Flags().IntVar(&cfg.Git.CloneConcurrency, flags.FlagCloneConcurrency, cfg.Git.CloneConcurrency, "Concurrent from-scratch clones (env GIT_CLONE_CONCURRENCY)")
	syncCmd.Flags().BoolVar(&cfg.Git.Quiet, flags.FlagGitQuiet, cfg.Git.Quiet, "Suppress git progress output (env GIT_QUIET)")
	syncCmd.Flags().BoolVar(&cfg.Git.PartialClone, flags.FlagPartialClone, cfg.Git.PartialClone, "Clone with --filter=blob:none (env GIT_PARTIAL_CLONE)")
	syncCmd.Flags().BoolVar(&cfg.Git.FallbackEnabled, flags.FlagFallback, cfg.Git.FallbackEnabled, "Retry failed SSH transfers over authenticated HTTPS (env GIT_FALLBACK_HTTPS)")
	syncCmd.Flags().StringVar(&cfg.Git.FallbackMode, flags.FlagFallbackMode, cfg.Git.FallbackMode, "Fallback remote handling: url|swap (env GIT_FALLBACK_REMOTE_MODE)")
	syncCmd.Flags().StringVar(&cfg.Git.SSHOpts, flags.FlagSSHOpts, cfg.Git.SSHOpts, "Override the hardened SSH option string (env GIT_SSH_OPTS)")
	syncCmd.Flags().StringVar(&cfg.Git.SSHKey, flags.FlagSSHKey, cfg.Git.SSHKey, "Pin a specific SSH private key file (env GIT_SSH_KEY)")

	// Sync
	syncCmd.Flags().BoolVar(&cfg.Sync.UpdateExisting, flags.FlagUpdateExisting, cfg.Sync.UpdateExisting, "Fetch into repositories that already exist locally (env UPDATE_EXISTING)")
	syncCmd.Flags().BoolVar(&cfg.Sync.OnlyUpdate, flags.FlagOnlyUpdate, cfg.Sync.OnlyUpdate, "Skip repositories with no local copy (env ONLY_UPDATE)")
	syncCmd.Flags().BoolVar(&cfg.Sync.SkipIfResultsExist, flags.FlagSkipIfResults, cfg.Sync.SkipIfResultsExist, "Skip repositories whose artifacts already exist (env SKIP_IF_RESULTS_EXIST)")
	syncCmd.Flags().BoolVar(&cfg.Sync.OnlyVerified, flags.FlagOnlyVerified, cfg.Sync.OnlyVerified, "Report only verified secret findings (env TRUFFLEHOG_ONLY_VERIFIED)")

	// Runtime
	syncCmd.Flags().IntVar(&cfg.Runtime.Workers, flags.FlagWorkers, cfg.Runtime.Workers, "Pipeline worker pool size (env MAX_WORKERS)")
	syncCmd.Flags().DurationVar(&cfg.Runtime.BackoffBase, flags.FlagBackoffBase, cfg.Runtime.BackoffBase, "First retry delay (env BACKOFF_BASE_MS)")
	syncCmd.Flags().DurationVar(&cfg.Runtime.BackoffCap, flags.FlagBackoffCap, cfg.Runtime.BackoffCap, "Retry delay ceiling (env BACKOFF_MAX_MS)")
	syncCmd.Flags().DurationVar(&cfg.Runtime.StartStagger, flags.FlagStartStagger, cfg.Runtime.StartStagger, "Random delay before each pipeline start (env START_STAGGER_MS)")
	syncCmd.Flags().StringVar(&cfg.Runtime.Report, flags.FlagReport, cfg.Runtime.Report, "Also write the summary JSON to this path")
}
