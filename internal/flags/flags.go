package flags

// Package flags defines canonical CLI flag names shared across the CLI and engine.
// Keeping these as constants helps avoid drift between Cobra flag wiring and other
// code paths that need to reference flags (e.g. validation error messages).
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.Flags().StringVar(&cfg.Hosting.OrgURL, flags.FlagOrgURL, "", "...")
//	arg := "--" + flags.FlagOrgURL
const (
	// Hosting
	FlagProvider    = "provider"
	FlagOrgURL      = "org-url"
	FlagProject     = "project"
	FlagPAT         = "pat"
	FlagBearerToken = "bearer-token"
	FlagGitHubOrg   = "github-org"
	FlagGitHubToken = "github-token"

	// Workspace
	FlagWorkspace  = "workspace"
	FlagSBOMDir    = "sbom-dir"
	FlagSecretsDir = "secrets-dir"

	// Git
	FlagGitRetries       = "git-retries"
	FlagNetConcurrency   = "net-concurrency"
	FlagCloneConcurrency = "clone-concurrency"
	FlagGitQuiet         = "git-quiet"
	FlagPartialClone     = "partial-clone"
	FlagFallback         = "fallback"
	FlagFallbackMode     = "fallback-mode"
	FlagSSHOpts          = "ssh-opts"
	FlagSSHKey           = "ssh-key"

	// Sync
	FlagUpdateExisting = "update-existing"
	FlagOnlyUpdate     = "only-update"
	FlagSkipIfResults  = "skip-if-results-exist"
	FlagOnlyVerified   = "only-verified"

	// Runtime
	FlagWorkers      = "workers"
	FlagBackoffBase  = "backoff-base"
	FlagBackoffCap   = "backoff-cap"
	FlagStartStagger = "start-stagger"
	FlagReport       = "report"

	// Dependency-Track
	FlagDTURL          = "dt-url"
	FlagDTAPIKey       = "dt-api-key"
	FlagDefaultVersion = "default-version"
	FlagAutoCreate     = "auto-create"
	FlagWait           = "wait"
	FlagPolicyName     = "policy-name"
	FlagListFile       = "list-file"
	FlagDryRun         = "dry-run"
)
