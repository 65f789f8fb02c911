package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields that affect run
	// behavior, keep these in sync:
	// - CLI flags in internal/cli/sync.go and internal/cli/dtrack commands
	// - environment bindings in ApplyEnv below
	Hosting   Hosting
	Workspace Workspace
	Git       Git
	Sync      Sync
	Runtime   Runtime
	DTrack    DTrack
}

type Hosting struct {
	// Provider selects the repository listing backend (see --provider).
	// Allowed values: azdo, github.
	Provider string

	// OrgURL is the Azure DevOps organization URL (see --org-url).
	OrgURL string

	// Project is the Azure DevOps project name (see --project).
	Project string

	// PAT is the Azure DevOps personal access token used for both the REST
	// listing and the secondary HTTPS git transport.
	PAT string

	// BearerToken is an OAuth bearer token used for the REST listing when a
	// PAT is not available. The PAT wins when both are set.
	BearerToken string

	// GitHubOrg is the GitHub organization to list when Provider is github.
	GitHubOrg string

	// GitHubToken authenticates GitHub API calls and the secondary
	// transport for GitHub repositories.
	GitHubToken string

	// HTTPMaxRetries bounds retries of throttled or failing listing calls.
	HTTPMaxRetries int
}

type Workspace struct {
	// Dir is where repositories are cloned (see --workspace).
	Dir string

	// SBOMDir receives one CycloneDX document per repository (see --sbom-dir).
	SBOMDir string

	// SecretsDir receives one findings file per repository (see --secrets-dir).
	SecretsDir string
}

type Git struct {
	// MaxRetries is the per-command retry ceiling for git operations
	// (see --git-retries). The command runs at most MaxRetries+1 times.
	MaxRetries int

	// NetConcurrency bounds concurrent network git operations
	// (see --net-concurrency).
	NetConcurrency int

	// CloneConcurrency bounds concurrent from-scratch clones
	// (see --clone-concurrency). Must not exceed NetConcurrency.
	CloneConcurrency int

	// Quiet suppresses git progress output (see --git-quiet).
	Quiet bool

	// PartialClone enables blob-filtered clones (see --partial-clone).
	PartialClone bool

	// FallbackEnabled allows retrying failed SSH transfers over
	// authenticated HTTPS (see --fallback).
	FallbackEnabled bool

	// FallbackMode selects how the fallback updates the local remote
	// (see --fallback-mode). Allowed values: url, swap.
	FallbackMode string

	// SSHOpts overrides the hardened SSH option string (see --ssh-opts).
	SSHOpts string

	// SSHKey pins a specific private key file (see --ssh-key).
	SSHKey string
}

type Sync struct {
	// UpdateExisting fetches into repositories that already exist locally
	// (see --update-existing).
	UpdateExisting bool

	// OnlyUpdate skips repositories with no local copy (see --only-update).
	OnlyUpdate bool

	// SkipIfResultsExist short-circuits repositories whose artifacts are
	// already present (see --skip-if-results-exist).
	SkipIfResultsExist bool

	// OnlyVerified restricts secret findings to verified credentials
	// (see --only-verified).
	OnlyVerified bool
}

type Runtime struct {
	// Workers is the pipeline worker pool size (see --workers).
	Workers int

	// BackoffBase is the first retry delay (see --backoff-base).
	BackoffBase time.Duration

	// BackoffCap caps the retry delay (see --backoff-cap).
	BackoffCap time.Duration

	// StartStagger delays each worker's first dispatch by a random amount
	// up to this value, smearing the initial connection burst
	// (see --start-stagger).
	StartStagger time.Duration

	// Report writes the run summary JSON to this path in addition to
	// stdout (see --report).
	Report string

	// Debug logs every external command before it runs.
	Debug bool
}

type DTrack struct {
	// BaseURL is the Dependency-Track API root (see --dt-url).
	BaseURL string

	// APIKey authenticates Dependency-Track API calls (see --dt-api-key).
	APIKey string

	// DefaultVersion is the project version recorded on upload when none is
	// derivable (see --default-version).
	DefaultVersion string

	// AutoCreate creates missing projects on upload (see --auto-create).
	AutoCreate bool

	// WaitForProcessing polls each upload token until the server finishes
	// ingesting (see --wait).
	WaitForProcessing bool

	// PolicyName targets the named policy for policy commands
	// (see --policy-name).
	PolicyName string

	// ListFile is the package list consumed by policy conditions
	// (see --list-file).
	ListFile string

	// DryRun logs mutations without performing them (see --dry-run).
	DryRun bool
}

func New() *Config {
	workers := runtime.NumCPU()
	if workers < 1 {
		workers = 1
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	root := filepath.Join(home, "reposweep")
	return &Config{
		Hosting: Hosting{
			Provider:       "azdo",
			HTTPMaxRetries: 4,
		},
		Workspace: Workspace{
			Dir:        filepath.Join(root, "workspace"),
			SBOMDir:    filepath.Join(root, "sbom"),
			SecretsDir: filepath.Join(root, "secrets"),
		},
		Git: Git{
			MaxRetries:       3,
			NetConcurrency:   minInt(workers, 4),
			CloneConcurrency: 1,
			Quiet:            true,
			FallbackEnabled:  true,
			FallbackMode:     "url",
		},
		Sync: Sync{
			UpdateExisting:     true,
			SkipIfResultsExist: true,
		},
		Runtime: Runtime{
			Workers:     workers,
			BackoffBase: 300 * time.Millisecond,
			BackoffCap:  5 * time.Second,
		},
		DTrack: DTrack{
			DefaultVersion: "HEAD",
			AutoCreate:     true,
			PolicyName:     "Package Blocklist",
		},
	}
}

// ApplyEnv overlays environment values onto the config. It runs before flag
// registration so flag defaults shown in help reflect the environment.
// lookup is os.LookupEnv in production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := parseBool(v); err == nil {
				*dst = b
			}
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	millis := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
				*dst = time.Duration(n) * time.Millisecond
			}
		}
	}

	str("AZDO_ORG_URL", &c.Hosting.OrgURL)
	str("AZDO_PROJECT", &c.Hosting.Project)
	str("AZDO_PAT", &c.Hosting.PAT)
	str("AZDO_BEARER_TOKEN", &c.Hosting.BearerToken)
	str("GITHUB_TOKEN", &c.Hosting.GitHubToken)
	integer("HTTP_MAX_RETRIES", &c.Hosting.HTTPMaxRetries)

	str("WORKSPACE_DIR", &c.Workspace.Dir)
	str("SBOM_OUT_DIR", &c.Workspace.SBOMDir)
	str("SECRETS_OUT_DIR", &c.Workspace.SecretsDir)

	if v, ok := lookup("MAX_WORKERS"); ok {
		c.Runtime.Workers = parseWorkers(v, c.Runtime.Workers)
	}
	integer("GIT_MAX_CONCURRENCY", &c.Git.NetConcurrency)
	integer("GIT_CLONE_CONCURRENCY", &c.Git.CloneConcurrency)
	integer("GIT_MAX_RETRIES", &c.Git.MaxRetries)
	millis("BACKOFF_BASE_MS", &c.Runtime.BackoffBase)
	millis("BACKOFF_MAX_MS", &c.Runtime.BackoffCap)
	millis("START_STAGGER_MS", &c.Runtime.StartStagger)

	boolean("GIT_QUIET", &c.Git.Quiet)
	boolean("GIT_PARTIAL_CLONE", &c.Git.PartialClone)
	boolean("GIT_FALLBACK_HTTPS", &c.Git.FallbackEnabled)
	str("GIT_FALLBACK_REMOTE_MODE", &c.Git.FallbackMode)
	str("GIT_SSH_OPTS", &c.Git.SSHOpts)
	str("GIT_SSH_KEY", &c.Git.SSHKey)

	boolean("UPDATE_EXISTING", &c.Sync.UpdateExisting)
	boolean("ONLY_UPDATE", &c.Sync.OnlyUpdate)
	boolean("SKIP_IF_RESULTS_EXIST", &c.Sync.SkipIfResultsExist)
	boolean("TRUFFLEHOG_ONLY_VERIFIED", &c.Sync.OnlyVerified)
	boolean("DEBUG", &c.Runtime.Debug)

	str("DT_URL", &c.DTrack.BaseURL)
	str("DT_API_KEY", &c.DTrack.APIKey)
	str("DT_DEFAULT_VERSION", &c.DTrack.DefaultVersion)
	boolean("DT_AUTOCREATE", &c.DTrack.AutoCreate)
	boolean("WAIT_FOR_PROCESSING", &c.DTrack.WaitForProcessing)
	str("POLICY_NAME", &c.DTrack.PolicyName)
	str("LIST_FILE", &c.DTrack.ListFile)
	boolean("DRY_RUN", &c.DTrack.DryRun)
}

func (c *Config) Validate() error {
	c.Hosting.Provider = normalizeEnumValue(c.Hosting.Provider)
	if c.Hosting.Provider == "" {
		c.Hosting.Provider = "azdo"
	}
	if c.Hosting.Provider != "azdo" && c.Hosting.Provider != "github" {
		return fmt.Errorf("unsupported --provider: %s (must be one of: azdo, github)", c.Hosting.Provider)
	}

	c.Git.FallbackMode = normalizeEnumValue(c.Git.FallbackMode)
	if c.Git.FallbackMode == "" {
		c.Git.FallbackMode = "url"
	}
	if c.Git.FallbackMode != "url" && c.Git.FallbackMode != "swap" {
		return fmt.Errorf("unsupported --fallback-mode: %s (must be one of: url, swap)", c.Git.FallbackMode)
	}

	if c.Runtime.Workers < 1 {
		return errors.New("--workers must be >= 1")
	}
	if c.Git.MaxRetries < 0 {
		return errors.New("--git-retries must be >= 0")
	}
	if c.Hosting.HTTPMaxRetries < 0 {
		return errors.New("HTTP retry count must be >= 0")
	}
	if c.Git.NetConcurrency < 1 {
		return errors.New("--net-concurrency must be >= 1")
	}
	if c.Git.CloneConcurrency < 1 {
		return errors.New("--clone-concurrency must be >= 1")
	}
	if c.Git.CloneConcurrency > c.Git.NetConcurrency {
		return fmt.Errorf("--clone-concurrency (%d) must not exceed --net-concurrency (%d)",
			c.Git.CloneConcurrency, c.Git.NetConcurrency)
	}
	if c.Runtime.BackoffBase <= 0 {
		return errors.New("--backoff-base must be > 0")
	}
	if c.Runtime.BackoffCap < c.Runtime.BackoffBase {
		return errors.New("--backoff-cap must be >= --backoff-base")
	}
	if c.Runtime.StartStagger < 0 {
		return errors.New("--start-stagger must be >= 0")
	}
	return nil
}

// RequireHosting checks the fields the sync command cannot run without.
func (c *Config) RequireHosting() error {
	switch c.Hosting.Provider {
	case "github":
		if c.Hosting.GitHubOrg == "" {
			return errors.New("--github-org is required with --provider github")
		}
		if c.Hosting.GitHubToken == "" {
			return errors.New("a GitHub token is required (set GITHUB_TOKEN or --github-token)")
		}
	default:
		if c.Hosting.OrgURL == "" {
			return errors.New("an organization URL is required (set AZDO_ORG_URL or --org-url)")
		}
		if c.Hosting.Project == "" {
			return errors.New("a project is required (set AZDO_PROJECT or --project)")
		}
		if c.Hosting.PAT == "" && c.Hosting.BearerToken == "" {
			return errors.New("a credential is required (set AZDO_PAT or AZDO_BEARER_TOKEN)")
		}
	}
	return nil
}

// RequireDTrack checks the fields every Dependency-Track command needs.
func (c *Config) RequireDTrack() error {
	if c.DTrack.BaseURL == "" {
		return errors.New("a Dependency-Track URL is required (set DT_URL or --dt-url)")
	}
	if c.DTrack.APIKey == "" {
		return errors.New("a Dependency-Track API key is required (set DT_API_KEY or --dt-api-key)")
	}
	return nil
}

// parseWorkers handles the symbolic worker-count values. "auto", "cpu",
// "max", and "default" all mean the detected CPU count; anything else must
// be a positive integer. Unparseable values keep the current setting.
func parseWorkers(raw string, current int) int {
	switch normalizeEnumValue(raw) {
	case "auto", "cpu", "max", "default":
		n := runtime.NumCPU()
		if n < 1 {
			n = 1
		}
		return n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n > 0 {
		return n
	}
	return current
}

func parseBool(raw string) (bool, error) {
	switch normalizeEnumValue(raw) {
	case "1", "true", "yes", "on", "y":
		return true, nil
	case "0", "false", "no", "off", "n", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", raw)
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
