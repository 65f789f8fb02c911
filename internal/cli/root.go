package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposweep/internal/config"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// cfg is populated from the environment before flag registration, so flag
// defaults shown in --help reflect the effective configuration.
var cfg = func() *config.Config {
	c := config.New()
	c.ApplyEnv(os.LookupEnv)
	return c
}()

var rootCmd = &cobra.Command{
	Use:   "reposweep",
	Short: "Bulk-sync repositories and run supply-chain security scans",
	Long: `Reposweep clones or updates every repository in a project, generates a
CycloneDX SBOM and a secret-scan report per repository, and can push the
SBOMs into Dependency-Track along with blocklist policy management.

Examples:
	# Sync and scan every repository in an Azure DevOps project
	reposweep sync --org-url https://dev.azure.com/contoso --project Platform

	# Bulk-upload generated SBOMs to Dependency-Track
	reposweep upload --dt-url https://dtrack.internal --dt-api-key "$DT_API_KEY"

	# Create a blocklist policy from a package list
	reposweep policy create --list-file blocklist.txt

	# Print build info
	reposweep version

Configuration:
	Every flag can also be set through its environment variable (AZDO_ORG_URL,
	AZDO_PROJECT, AZDO_PAT, DT_URL, DT_API_KEY, and friends). Flags win over
	the environment.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&cfg.Runtime.Debug, "debug", cfg.Runtime.Debug, "Log every external command before it runs")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
