package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposweep/internal/dtrack"
	"reposweep/internal/flags"
	"reposweep/internal/output"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage Dependency-Track blocklist policies",
	Long: `Policy commands maintain a Dependency-Track policy whose conditions
match blocklisted package URLs. Package lists are plain text (one
name@version per line, "#" comments) or YAML with a top-level
"packages" list. Versions ending in ".x" match every patch release.`,
}

var policyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the blocklist policy and add a condition per package",
	Long: `Create ensures the named policy exists (operator ANY, violation state
FAIL, applied globally) and adds one package-URL condition for every
entry in the package list.

Examples:
	reposweep policy create --list-file blocklist.txt
	reposweep policy create --list-file packages.yaml --policy-name "NPM Blocklist"
`,
	Run: func(cmd *cobra.Command, args []string) {
		log := output.NewConsole(nil, nil)
		client, entries := policyPreflight(log)
		ctx := context.Background()

		policy, err := client.EnsurePolicy(ctx, cfg.DTrack.PolicyName)
		if err != nil {
			log.Errorf("ensuring policy %q: %v", cfg.DTrack.PolicyName, err)
			os.Exit(3)
		}
		log.Okf("Policy %q ready (uuid %s)", policy.Name, policy.UUID)

		added, failed := addConditions(ctx, client, policy.UUID, entries, log)
		log.Infof("Done: %d conditions added, %d failed", added, failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var policyConditionsCmd = &cobra.Command{
	Use:   "conditions",
	Short: "Add package list conditions to an existing policy",
	Long: `Conditions adds one package-URL condition per list entry to a policy
that already exists. Unlike "policy create" it never creates the policy,
so a typo in --policy-name fails instead of spawning an empty policy.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := output.NewConsole(nil, nil)
		client, entries := policyPreflight(log)
		ctx := context.Background()

		policy, err := client.FindPolicy(ctx, cfg.DTrack.PolicyName)
		if err != nil {
			log.Errorf("looking up policy %q: %v", cfg.DTrack.PolicyName, err)
			os.Exit(3)
		}
		if policy == nil {
			log.Errorf("policy %q not found; run \"reposweep policy create\" first", cfg.DTrack.PolicyName)
			os.Exit(3)
		}

		added, failed := addConditions(ctx, client, policy.UUID, entries, log)
		log.Infof("Done: %d conditions added, %d failed", added, failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var policyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Deduplicate and normalize a policy's conditions",
	Long: `Cleanup rewrites a policy's condition set: URL-encoded scopes are
decoded, duplicate values collapse to one condition, and MATCHES
conditions whose value contains no regex metacharacters are downgraded
to exact IS matches. With --dry-run it only reports what would change.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := output.NewConsole(nil, nil)

		if err := cfg.RequireDTrack(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(3)
		}
		client, err := newDTrackClient(log)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(3)
		}
		ctx := context.Background()

		policy, err := client.FindPolicy(ctx, cfg.DTrack.PolicyName)
		if err != nil {
			log.Errorf("looking up policy %q: %v", cfg.DTrack.PolicyName, err)
			os.Exit(3)
		}
		if policy == nil {
			log.Errorf("policy %q not found", cfg.DTrack.PolicyName)
			os.Exit(3)
		}

		cleaned := client.CleanConditions(policy.PolicyConditions)
		log.Infof("Policy %q: %d conditions, %d after cleanup", policy.Name, len(policy.PolicyConditions), len(cleaned))
		if cfg.DTrack.DryRun {
			log.Warnf("DRY RUN: would delete %d and re-add %d conditions", len(policy.PolicyConditions), len(cleaned))
			return
		}

		deleted, added := client.ReplaceConditions(ctx, policy, cleaned)
		log.Okf("Replaced conditions: %d deleted, %d added", deleted, added)
	},
}

// policyPreflight validates config, builds the client, and loads the package
// list shared by the create and conditions subcommands.
func policyPreflight(log *output.Console) (*dtrack.Client, []dtrack.PackageEntry) {
	if err := cfg.RequireDTrack(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(3)
	}
	if cfg.DTrack.ListFile == "" {
		fmt.Fprintln(os.Stderr, "Error: a package list is required (set LIST_FILE or --list-file)")
		os.Exit(3)
	}

	client, err := newDTrackClient(log)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(3)
	}

	entries, skipped, err := dtrack.LoadPackageList(cfg.DTrack.ListFile)
	if err != nil {
		log.Errorf("loading %s: %v", cfg.DTrack.ListFile, err)
		os.Exit(3)
	}
	if len(entries) == 0 {
		log.Errorf("no usable package entries in %s (%d lines skipped)", cfg.DTrack.ListFile, skipped)
		os.Exit(3)
	}
	log.Infof("Loaded %d package entries from %s (%d lines skipped)", len(entries), cfg.DTrack.ListFile, skipped)
	for i, e := range entries {
		if i >= 5 {
			log.Infof("  ... and %d more", len(entries)-5)
			break
		}
		log.Infof("  %s@%s -> %s", e.Name, e.Version, e.PURL)
	}
	return client, entries
}

func addConditions(ctx context.Context, client *dtrack.Client, policyUUID string, entries []dtrack.PackageEntry, log *output.Console) (added, failed int) {
	for i, e := range entries {
		if err := client.AddCondition(ctx, policyUUID, e.Condition()); err != nil {
			log.Errorf("condition for %s@%s: %v", e.Name, e.Version, err)
			failed++
			continue
		}
		added++
		if added <= 10 || added%100 == 0 {
			log.Infof("Added condition %d/%d (%s)", i+1, len(entries), e.PURL)
		}
	}
	return added, failed
}

func addPolicyListFlags(cmd *cobra.Command) {
	addDTrackFlags(cmd)
	cmd.Flags().StringVar(&cfg.DTrack.PolicyName, flags.FlagPolicyName, cfg.DTrack.PolicyName, "Policy to target (env POLICY_NAME)")
	cmd.Flags().StringVar(&cfg.DTrack.ListFile, flags.FlagListFile, cfg.DTrack.ListFile, "Package list file, text or YAML (env LIST_FILE)")
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCreateCmd)
	policyCmd.AddCommand(policyConditionsCmd)
	policyCmd.AddCommand(policyCleanupCmd)

	addPolicyListFlags(policyCreateCmd)
	addPolicyListFlags(policyConditionsCmd)

	addDTrackFlags(policyCleanupCmd)
	policyCleanupCmd.Flags().StringVar(&cfg.DTrack.PolicyName, flags.FlagPolicyName, cfg.DTrack.PolicyName, "Policy to target (env POLICY_NAME)")
}
