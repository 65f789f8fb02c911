package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposweep/internal/output"
)

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze [pattern]",
	Short: "Re-run policy evaluation across Dependency-Track projects",
	Long: `Reanalyze triggers a findings analysis and a metrics refresh for every
project, or for the projects whose name contains the given pattern.
Useful after new blocklist conditions land, since Dependency-Track only
evaluates policies against future uploads on its own.

Examples:
	reposweep reanalyze
	reposweep reanalyze payments-
`,
	Args: cobra.MaximumNArgs(1),
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

		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}
		ctx := context.Background()

		projects, err := client.ListProjects(ctx, pattern)
		if err != nil {
			log.Errorf("listing projects: %v", err)
			os.Exit(3)
		}
		if len(projects) == 0 {
			log.Errorf("no projects matched %q", pattern)
			os.Exit(3)
		}

		var failed int
		for _, p := range projects {
			if _, err := client.TriggerReanalysis(ctx, p.UUID); err != nil {
				log.Errorf("%s %s: analysis: %v", p.Name, p.Version, err)
				failed++
				continue
			}
			if err := client.RefreshMetrics(ctx, p.UUID); err != nil {
				log.Warnf("%s %s: metrics refresh: %v", p.Name, p.Version, err)
			}
			log.Okf("%s %s: analysis triggered", p.Name, p.Version)
		}

		log.Infof("Done: %d projects, %d failed", len(projects), failed)
		if failed > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(reanalyzeCmd)
	addDTrackFlags(reanalyzeCmd)
}
