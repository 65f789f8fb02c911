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

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Bulk-upload generated SBOMs to Dependency-Track",
	Long: `Upload walks the SBOM output directory and posts every CycloneDX
document (.json or .xml) to Dependency-Track through a bounded worker pool.

Project names and versions come from each document's metadata.component
when present, else from the filename with the default version. One JSON
report line is printed per upload.

Exit codes:
	0 = all uploads accepted
	1 = one or more uploads failed
	3 = fatal error (nothing was uploaded)

Examples:
  export DT_API_KEY="<api key>"
  reposweep upload --dt-url https://dtrack.internal

	# Wait for server-side processing of each upload
	reposweep upload --dt-url https://dtrack.internal --wait
`,
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

		paths, err := dtrack.DiscoverSBOMs(cfg.Workspace.SBOMDir)
		if err != nil {
			log.Errorf("discovering SBOMs under %s: %v", cfg.Workspace.SBOMDir, err)
			os.Exit(3)
		}
		if len(paths) == 0 {
			log.Errorf("no SBOMs found under %s", cfg.Workspace.SBOMDir)
			os.Exit(3)
		}
		log.Infof("Uploading %d SBOMs to %s with %d workers", len(paths), cfg.DTrack.BaseURL, cfg.Runtime.Workers)

		uploader := &dtrack.Uploader{
			Client:         client,
			Workers:        cfg.Runtime.Workers,
			DefaultVersion: cfg.DTrack.DefaultVersion,
			AutoCreate:     cfg.DTrack.AutoCreate,
			Wait:           cfg.DTrack.WaitForProcessing,
			Out:            os.Stdout,
		}
		failures := uploader.Run(context.Background(), paths)
		if failures > 0 {
			log.Errorf("%d upload(s) failed", failures)
			os.Exit(1)
		}
		log.Okf("All %d uploads accepted", len(paths))
	},
}

func newDTrackClient(log *output.Console) (*dtrack.Client, error) {
	client, err := dtrack.NewClient(cfg.DTrack.BaseURL, cfg.DTrack.APIKey, log)
	if err != nil {
		return nil, err
	}
	client.DryRun = cfg.DTrack.DryRun
	client.MaxRetries = cfg.Hosting.HTTPMaxRetries
	if cfg.DTrack.DryRun {
		log.Warnf("DRY RUN MODE - no changes will be made")
	}
	return client, nil
}

func addDTrackFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&cfg.DTrack.BaseURL, flags.FlagDTURL, cfg.DTrack.BaseURL, "Dependency-Track API root (env DT_URL)")
	cmd.Flags().StringVar(&cfg.DTrack.APIKey, flags.FlagDTAPIKey, cfg.DTrack.APIKey, "Dependency-Track API key (env DT_API_KEY)")
	cmd.Flags().BoolVar(&cfg.DTrack.DryRun, flags.FlagDryRun, cfg.DTrack.DryRun, "Log mutations without performing them (env DRY_RUN)")
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	addDTrackFlags(uploadCmd)
	uploadCmd.Flags().StringVar(&cfg.Workspace.SBOMDir, flags.FlagSBOMDir, cfg.Workspace.SBOMDir, "Directory to scan for SBOMs (env SBOM_OUT_DIR)")
	uploadCmd.Flags().StringVar(&cfg.DTrack.DefaultVersion, flags.FlagDefaultVersion, cfg.DTrack.DefaultVersion, "Project version when the SBOM names none (env DT_DEFAULT_VERSION)")
	uploadCmd.Flags().BoolVar(&cfg.DTrack.AutoCreate, flags.FlagAutoCreate, cfg.DTrack.AutoCreate, "Create missing projects on upload (env DT_AUTOCREATE)")
	uploadCmd.Flags().BoolVar(&cfg.DTrack.WaitForProcessing, flags.FlagWait, cfg.DTrack.WaitForProcessing, "Poll each upload until the server finishes processing (env WAIT_FOR_PROCESSING)")
	uploadCmd.Flags().IntVar(&cfg.Runtime.Workers, flags.FlagWorkers, cfg.Runtime.Workers, "Upload worker pool size (env MAX_WORKERS)")
}
