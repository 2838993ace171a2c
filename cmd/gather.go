package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/dirgather/internal/config"
	"github.com/JakeFAU/dirgather/internal/pipeline"
)

// flagKeys maps gather flags onto configuration keys.
var flagKeys = map[string]string{
	"storage-url":       "gather.storage_url",
	"directory-url":     "gather.directory_url",
	"data-url":          "gather.data_url",
	"dataset-id":        "gather.dataset_id",
	"graph-id":          "gather.graph_id",
	"work-dir":          "gather.work_dir",
	"calc-edges":        "gather.calc_edges",
	"share-enum":        "gather.share_enum",
	"share-depth":       "gather.share_depth",
	"share-categories":  "gather.share_categories",
	"directory-workers": "gather.directory_workers",
	"data-workers":      "gather.data_workers",
	"edge-workers":      "gather.edge_workers",
	"dns":               "gather.dns_server",
	"status-addr":       "status.addr",
	"log-level":         "logging.level",
}

// newGatherCmd creates the 'gather' subcommand.
func newGatherCmd(v *viper.Viper, cfgFile *string) *cobra.Command {
	var noProgress bool
	cmd := &cobra.Command{
		Use:   "gather",
		Short: "Runs one gathering pass",
		Long: `Runs the configured phases in order and stops at the first failure.
Supplying --dataset-id resumes a previous run and skips directory enumeration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noProgress {
				v.Set("gather.show_progress", false)
			}
			cfg, err := config.LoadFrom(v, *cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ok, err := runGather(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("gather failed: %w", err)
			}
			if !ok {
				return errors.New("gather failed")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("storage-url", "", "storage endpoint results are written to")
	f.String("directory-url", "", "directory service connection string")
	f.String("data-url", "", "data source connection string")
	f.String("dataset-id", "", "resume into an existing dataset and skip directory enumeration")
	f.String("graph-id", "", "graph id to use when resuming")
	f.String("work-dir", ".", "working directory for staging files")
	f.Bool("calc-edges", true, "compute graph edges after enumeration")
	f.Bool("share-enum", false, "enumerate share contents")
	f.Int("share-depth", pipeline.DefaultShareDepth, "share content enumeration depth")
	f.StringSlice("share-categories", []string{pipeline.ShareCategoryAll},
		"share categories to gather (all, shares, sessions, localgroups, finger)")
	f.Int("directory-workers", pipeline.DefaultDirectoryWorkers, "directory enumeration workers")
	f.Int("data-workers", pipeline.DefaultDataWorkers, "data enumeration workers")
	f.Int("edge-workers", 0, "shared edge computation pool size (0 uses the CPU count)")
	f.String("dns", "", "DNS server for reverse lookups (defaults to the directory host)")
	f.String("status-addr", "", "serve status and metrics on host:port")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.BoolVar(&noProgress, "no-progress", false, "disable the progress display")

	for name, key := range flagKeys {
		// Lookup cannot fail: every name above is registered.
		_ = v.BindPFlag(key, f.Lookup(name))
	}
	return cmd
}
