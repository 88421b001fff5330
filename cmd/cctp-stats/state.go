package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/devblac/cctp-stats/internal/cctp"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/storage"
	"github.com/spf13/cobra"
)

var stateLimit int

func init() {
	stateCmd.Flags().IntVar(&stateLimit, "limit", 10, "Number of runs to show")
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show archived fetch runs and chains cut short by failed pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		_, store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), stateLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "state: no runs archived")
			return nil
		}

		for _, r := range runs {
			fmt.Fprintf(out, "run %s  started %s  took %s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "  chain\ttransfers\ttotal_usd\tpages\tfailed\tskipped\tsenders~\tstatus")
			for _, c := range r.Chains {
				status := "complete"
				if c.Truncated {
					status = "TRUNCATED"
				}
				fmt.Fprintf(tw, "  %s\t%d\t$%s\t%d\t%d\t%d\t%d\t%s\n",
					c.Chain, c.Transfers, cctp.FormatUSD(c.TotalUSD), c.Pages, c.FailedPages, c.SkippedEvents, c.UniqueSenders, status)
			}
			tw.Flush()
		}
		return nil
	},
}

func openArchive() (*config.Config, *storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Global.DBPath == "" {
		return nil, nil, errors.New("global.db_path is not configured")
	}
	store, err := storage.Open(cfg.Global.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}
	return cfg, store, nil
}
