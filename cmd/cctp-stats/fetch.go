package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/dataset"
	"github.com/devblac/cctp-stats/internal/fetcher"
	"github.com/devblac/cctp-stats/internal/health"
	"github.com/devblac/cctp-stats/internal/metrics"
	"github.com/devblac/cctp-stats/internal/notify"
	"github.com/devblac/cctp-stats/internal/storage"
	"github.com/devblac/cctp-stats/internal/subgraph"
	"github.com/spf13/cobra"
)

var (
	fetchOutDir  string
	fetchChains  []string
	fetchDryRun  bool
	fetchHealth  string
	fetchMetrics string
)

func init() {
	fetchCmd.Flags().StringVar(&fetchOutDir, "out-dir", "", "Directory for the transfer and gas CSVs (default global.output_dir)")
	fetchCmd.Flags().StringSliceVar(&fetchChains, "chain", nil, "Fetch only these chains (repeatable)")
	fetchCmd.Flags().BoolVar(&fetchDryRun, "dry-run", false, "Fetch and summarize without writing files, archive or notifications")
	fetchCmd.Flags().StringVar(&fetchHealth, "health", "", "Health check HTTP address (e.g., :8080)")
	fetchCmd.Flags().StringVar(&fetchMetrics, "metrics", "", "Metrics HTTP address (e.g., :9090)")
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Page through every chain's subgraph and write the transfer and gas CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)
		if fetchOutDir != "" {
			cfg.Global.OutputDir = fetchOutDir
		}

		chains, err := cfg.SelectChains(fetchChains)
		if err != nil {
			return err
		}

		var store *storage.Store
		if cfg.Global.DBPath != "" && !fetchDryRun {
			store, err = storage.Open(cfg.Global.DBPath)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()
		}

		var mtr *metrics.Metrics
		if fetchMetrics != "" {
			mtr = metrics.Init()
			srv := serveMetrics(fetchMetrics, log)
			log.Info("metrics enabled", "addr", fetchMetrics)
			defer shutdown(srv)
		}

		if fetchHealth != "" {
			checker := health.NewSubgraphChecker()
			for _, ch := range chains {
				checker.Add(ch.Name, subgraph.New(ch.Endpoint, cfg.Global.RequestTimeout))
			}
			hc := health.Checker{Subgraphs: checker}
			if store != nil {
				hc.DB = store.Ping
			}
			srv := health.Serve(fetchHealth, hc)
			log.Info("health check enabled", "addr", fetchHealth)
			defer shutdown(srv)
		}

		run := storage.NewRun(time.Now())
		f := fetcher.New(
			fetcher.SubgraphSources(cfg.Global.RequestTimeout),
			fetcher.Options{PageSize: cfg.Global.PageSize, PageDelay: cfg.Global.PageDelay},
			log,
			mtr,
		)
		log.Info("fetch started", "run", run.ID, "chains", len(chains), "page_size", cfg.Global.PageSize)
		res, err := f.Run(ctx, chains)
		if err != nil {
			return fmt.Errorf("fetch: %w", err)
		}
		run.FinishedAt = time.Now()
		run.Chains = archiveChains(res)

		fetcher.WriteSummary(out, res)
		if truncated := res.Truncated(); len(truncated) > 0 {
			log.Warn("some chains stopped on a failed page", "chains", truncated)
		}

		if fetchDryRun {
			fmt.Fprintln(out, "dry run: no files written")
			return nil
		}

		if err := writeDataset(cmd, cfg, res, log); err != nil {
			return err
		}

		if store != nil {
			if err := store.SaveRun(ctx, run, res.Dataset); err != nil {
				return fmt.Errorf("archive run: %w", err)
			}
			log.Info("run archived", "run", run.ID, "db", cfg.Global.DBPath)
		}

		return notifySinks(ctx, cfg, store, runSummary(run, res), log)
	},
}

func writeDataset(cmd *cobra.Command, cfg *config.Config, res fetcher.Result, log *slog.Logger) error {
	out := cmd.OutOrStdout()

	path := cfg.OutputPath(config.TransfersFile)
	wrote, err := dataset.WriteTransfers(path, res.Dataset.Transfers)
	if err != nil {
		return fmt.Errorf("write transfers: %w", err)
	}
	if wrote {
		fmt.Fprintf(out, "Saved transfers: %s\n", path)
	} else {
		log.Warn("no transfers fetched, transfers file not written")
	}

	path = cfg.OutputPath(config.GasFile)
	wrote, err = dataset.WriteGasFees(path, res.Dataset.GasFees)
	if err != nil {
		return fmt.Errorf("write gas fees: %w", err)
	}
	if wrote {
		fmt.Fprintf(out, "Saved gas fees: %s\n", path)
	} else {
		log.Warn("no gas fee records, gas file not written")
	}
	return nil
}

func archiveChains(res fetcher.Result) []storage.ChainRun {
	out := make([]storage.ChainRun, 0, len(res.Chains))
	for _, c := range res.Chains {
		out = append(out, storage.ChainRun{
			Chain:         c.Chain,
			NativeSymbol:  c.NativeSymbol,
			Transfers:     c.Transfers(),
			Pages:         c.Pages,
			FailedPages:   c.FailedPages,
			SkippedEvents: c.SkippedEvents,
			Truncated:     c.Truncated,
			TotalUSD:      c.TotalUSD,
			TotalFee:      c.TotalFee,
			TotalGasFee:   c.TotalGasFee,
			UniqueSenders: c.UniqueSenders,
		})
	}
	return out
}

func runSummary(run storage.Run, res fetcher.Result) notify.RunSummary {
	s := notify.RunSummary{
		RunID:      run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Transfers:  len(res.Dataset.Transfers),
		TotalUSD:   res.TotalUSD(),
	}
	for _, c := range res.Chains {
		s.Chains = append(s.Chains, notify.ChainSummary{
			Chain:        c.Chain,
			NativeSymbol: c.NativeSymbol,
			Transfers:    c.Transfers(),
			TotalUSD:     c.TotalUSD,
			TotalFee:     c.TotalFee.Add(c.TotalGasFee),
			Truncated:    c.Truncated,
		})
	}
	return s
}

// notifySinks delivers the run summary to every sink; failures are logged, not fatal.
func notifySinks(ctx context.Context, cfg *config.Config, store *storage.Store, summary notify.RunSummary, log *slog.Logger) error {
	senders, err := notify.FromConfig(cfg.Sinks)
	if err != nil {
		return err
	}
	for _, s := range cfg.Sinks {
		sender, ok := senders[s.ID]
		if !ok {
			continue
		}
		status := "ok"
		code, err := sender.Send(ctx, summary)
		if err != nil {
			status = "error"
			log.Warn("sink delivery failed", "sink", s.ID, "err", err)
		}
		if store != nil {
			if err := store.InsertDelivery(ctx, storage.Delivery{
				RunID: summary.RunID, SinkID: s.ID, Status: status, ResponseCode: code, CreatedAt: time.Now(),
			}); err != nil {
				log.Warn("record delivery failed", "sink", s.ID, "err", err)
			}
		}
	}
	return nil
}

func serveMetrics(addr string, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 3 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
