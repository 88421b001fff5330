package main

import (
	"fmt"

	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/dataset"
	"github.com/spf13/cobra"
)

var (
	exportRunID  string
	exportOutDir string
)

func init() {
	exportCmd.Flags().StringVar(&exportRunID, "run", "", "Run id to export (default latest)")
	exportCmd.Flags().StringVar(&exportOutDir, "out-dir", "", "Directory for the CSVs (default global.output_dir)")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an archived run's records back out as the transfer and gas CSVs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		cfg, store, err := openArchive()
		if err != nil {
			return err
		}
		defer store.Close()

		runID := exportRunID
		if runID == "" {
			if runID, err = store.LatestRunID(ctx); err != nil {
				return err
			}
		}
		data, err := store.LoadRun(ctx, runID)
		if err != nil {
			return err
		}

		if exportOutDir != "" {
			cfg.Global.OutputDir = exportOutDir
		}
		transfersPath := cfg.OutputPath(config.TransfersFile)
		gasPath := cfg.OutputPath(config.GasFile)

		if _, err := dataset.WriteTransfers(transfersPath, data.Transfers); err != nil {
			return fmt.Errorf("write transfers: %w", err)
		}
		if _, err := dataset.WriteGasFees(gasPath, data.GasFees); err != nil {
			return fmt.Errorf("write gas fees: %w", err)
		}
		fmt.Fprintf(out, "export: run %s, %d transfers, %d gas records -> %s, %s\n",
			runID, len(data.Transfers), len(data.GasFees), transfersPath, gasPath)
		return nil
	},
}
