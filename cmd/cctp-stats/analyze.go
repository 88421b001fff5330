package main

import (
	"fmt"

	"github.com/devblac/cctp-stats/internal/analysis"
	"github.com/devblac/cctp-stats/internal/charts"
	"github.com/devblac/cctp-stats/internal/config"
	"github.com/spf13/cobra"
)

var (
	analyzeTransfers string
	analyzeGas       string
	analyzeOutDir    string
	analyzeWhere     []string
	analyzeNoCharts  bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTransfers, "transfers", "", "Transfers CSV (default <output_dir>/"+config.TransfersFile+")")
	analyzeCmd.Flags().StringVar(&analyzeGas, "gas", "", "Gas fee CSV (default <output_dir>/"+config.GasFile+")")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out-dir", "", "Directory for reports (default global.output_dir)")
	analyzeCmd.Flags().StringArrayVar(&analyzeWhere, "where", nil, `Keep only transfers matching the expression, e.g. "chain in ETH,BASE" (repeatable)`)
	analyzeCmd.Flags().BoolVar(&analyzeNoCharts, "no-charts", false, "Skip the chart image")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze fetched transfers and export daily, user and summary reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		transfers := analyzeTransfers
		if transfers == "" {
			transfers = cfg.OutputPath(config.TransfersFile)
		}
		gas := analyzeGas
		if gas == "" {
			gas = cfg.OutputPath(config.GasFile)
		}
		outDir := analyzeOutDir
		if outDir == "" {
			outDir = cfg.Global.OutputDir
		}

		filter, err := analysis.CompileFilter(analyzeWhere)
		if err != nil {
			return fmt.Errorf("compile --where: %w", err)
		}

		opts := []analysis.Option{
			analysis.WithOutput(cmd.OutOrStdout()),
			analysis.WithLogger(log),
		}
		if analyzeNoCharts {
			opts = append(opts, analysis.WithCharts(charts.Disabled{}))
		}

		a, err := analysis.Load(transfers, gas, filter, opts...)
		if err != nil {
			return err
		}
		if _, err := a.RunComplete(outDir); err != nil {
			return fmt.Errorf("analyze: %w", err)
		}
		return nil
	},
}
