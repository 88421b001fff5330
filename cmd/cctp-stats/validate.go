package main

import (
	"fmt"

	"github.com/devblac/cctp-stats/internal/config"
	"github.com/devblac/cctp-stats/internal/subgraph"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config and ping every chain's subgraph",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		fmt.Fprintf(out, "config OK (version %d, %d chains)\n", cfg.Version, len(cfg.Chains))

		failures := 0
		for _, ch := range cfg.Chains {
			block, err := subgraph.New(ch.Endpoint, cfg.Global.RequestTimeout).Ping(cmd.Context())
			if err != nil {
				failures++
				fmt.Fprintf(out, "- chain %s: ERROR %v\n", ch.Name, err)
				continue
			}
			fmt.Fprintf(out, "- chain %s: indexed to block %d OK\n", ch.Name, block)
		}

		if failures > 0 {
			return fmt.Errorf("validate: %d chain(s) failed connectivity", failures)
		}

		fmt.Fprintln(out, "validate: success")
		return nil
	},
}
