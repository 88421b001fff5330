package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devblac/cctp-stats/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const sampleHeader = `# cctp-stats configuration.
# Every value below is a compiled-in default; delete what you do not override.
# ${VAR} references are expanded from the environment and a .env file next to this one.
`

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample config file holding the compiled-in defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !initForce {
			return fmt.Errorf("init: %s already exists (use --force)", cfgPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat config: %w", err)
		}

		body, err := yaml.Marshal(config.Default())
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		if dir := filepath.Dir(cfgPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create dir: %w", err)
			}
		}
		if err := os.WriteFile(cfgPath, append([]byte(sampleHeader), body...), 0o644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "init: wrote %s\n", cfgPath)
		return nil
	},
}
