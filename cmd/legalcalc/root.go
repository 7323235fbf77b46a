/*
legalcalc - Command-line entry point of the calculation engine

COMMANDS:
  serve                         Start the HTTP API
  severance --facts FILE        Severance from labor facts
  arrears --facts FILE          Arrears from benefit facts (detector included)
  arrears --amount --start ...  Arrears from an explicit input
  reference minimum-wage        Minimum wage in force at --date
  reference ceiling             INSS benefit ceiling in force at --date
  reference append              Persist a new breakpoint

  --facts accepts the engine's JSON facts, or with --extracted the raw answer
  of the extraction step (fenced JSON with Portuguese keys).

CONFIGURATION:
  config.yaml in the working directory and LEGALCALC_* environment variables,
  see config/config.go. Results are printed as indented JSON.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM serve stops accepting connections, waits up to 30s for
  active requests and closes the store.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jurisflow/calc-engine/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "legalcalc",
	Short: "Brazilian severance and social-security arrears calculator",
	Long:  "Computes labor-termination severance and corrected social-security arrears from structured case facts, with an auditable trace of every step.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
