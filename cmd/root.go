package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/appraisal-precheck/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "appraisal-precheck",
	Short: "Decision readiness engine for vehicle appraisal pre-screening",
	Long:  "Extracts structured data from appraisal photos, scores evidence completeness, scans for inconsistencies, and routes each appraisal to ready, escalate, or needs-more-evidence.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
