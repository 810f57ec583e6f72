package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/diligence-ledger/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "diligence-ledger",
	Short: "Fact reconciliation and alert resolution ledger",
	Long:  "Records facts extracted about a deal by independent AI agents, reconciles contradictions through human review, consolidates cross-agent red flags, and recomputes deal scores as alerts are resolved.",
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
