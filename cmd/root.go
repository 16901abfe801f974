package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/statement-flow/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "statement-flow",
	Short:        "Financial statement to verified flow diagram pipeline",
	Long:         "Extracts money flows from financial statement PDFs with Claude, renders them as a Sankey diagram with Gemini, and verifies the diagram against the extracted values.",
	SilenceUsage: true,
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
