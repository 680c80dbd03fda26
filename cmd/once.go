package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var onceRows int

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Process a few rows with the first session and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("once"); err != nil {
			return err
		}
		if onceRows < 1 {
			return eris.New("--rows must be at least 1")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, cfg, onceRows)
		if err != nil {
			return err
		}
		defer p.close()

		sum, err := p.sched.RunOnce(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("single run complete",
			zap.String("session", sum.Identity),
			zap.Int("processed", sum.Processed),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
		)
		return nil
	},
}

func init() {
	onceCmd.Flags().IntVar(&onceRows, "rows", 1, "maximum rows to process")
	rootCmd.AddCommand(onceCmd)
}
