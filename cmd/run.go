package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rotate through all sessions forever, enriching incomplete rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, cfg, 0)
		if err != nil {
			return err
		}
		defer p.close()

		zap.L().Info("starting session rotation",
			zap.String("credentials", cfg.Credentials.Path),
			zap.String("sheet_driver", cfg.Sheet.Driver),
		)

		err = p.sched.Run(ctx)
		if errors.Is(err, context.Canceled) {
			zap.L().Info("shutting down")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
