package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"powershare/internal/app"
	"powershare/internal/config"
	"powershare/libs/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the rental service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		logger, err := logging.NewLogger("rental-service")
		if err != nil {
			return err
		}
		defer logger.Sync()

		application, err := app.New(cfg, logger)
		if err != nil {
			logger.Error("failed to init application", zap.Error(err))
			return err
		}
		defer application.Close()

		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("application stopped with error", zap.Error(err))
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
