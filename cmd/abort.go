package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(abortCmd)
}

var abortCmd = &cobra.Command{
	Use:   "abort",
	Short: "Cancel open orders and flatten every open position",
	RunE:  runAbort,
}

func runAbort(cmd *cobra.Command, args []string) error {
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.AbortAll(ctx); err != nil {
		return fmt.Errorf("abort: %w", err)
	}

	if err := notifier.Send(ctx, "pairtrader: all positions flattened"); err != nil {
		logger.Warn("Abort notification failed", zap.Error(err))
	}
	return nil
}
