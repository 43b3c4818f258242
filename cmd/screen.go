package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gmcnicol/pairtrader/pkg/formatters"
)

func init() {
	rootCmd.AddCommand(screenCmd)
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen all eligible markets for cointegrated pairs",
	Long: `Screen fetches candle history for every eligible spot market,
tests all pair combinations for cointegration, persists the accepted
pairs, and prints them.`,
	RunE: runScreen,
}

func runScreen(cmd *cobra.Command, args []string) error {
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rescreen(ctx); err != nil {
		return err
	}

	rows, err := store.Pairs(ctx)
	if err != nil {
		return err
	}
	fmt.Println(formatters.FormatPairsTable(rows))
	return nil
}
