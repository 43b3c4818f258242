package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmcnicol/pairtrader/internal/ledger"
	"github.com/gmcnicol/pairtrader/pkg/formatters"
)

func init() {
	positionsCmd.Flags().Bool("open", false, "show only open positions")
	rootCmd.AddCommand(positionsCmd)
}

var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Show the position ledger",
	RunE:  runPositions,
}

func runPositions(cmd *cobra.Command, args []string) error {
	defer closeStore()

	ctx := context.Background()
	openOnly, _ := cmd.Flags().GetBool("open")

	var err error
	var positions []ledger.Position
	if openOnly {
		positions, err = store.OpenPositions(ctx)
	} else {
		positions, err = store.Positions(ctx)
	}
	if err != nil {
		return err
	}

	fmt.Println(formatters.FormatPositionsTable(positions))
	return nil
}
