package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gmcnicol/pairtrader/pkg/formatters"
)

func init() {
	rootCmd.AddCommand(pairsCmd)
}

var pairsCmd = &cobra.Command{
	Use:   "pairs",
	Short: "Show the cached cointegrated pairs",
	RunE:  runPairs,
}

func runPairs(cmd *cobra.Command, args []string) error {
	defer closeStore()

	rows, err := store.Pairs(context.Background())
	if err != nil {
		return err
	}
	fmt.Println(formatters.FormatPairsTable(rows))
	return nil
}
