// Package formatters renders screening and ledger output for the CLI.
package formatters

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/gmcnicol/pairtrader/internal/ledger"
)

var (
	ColorGreen = text.FgGreen
	ColorRed   = text.FgRed
	ColorGray  = text.FgHiBlack
)

// FormatPairsTable creates a table of cointegrated pair candidates.
func FormatPairsTable(pairs []ledger.CointegratedPair) string {
	if len(pairs) == 0 {
		return "No cointegrated pairs cached"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"Pair", "Hedge Ratio", "Intercept", "Half-Life (bars)", "Screened"})

	for _, p := range pairs {
		t.AppendRow(table.Row{
			p.Pair().Name(),
			fmt.Sprintf("%.4f", p.HedgeRatio),
			fmt.Sprintf("%.6f", p.Intercept),
			fmt.Sprintf("%.1f", p.HalfLife),
			FormatTimestamp(p.CreatedAt),
		})
	}

	return t.Render()
}

// FormatPositionsTable creates a table of ledger positions, open and closed.
func FormatPositionsTable(positions []ledger.Position) string {
	if len(positions) == 0 {
		return "No positions recorded"
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{
		"ID", "Triple", "Side", "Opened", "Amount", "Closed", "Status"})

	open := 0
	for _, pos := range positions {
		status := ColorRed.Sprint("CLOSED")
		closedAt := ""
		if pos.Open() {
			status = ColorGreen.Sprint("OPEN")
			open++
		} else {
			closedAt = FormatTimestamp(*pos.CloseTimestamp)
		}

		t.AppendRow(table.Row{
			pos.ID,
			pos.Triple().String(),
			pos.Side,
			FormatTimestamp(pos.OpenTimestamp),
			pos.OpenPosition.String(),
			closedAt,
			status,
		})
	}

	t.AppendSeparator()
	t.AppendRow(table.Row{
		"", fmt.Sprintf("%d total, %d open", len(positions), open), "", "", "", "", ""})

	return t.Render()
}

// FormatTimestamp formats a timestamp for display.
func FormatTimestamp(ts time.Time) string {
	return ts.Local().Format("2006-01-02 15:04:05")
}
