// Package marketdata builds the aligned historical close-price matrix the
// screener consumes.
package marketdata

import (
	"fmt"
	"math"
	"sort"

	"github.com/gmcnicol/pairtrader/internal/models"
)

// Matrix is a close-price table: ascending unique timestamps crossed with
// one column per market. Gaps from differing market calendars are NaN until
// DropGapColumns removes the columns that contain any.
type Matrix struct {
	timestamps []int64
	order      []string
	columns    map[string][]float64
}

// NewMatrix creates an empty matrix.
func NewMatrix() *Matrix {
	return &Matrix{columns: make(map[string][]float64)}
}

// Len returns the number of timestamp rows.
func (m *Matrix) Len() int { return len(m.timestamps) }

// Timestamps returns the row index in ascending order.
func (m *Matrix) Timestamps() []int64 { return m.timestamps }

// Columns returns market names in insertion order. Pair enumeration relies
// on this order being stable.
func (m *Matrix) Columns() []string { return m.order }

// Series returns the close-price column for a market, aligned to
// Timestamps, or nil if absent.
func (m *Matrix) Series(market string) []float64 { return m.columns[market] }

// Merge outer-joins one market's candles into the matrix on timestamp.
// Rows present only in the incoming series are added with NaN for existing
// columns; rows the incoming series lacks get NaN in the new column.
// Duplicate candle timestamps keep the last value.
func (m *Matrix) Merge(market string, candles []models.Candle) error {
	if market == "" {
		return fmt.Errorf("empty market name")
	}
	if _, exists := m.columns[market]; exists {
		return fmt.Errorf("market %s already merged", market)
	}
	if len(candles) == 0 {
		return fmt.Errorf("no candles for %s", market)
	}

	incoming := make(map[int64]float64, len(candles))
	for _, c := range candles {
		incoming[c.Timestamp] = c.Close
	}

	union := make(map[int64]struct{}, len(m.timestamps)+len(incoming))
	for _, ts := range m.timestamps {
		union[ts] = struct{}{}
	}
	for ts := range incoming {
		union[ts] = struct{}{}
	}

	merged := make([]int64, 0, len(union))
	for ts := range union {
		merged = append(merged, ts)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	// Re-index existing columns onto the merged row set.
	old := make(map[int64]int, len(m.timestamps))
	for i, ts := range m.timestamps {
		old[ts] = i
	}
	for name, col := range m.columns {
		next := make([]float64, len(merged))
		for i, ts := range merged {
			if j, ok := old[ts]; ok {
				next[i] = col[j]
			} else {
				next[i] = math.NaN()
			}
		}
		m.columns[name] = next
	}

	col := make([]float64, len(merged))
	for i, ts := range merged {
		if v, ok := incoming[ts]; ok {
			col[i] = v
		} else {
			col[i] = math.NaN()
		}
	}

	m.timestamps = merged
	m.columns[market] = col
	m.order = append(m.order, market)
	return nil
}

// DropGapColumns removes every column containing at least one NaN and
// returns the names of the dropped markets. Partial coverage is not
// tolerated downstream.
func (m *Matrix) DropGapColumns() []string {
	var dropped []string
	kept := m.order[:0]
	for _, name := range m.order {
		if hasNaN(m.columns[name]) {
			delete(m.columns, name)
			dropped = append(dropped, name)
			continue
		}
		kept = append(kept, name)
	}
	m.order = kept
	return dropped
}

func hasNaN(col []float64) bool {
	for _, v := range col {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
