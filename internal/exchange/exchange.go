// Package exchange defines the venue connectivity consumed by the screening
// and trading components, plus the Binance spot implementation.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gmcnicol/pairtrader/internal/models"
)

// Side is a market order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Exchange is the connectivity collaborator. Implementations are expected
// to be safe for sequential use from a single goroutine; callers pace
// repeated candle fetches according to RateLimit.
type Exchange interface {
	// LoadMarkets returns the venue's full market catalog.
	LoadMarkets(ctx context.Context) ([]models.Market, error)

	// FetchOHLCV returns candles for a market from the given UTC
	// millisecond timestamp, most recent last, capped at limit.
	FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]models.Candle, error)

	// MarketInfo resolves base and quote currency for a symbol.
	MarketInfo(ctx context.Context, symbol string) (models.Market, error)

	// RateLimit is the venue's advertised minimum delay between requests.
	RateLimit() time.Duration

	// CreateMarketOrder places a market order for the given quantity.
	CreateMarketOrder(ctx context.Context, symbol string, side Side, quantity decimal.Decimal) error

	// CancelAllOrders cancels every open order on a symbol.
	CancelAllOrders(ctx context.Context, symbol string) error

	// FetchBalance returns the free balance of one asset.
	FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}
