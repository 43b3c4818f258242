package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmcnicol/pairtrader/internal/config"
	"github.com/gmcnicol/pairtrader/internal/exchange"
)

// lookbackPeriods is how many candles of history the matrix covers, as a
// multiple of the configured resolution.
const lookbackPeriods = 400

// candleFetchLimit caps a single candle request.
const candleFetchLimit = 1000

// ErrNoMarkets indicates the venue catalog yielded no eligible markets.
var ErrNoMarkets = errors.New("no eligible markets")

// Builder assembles the historical price matrix for all eligible markets.
// Fetches are deliberately sequential, paced by the venue's rate limit;
// do not parallelize them.
type Builder struct {
	ex      exchange.Exchange
	cfg     *config.Config
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// NewBuilder creates a Builder paced at the exchange's advertised rate
// limit.
func NewBuilder(ex exchange.Exchange, cfg *config.Config, logger *zap.Logger) *Builder {
	interval := ex.RateLimit()
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &Builder{
		ex:      ex,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger.With(zap.String("component", "matrix_builder")),
		now:     time.Now,
	}
}

// EligibleMarkets filters the venue catalog down to actively trading spot
// markets quoted in the configured quote currency. An empty result is an
// error: the whole run depends on it.
func (b *Builder) EligibleMarkets(ctx context.Context) ([]string, error) {
	catalog, err := b.ex.LoadMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve markets: %w", err)
	}

	var symbols []string
	for _, m := range catalog {
		if m.Eligible(b.cfg.QuoteCurrency) {
			symbols = append(symbols, m.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%w for quote currency %s", ErrNoMarkets, b.cfg.QuoteCurrency)
	}
	return symbols, nil
}

// Build fetches the lookback window of candles for every eligible market and
// outer-joins them into one matrix, then drops any column with a gap.
// A single market's fetch or merge failure is logged and skipped; only a
// total failure (no markets, no columns) aborts the build.
func (b *Builder) Build(ctx context.Context) (*Matrix, error) {
	symbols, err := b.EligibleMarkets(ctx)
	if err != nil {
		return nil, err
	}

	resolution, err := b.cfg.ResolutionDuration()
	if err != nil {
		return nil, err
	}
	since := b.now().UTC().Add(-lookbackPeriods * resolution).UnixMilli()

	matrix := NewMatrix()
	for i, symbol := range symbols {
		if i > 0 {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		candles, err := b.ex.FetchOHLCV(ctx, symbol, b.cfg.Resolution, since, candleFetchLimit)
		if err != nil {
			b.logger.Warn("failed to fetch candles, skipping market",
				zap.String("market", symbol),
				zap.Error(err))
			continue
		}
		if err := matrix.Merge(symbol, candles); err != nil {
			b.logger.Warn("failed to merge candles, skipping market",
				zap.String("market", symbol),
				zap.Error(err))
			continue
		}
	}

	if len(matrix.Columns()) == 0 {
		return nil, fmt.Errorf("price matrix empty: every market fetch failed")
	}

	dropped := matrix.DropGapColumns()
	if len(dropped) > 0 {
		b.logger.Info("dropped markets with gapped history",
			zap.Strings("markets", dropped))
	}

	b.logger.Info("price matrix built",
		zap.Int("markets", len(matrix.Columns())),
		zap.Int("rows", matrix.Len()))
	return matrix, nil
}
