// Package trader runs the position lifecycle: opening hedged pair trades
// when the spread z-score breaches the entry threshold, closing them when
// the spread reverts, and flattening everything on demand.
package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/cache"
	"github.com/gmcnicol/pairtrader/internal/config"
	"github.com/gmcnicol/pairtrader/internal/exchange"
	"github.com/gmcnicol/pairtrader/internal/ledger"
	"github.com/gmcnicol/pairtrader/internal/models"
	"github.com/gmcnicol/pairtrader/internal/risk"
	"github.com/gmcnicol/pairtrader/internal/stats"
)

const (
	// lookbackPeriods is how many closes feed the spread statistics.
	lookbackPeriods = 400
	// candleFetchLimit caps a single candle request.
	candleFetchLimit = 1000
	// quantityPlaces matches the venue's finest lot step.
	quantityPlaces = 8
)

// Trader opens and closes pair positions against the exchange and the
// position ledger.
type Trader struct {
	cfg    *config.Config
	ex     exchange.Exchange
	store  *ledger.Store
	cache  *cache.Cache
	risk   *risk.Manager
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Trader.
func New(cfg *config.Config, ex exchange.Exchange, store *ledger.Store, c *cache.Cache, rm *risk.Manager, logger *zap.Logger) *Trader {
	return &Trader{
		cfg:    cfg,
		ex:     ex,
		store:  store,
		cache:  c,
		risk:   rm,
		logger: logger.With(zap.String("component", "trader")),
		now:    time.Now,
	}
}

// PlaceEntries scans the cached pair candidates and opens a hedged position
// for every fresh pair whose latest z-score breaches the entry threshold.
// A failure on one pair never blocks the others.
func (t *Trader) PlaceEntries(ctx context.Context) error {
	rows, err := t.store.Pairs(ctx)
	if err != nil {
		return err
	}

	fresh := rows[:0:0]
	cutoff := t.now().Add(-t.cfg.PairMaxAge)
	for _, row := range rows {
		if row.CreatedAt.Before(cutoff) {
			t.logger.Debug("Skipping stale pair",
				zap.String("pair", row.Pair().Name()),
				zap.Time("screened_at", row.CreatedAt))
			continue
		}
		fresh = append(fresh, row)
	}
	if len(fresh) == 0 {
		t.logger.Info("No fresh pair candidates")
		return nil
	}

	balance, err := t.ex.FetchBalance(ctx, t.cfg.QuoteCurrency)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}
	if err := t.risk.CheckCollateral(balance); err != nil {
		if errors.Is(err, risk.ErrInsufficientCollateral) {
			return nil
		}
		return err
	}

	for _, row := range fresh {
		if err := t.tryEnter(ctx, row); err != nil {
			t.logger.Error("Entry failed",
				zap.String("pair", row.Pair().Name()),
				zap.Error(err))
		}
	}
	return nil
}

// tryEnter evaluates one pair candidate and opens a position when the
// entry conditions hold.
func (t *Trader) tryEnter(ctx context.Context, row ledger.CointegratedPair) error {
	pair := row.Pair()

	first, err := t.ex.MarketInfo(ctx, pair.FirstMarket)
	if err != nil {
		return err
	}
	second, err := t.ex.MarketInfo(ctx, pair.SecondMarket)
	if err != nil {
		return err
	}
	if first.Quote != second.Quote {
		t.logger.Warn("Pair legs quoted in different currencies, skipping",
			zap.String("first", first.Symbol),
			zap.String("second", second.Symbol))
		return nil
	}

	triple := models.CurrencyTriple{
		Base:      first.Base,
		Quote:     first.Quote,
		Secondary: second.Base,
	}
	existing, err := t.store.FindOpen(ctx, triple)
	if err != nil {
		return err
	}
	if existing != nil {
		t.logger.Debug("Position already open", zap.String("triple", triple.String()))
		return nil
	}

	z, err := t.zSeries(ctx, pair)
	if err != nil {
		return err
	}
	idx := stats.LastDefined(z)
	if idx < 0 {
		return fmt.Errorf("no defined z-score for %s", pair.Name())
	}
	score := z[idx]
	if math.Abs(score) < t.cfg.ZScoreThreshold {
		return nil
	}

	// A positive z-score means the first leg is rich relative to the
	// hedge; sell it and buy the hedge leg.
	side := exchange.SideBuy
	if score > 0 {
		side = exchange.SideSell
	}

	qty1, err := t.sizeLeg(ctx, pair.FirstMarket)
	if err != nil {
		return err
	}
	qty2 := qty1.Mul(decimal.NewFromFloat(pair.HedgeRatio)).RoundDown(quantityPlaces)
	if qty2.Sign() <= 0 {
		return fmt.Errorf("hedge leg quantity rounds to zero for %s", pair.Name())
	}

	t.logger.Info("Opening position",
		zap.String("pair", pair.Name()),
		zap.String("triple", triple.String()),
		zap.Float64("z_score", score),
		zap.String("side", string(side)),
		zap.String("qty_first", qty1.String()),
		zap.String("qty_second", qty2.String()))

	if err := t.ex.CreateMarketOrder(ctx, pair.FirstMarket, side, qty1); err != nil {
		return fmt.Errorf("first leg order: %w", err)
	}
	if err := t.ex.CreateMarketOrder(ctx, pair.SecondMarket, side.Opposite(), qty2); err != nil {
		// Unwind the filled first leg so the book is not left one-sided.
		if uerr := t.ex.CreateMarketOrder(ctx, pair.FirstMarket, side.Opposite(), qty1); uerr != nil {
			t.logger.Error("Failed to unwind first leg",
				zap.String("symbol", pair.FirstMarket),
				zap.Error(uerr))
		}
		return fmt.Errorf("second leg order: %w", err)
	}

	return t.store.InsertOpen(ctx, &ledger.Position{
		BaseCurrency:      triple.Base,
		QuoteCurrency:     triple.Quote,
		SecondaryCurrency: triple.Secondary,
		Side:              string(side),
		OpenPosition:      qty1,
		OpenTimestamp:     t.now().UTC(),
	})
}

// ManageExits closes every open position whose spread z-score has crossed
// zero since the previous observation.
func (t *Trader) ManageExits(ctx context.Context) error {
	if !t.cfg.CloseAtZScoreCross {
		return nil
	}

	open, err := t.store.OpenPositions(ctx)
	if err != nil {
		return err
	}

	for _, pos := range open {
		if err := t.tryExit(ctx, pos); err != nil {
			t.logger.Error("Exit failed",
				zap.String("triple", pos.Triple().String()),
				zap.Error(err))
		}
	}
	return nil
}

// tryExit evaluates one open position and closes it when the spread has
// crossed zero.
func (t *Trader) tryExit(ctx context.Context, pos ledger.Position) error {
	row, err := t.pairForPosition(ctx, pos)
	if err != nil {
		return err
	}
	if row == nil {
		t.logger.Warn("No cached pair statistics for position, holding",
			zap.String("triple", pos.Triple().String()))
		return nil
	}
	pair := row.Pair()

	z, err := t.zSeries(ctx, pair)
	if err != nil {
		return err
	}
	last := stats.LastDefined(z)
	if last < 0 {
		return fmt.Errorf("no defined z-score for %s", pair.Name())
	}
	prev := -1
	for i := last - 1; i >= 0; i-- {
		if !math.IsNaN(z[i]) {
			prev = i
			break
		}
	}
	if prev < 0 {
		return nil
	}
	if z[prev]*z[last] > 0 {
		return nil
	}

	return t.closePosition(ctx, pos, pair)
}

// closePosition sends the offsetting orders for both legs and stamps the
// ledger row closed.
func (t *Trader) closePosition(ctx context.Context, pos ledger.Position, pair models.CointegratedPair) error {
	side := exchange.Side(pos.Side)
	qty2 := pos.OpenPosition.Mul(decimal.NewFromFloat(pair.HedgeRatio)).RoundDown(quantityPlaces)

	t.logger.Info("Closing position",
		zap.Uint("id", pos.ID),
		zap.String("pair", pair.Name()),
		zap.String("side", string(side.Opposite())))

	if err := t.ex.CreateMarketOrder(ctx, pair.FirstMarket, side.Opposite(), pos.OpenPosition); err != nil {
		return fmt.Errorf("first leg close: %w", err)
	}
	if qty2.Sign() > 0 {
		if err := t.ex.CreateMarketOrder(ctx, pair.SecondMarket, side, qty2); err != nil {
			return fmt.Errorf("second leg close: %w", err)
		}
	}

	return t.store.ClosePosition(ctx, pos.ID, pos.OpenPosition, t.now().UTC())
}

// AbortAll cancels open orders and flattens every open position. Errors
// are collected so one stuck position does not strand the rest.
func (t *Trader) AbortAll(ctx context.Context) error {
	open, err := t.store.OpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		t.logger.Info("No open positions to abort")
		return nil
	}

	var errs []error
	for _, pos := range open {
		row, err := t.pairForPosition(ctx, pos)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pair := models.CointegratedPair{
			FirstMarket:  pos.BaseCurrency + pos.QuoteCurrency,
			SecondMarket: pos.SecondaryCurrency + pos.QuoteCurrency,
		}
		if row != nil {
			pair = row.Pair()
		}

		for _, symbol := range []string{pair.FirstMarket, pair.SecondMarket} {
			if err := t.ex.CancelAllOrders(ctx, symbol); err != nil {
				t.logger.Warn("Failed to cancel orders",
					zap.String("symbol", symbol),
					zap.Error(err))
			}
		}
		if err := t.closePosition(ctx, pos, pair); err != nil {
			errs = append(errs, fmt.Errorf("abort %s: %w", pos.Triple(), err))
		}
	}
	return errors.Join(errs...)
}

// pairForPosition resolves the cached pair statistics backing a position.
// Binance spot symbols concatenate base and quote, so the legs can be
// reconstructed from the currency triple.
func (t *Trader) pairForPosition(ctx context.Context, pos ledger.Position) (*ledger.CointegratedPair, error) {
	firstSym := pos.BaseCurrency + pos.QuoteCurrency
	secondSym := pos.SecondaryCurrency + pos.QuoteCurrency

	rows, err := t.store.Pairs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].FirstMarket == firstSym && rows[i].SecondMarket == secondSym {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// sizeLeg converts the configured notional into a quantity at the leg's
// current price, preferring the streamed price over the last close.
func (t *Trader) sizeLeg(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if price, ok := t.cache.GetPrice(symbol); ok {
		return t.risk.SizeOrder(price)
	}

	closes, err := t.closes(ctx, symbol)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(closes) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no price available for %s", symbol)
	}
	return t.risk.SizeOrder(decimal.NewFromFloat(closes[len(closes)-1]))
}

// zSeries computes the rolling spread z-score for a pair using its stored
// hedge ratio and intercept.
func (t *Trader) zSeries(ctx context.Context, pair models.CointegratedPair) ([]float64, error) {
	y, err := t.closes(ctx, pair.FirstMarket)
	if err != nil {
		return nil, err
	}
	x, err := t.closes(ctx, pair.SecondMarket)
	if err != nil {
		return nil, err
	}

	// Align on the trailing overlap.
	n := len(y)
	if len(x) < n {
		n = len(x)
	}
	if n < t.cfg.Window {
		return nil, fmt.Errorf("series too short for window %d", t.cfg.Window)
	}
	y = y[len(y)-n:]
	x = x[len(x)-n:]

	spread := stats.Spread(y, x, pair.HedgeRatio, pair.Intercept)
	return stats.ZScore(spread, t.cfg.Window), nil
}

// closes returns the recent close series for a symbol, serving from the
// candle cache when a fresh copy exists.
func (t *Trader) closes(ctx context.Context, symbol string) ([]float64, error) {
	candles, ok := t.cache.GetCandles(symbol)
	if !ok {
		resolution, err := t.cfg.ResolutionDuration()
		if err != nil {
			return nil, err
		}
		since := t.now().UTC().Add(-lookbackPeriods * resolution).UnixMilli()

		candles, err = t.ex.FetchOHLCV(ctx, symbol, t.cfg.Resolution, since, candleFetchLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch candles for %s: %w", symbol, err)
		}
		t.cache.SetCandles(symbol, candles)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes, nil
}
