package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/models"
)

// binanceRateLimit is the pause between REST requests. Binance weights
// requests rather than publishing a flat interval; 50ms keeps a full
// catalog sweep well inside the kline weight budget.
const binanceRateLimit = 50 * time.Millisecond

// Binance implements Exchange over the Binance spot REST API.
type Binance struct {
	client *binance.Client
	logger *zap.Logger

	mu      sync.RWMutex
	markets map[string]models.Market
}

// NewBinance creates a Binance spot client.
func NewBinance(apiKey, secretKey string, logger *zap.Logger) *Binance {
	return &Binance{
		client:  binance.NewClient(apiKey, secretKey),
		logger:  logger.With(zap.String("component", "binance")),
		markets: make(map[string]models.Market),
	}
}

// LoadMarkets fetches exchange info and caches the catalog for MarketInfo.
func (b *Binance) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("load markets: %w", err)
	}

	markets := make([]models.Market, 0, len(info.Symbols))
	byKey := make(map[string]models.Market, len(info.Symbols))
	for _, s := range info.Symbols {
		kind := ""
		if s.IsSpotTradingAllowed {
			kind = models.KindSpot
		}
		m := models.Market{
			Symbol: s.Symbol,
			Base:   s.BaseAsset,
			Quote:  s.QuoteAsset,
			Status: s.Status,
			Kind:   kind,
		}
		markets = append(markets, m)
		byKey[m.Symbol] = m
	}

	b.mu.Lock()
	b.markets = byKey
	b.mu.Unlock()

	return markets, nil
}

// FetchOHLCV fetches klines for a symbol. The timeframe string is passed
// through unchanged; Binance accepts the same m/h/d/M grammar the
// configuration uses.
func (b *Binance) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]models.Candle, error) {
	svc := b.client.NewKlinesService().Symbol(symbol).Interval(timeframe).Limit(limit)
	if since > 0 {
		svc = svc.StartTime(since)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch ohlcv %s: %w", symbol, err)
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := klineToCandle(k)
		if err != nil {
			b.logger.Warn("skipping malformed kline",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// MarketInfo resolves a symbol from the cached catalog, loading it on first
// use.
func (b *Binance) MarketInfo(ctx context.Context, symbol string) (models.Market, error) {
	b.mu.RLock()
	m, ok := b.markets[symbol]
	n := len(b.markets)
	b.mu.RUnlock()
	if ok {
		return m, nil
	}
	if n == 0 {
		if _, err := b.LoadMarkets(ctx); err != nil {
			return models.Market{}, err
		}
		b.mu.RLock()
		m, ok = b.markets[symbol]
		b.mu.RUnlock()
		if ok {
			return m, nil
		}
	}
	return models.Market{}, fmt.Errorf("unknown market %s", symbol)
}

// RateLimit returns the advertised minimum delay between requests.
func (b *Binance) RateLimit() time.Duration {
	return binanceRateLimit
}

// CreateMarketOrder places a spot market order.
func (b *Binance) CreateMarketOrder(ctx context.Context, symbol string, side Side, quantity decimal.Decimal) error {
	sideType := binance.SideTypeBuy
	if side == SideSell {
		sideType = binance.SideTypeSell
	}
	_, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("market %s %s %s: %w", side, quantity, symbol, err)
	}
	return nil
}

// CancelAllOrders cancels every open order on a symbol. A venue error for
// "no open orders" is not distinguished here; callers treat failures as
// recoverable.
func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := b.client.NewCancelOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return fmt.Errorf("cancel orders %s: %w", symbol, err)
	}
	return nil
}

// FetchBalance returns the free balance of one asset.
func (b *Binance) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch balance: %w", err)
	}
	for _, bal := range account.Balances {
		if bal.Asset == asset {
			free, err := decimal.NewFromString(bal.Free)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %s: %w", bal.Free, err)
			}
			return free, nil
		}
	}
	return decimal.Zero, nil
}

func klineToCandle(k *binance.Kline) (models.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse open %q: %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse high %q: %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse low %q: %w", k.Low, err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse close %q: %w", k.Close, err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return models.Candle{}, fmt.Errorf("parse volume %q: %w", k.Volume, err)
	}
	return models.Candle{
		Timestamp: k.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}
