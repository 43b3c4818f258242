package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/config"
	"github.com/gmcnicol/pairtrader/internal/exchange"
	"github.com/gmcnicol/pairtrader/internal/models"
)

type fakeExchange struct {
	markets    []models.Market
	candles    map[string][]models.Candle
	fetchErr   map[string]error
	fetchCalls []string
}

func (f *fakeExchange) LoadMarkets(ctx context.Context) ([]models.Market, error) {
	return f.markets, nil
}

func (f *fakeExchange) FetchOHLCV(ctx context.Context, symbol, timeframe string, since int64, limit int) ([]models.Candle, error) {
	f.fetchCalls = append(f.fetchCalls, symbol)
	if err := f.fetchErr[symbol]; err != nil {
		return nil, err
	}
	return f.candles[symbol], nil
}

func (f *fakeExchange) MarketInfo(ctx context.Context, symbol string) (models.Market, error) {
	for _, m := range f.markets {
		if m.Symbol == symbol {
			return m, nil
		}
	}
	return models.Market{}, errors.New("unknown market")
}

func (f *fakeExchange) RateLimit() time.Duration { return 0 }

func (f *fakeExchange) CreateMarketOrder(ctx context.Context, symbol string, side exchange.Side, quantity decimal.Decimal) error {
	return nil
}

func (f *fakeExchange) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (f *fakeExchange) FetchBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func spotMarket(symbol, base, quote string) models.Market {
	return models.Market{
		Symbol: symbol,
		Base:   base,
		Quote:  quote,
		Status: models.StatusTrading,
		Kind:   models.KindSpot,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		QuoteCurrency: "BTC",
		Resolution:    "1h",
		Window:        21,
	}
}

func seriesCandles(n int, base float64) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{Timestamp: int64(i) * 3_600_000, Close: base + float64(i)}
	}
	return candles
}

func TestEligibleMarketsFilters(t *testing.T) {
	ex := &fakeExchange{
		markets: []models.Market{
			spotMarket("ETHBTC", "ETH", "BTC"),
			spotMarket("LTCBTC", "LTC", "BTC"),
			spotMarket("ETHUSDT", "ETH", "USDT"),
			{Symbol: "XRPBTC", Base: "XRP", Quote: "BTC", Status: "BREAK", Kind: models.KindSpot},
			{Symbol: "BNBBTC", Base: "BNB", Quote: "BTC", Status: models.StatusTrading, Kind: "margin"},
		},
	}
	b := NewBuilder(ex, testConfig(), zap.NewNop())

	symbols, err := b.EligibleMarkets(context.Background())
	if err != nil {
		t.Fatalf("EligibleMarkets: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "ETHBTC" || symbols[1] != "LTCBTC" {
		t.Errorf("Expected [ETHBTC LTCBTC], got %v", symbols)
	}
}

func TestEligibleMarketsEmptyIsFatal(t *testing.T) {
	ex := &fakeExchange{markets: []models.Market{spotMarket("ETHUSDT", "ETH", "USDT")}}
	b := NewBuilder(ex, testConfig(), zap.NewNop())

	if _, err := b.EligibleMarkets(context.Background()); !errors.Is(err, ErrNoMarkets) {
		t.Errorf("Expected ErrNoMarkets, got %v", err)
	}
}

func TestBuildSkipsFailedMarket(t *testing.T) {
	ex := &fakeExchange{
		markets: []models.Market{
			spotMarket("ETHBTC", "ETH", "BTC"),
			spotMarket("LTCBTC", "LTC", "BTC"),
			spotMarket("XRPBTC", "XRP", "BTC"),
		},
		candles: map[string][]models.Candle{
			"ETHBTC": seriesCandles(10, 100),
			"XRPBTC": seriesCandles(10, 5),
		},
		fetchErr: map[string]error{"LTCBTC": errors.New("timeout")},
	}
	b := NewBuilder(ex, testConfig(), zap.NewNop())

	matrix, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cols := matrix.Columns()
	if len(cols) != 2 || cols[0] != "ETHBTC" || cols[1] != "XRPBTC" {
		t.Errorf("Expected failed market skipped, got columns %v", cols)
	}
	if len(ex.fetchCalls) != 3 {
		t.Errorf("Expected all 3 markets attempted, got %v", ex.fetchCalls)
	}
}

func TestBuildDropsGappedColumns(t *testing.T) {
	partial := seriesCandles(10, 5)[2:] // missing the first two timestamps
	ex := &fakeExchange{
		markets: []models.Market{
			spotMarket("ETHBTC", "ETH", "BTC"),
			spotMarket("XRPBTC", "XRP", "BTC"),
		},
		candles: map[string][]models.Candle{
			"ETHBTC": seriesCandles(10, 100),
			"XRPBTC": partial,
		},
	}
	b := NewBuilder(ex, testConfig(), zap.NewNop())

	matrix, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cols := matrix.Columns()
	if len(cols) != 1 || cols[0] != "ETHBTC" {
		t.Errorf("Expected gapped XRPBTC dropped, got %v", cols)
	}
}

func TestBuildTotalFetchFailureIsFatal(t *testing.T) {
	ex := &fakeExchange{
		markets: []models.Market{spotMarket("ETHBTC", "ETH", "BTC")},
		fetchErr: map[string]error{
			"ETHBTC": errors.New("down"),
		},
	}
	b := NewBuilder(ex, testConfig(), zap.NewNop())

	if _, err := b.Build(context.Background()); err == nil {
		t.Error("Expected error when every market fetch fails")
	}
}

func TestBuildIdempotent(t *testing.T) {
	ex := &fakeExchange{
		markets: []models.Market{
			spotMarket("ETHBTC", "ETH", "BTC"),
			spotMarket("XRPBTC", "XRP", "BTC"),
		},
		candles: map[string][]models.Candle{
			"ETHBTC": seriesCandles(10, 100),
			"XRPBTC": seriesCandles(10, 5),
		},
	}
	b := NewBuilder(ex, testConfig(), zap.NewNop())
	b.now = func() time.Time { return time.UnixMilli(0) }

	first, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if first.Len() != second.Len() || len(first.Columns()) != len(second.Columns()) {
		t.Fatal("Expected identical matrices from identical inputs")
	}
	for _, name := range first.Columns() {
		got, want := first.Series(name), second.Series(name)
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("Column %s differs at row %d", name, i)
			}
		}
	}
}
