package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/gmcnicol/pairtrader/internal/models"
)

// Cache provides fast in-memory caching for candle series and live prices.
// Candle series expire after one resolution interval so the next loop
// iteration fetches fresh bars; live prices carry their own shorter TTL
// because the stream refreshes them continuously.
type Cache struct {
	candles   *gocache.Cache
	prices    *gocache.Cache
	candleTTL time.Duration
	priceTTL  time.Duration
}

// NewCache creates a new cache instance. candleTTL should match the candle
// resolution; priceTTL bounds how stale a streamed price may get.
func NewCache(candleTTL, priceTTL time.Duration) *Cache {
	return &Cache{
		candles:   gocache.New(candleTTL, candleTTL*2),
		prices:    gocache.New(priceTTL, priceTTL*2),
		candleTTL: candleTTL,
		priceTTL:  priceTTL,
	}
}

// GetCandles retrieves a cached candle series for a symbol.
func (c *Cache) GetCandles(symbol string) ([]models.Candle, bool) {
	if val, found := c.candles.Get(symbol); found {
		if candles, ok := val.([]models.Candle); ok {
			return candles, true
		}
	}
	return nil, false
}

// SetCandles caches a candle series for a symbol.
func (c *Cache) SetCandles(symbol string, candles []models.Candle) {
	c.candles.Set(symbol, candles, c.candleTTL)
}

// GetPrice retrieves the latest streamed price for a symbol.
func (c *Cache) GetPrice(symbol string) (decimal.Decimal, bool) {
	if val, found := c.prices.Get(symbol); found {
		if price, ok := val.(decimal.Decimal); ok {
			return price, true
		}
	}
	return decimal.Decimal{}, false
}

// SetPrice caches the latest streamed price for a symbol.
func (c *Cache) SetPrice(symbol string, price decimal.Decimal) {
	c.prices.Set(symbol, price, c.priceTTL)
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.candles.Flush()
	c.prices.Flush()
}

// Stats returns entry counts for diagnostics.
func (c *Cache) Stats() (candles, prices int) {
	return c.candles.ItemCount(), c.prices.ItemCount()
}
