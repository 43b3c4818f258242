package models

import "fmt"

// Market catalog constants as reported by the venue
const (
	StatusTrading = "TRADING"
	KindSpot      = "spot"
)

// Market describes one instrument from the venue's catalog
type Market struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`
	Status string `json:"status"`
	Kind   string `json:"kind"`
}

// Eligible reports whether the market qualifies for screening:
// actively trading, spot, quoted in the configured quote currency.
func (m Market) Eligible(quote string) bool {
	return m.Status == StatusTrading && m.Kind == KindSpot && m.Quote == quote
}

// Candle is a single OHLCV bar. Timestamp is the bar open time in
// UTC milliseconds, matching the venue's kline format.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// CointegratedPair is one screening hit: two markets whose prices hold a
// stationary linear relationship, with the fitted hedge ratio and the
// mean-reversion half-life of the residual spread.
type CointegratedPair struct {
	FirstMarket  string  `json:"first_market"`
	SecondMarket string  `json:"second_market"`
	HedgeRatio   float64 `json:"hedge_ratio"`
	Intercept    float64 `json:"intercept"`
	HalfLife     float64 `json:"half_life"`
}

// Name returns a stable identifier for logs and tables.
func (p CointegratedPair) Name() string {
	return fmt.Sprintf("%s-%s", p.FirstMarket, p.SecondMarket)
}

// CurrencyTriple identifies a pair position: the base currencies of the two
// legs and the quote currency they share. At most one open position may
// exist per triple.
type CurrencyTriple struct {
	Base      string `json:"base"`
	Quote     string `json:"quote"`
	Secondary string `json:"secondary"`
}

func (t CurrencyTriple) String() string {
	return fmt.Sprintf("%s/%s:%s", t.Base, t.Secondary, t.Quote)
}
