// Package risk gates order placement on account collateral and converts
// the configured notional into per-leg order sizes.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/config"
)

var (
	// ErrInsufficientCollateral means the account balance is below the
	// configured minimum and no new positions may be opened.
	ErrInsufficientCollateral = errors.New("risk: insufficient collateral")
	// ErrZeroSize means the notional is too small to buy any quantity
	// at the given price.
	ErrZeroSize = errors.New("risk: order size rounds to zero")
)

// quantityPlaces is the precision orders are rounded to. Binance spot lot
// sizes vary per symbol; 8 places is the finest step the venue accepts.
const quantityPlaces = 8

// Manager applies the configured risk limits.
type Manager struct {
	usdPerTrade   decimal.Decimal
	minCollateral decimal.Decimal
	logger        *zap.Logger
}

// New creates a Manager from the configured limits.
func New(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		usdPerTrade:   decimal.NewFromFloat(cfg.USDPerTrade),
		minCollateral: decimal.NewFromFloat(cfg.USDMinCollateral),
		logger:        logger.With(zap.String("component", "risk")),
	}
}

// CheckCollateral returns ErrInsufficientCollateral when the balance is
// below the configured minimum.
func (m *Manager) CheckCollateral(balance decimal.Decimal) error {
	if balance.LessThan(m.minCollateral) {
		m.logger.Warn("Collateral below minimum",
			zap.String("balance", balance.String()),
			zap.String("minimum", m.minCollateral.String()))
		return fmt.Errorf("%w: balance %s below minimum %s",
			ErrInsufficientCollateral, balance, m.minCollateral)
	}
	return nil
}

// SizeOrder converts the per-trade notional into a quantity at the given
// price. The quantity is rounded down so the notional is never exceeded.
func (m *Manager) SizeOrder(price decimal.Decimal) (decimal.Decimal, error) {
	if price.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("risk: invalid price %s", price)
	}
	qty := m.usdPerTrade.Div(price).RoundDown(quantityPlaces)
	if qty.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: notional %s at price %s",
			ErrZeroSize, m.usdPerTrade, price)
	}
	return qty, nil
}
