package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/config"
)

func testManager() *Manager {
	return New(&config.Config{USDPerTrade: 10, USDMinCollateral: 100}, zap.NewNop())
}

func TestCheckCollateral(t *testing.T) {
	m := testManager()

	if err := m.CheckCollateral(decimal.NewFromInt(100)); err != nil {
		t.Errorf("Expected balance at minimum to pass, got %v", err)
	}
	if err := m.CheckCollateral(decimal.NewFromInt(250)); err != nil {
		t.Errorf("Expected ample balance to pass, got %v", err)
	}

	err := m.CheckCollateral(decimal.NewFromFloat(99.99))
	if !errors.Is(err, ErrInsufficientCollateral) {
		t.Errorf("Expected ErrInsufficientCollateral, got %v", err)
	}
}

func TestSizeOrder(t *testing.T) {
	m := testManager()

	qty, err := m.SizeOrder(decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("SizeOrder: %v", err)
	}
	if !qty.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("Expected 2.5, got %s", qty)
	}

	// Rounds down, never exceeding the notional.
	qty, err = m.SizeOrder(decimal.NewFromInt(3))
	if err != nil {
		t.Fatalf("SizeOrder: %v", err)
	}
	if !qty.Mul(decimal.NewFromInt(3)).LessThanOrEqual(decimal.NewFromInt(10)) {
		t.Errorf("Quantity %s at price 3 exceeds notional", qty)
	}
}

func TestSizeOrderInvalid(t *testing.T) {
	m := testManager()

	if _, err := m.SizeOrder(decimal.Zero); err == nil {
		t.Error("Expected error for zero price")
	}
	if _, err := m.SizeOrder(decimal.NewFromInt(-1)); err == nil {
		t.Error("Expected error for negative price")
	}

	// Price so large the quantity rounds to zero at 8 places.
	_, err := m.SizeOrder(decimal.New(1, 12))
	if !errors.Is(err, ErrZeroSize) {
		t.Errorf("Expected ErrZeroSize, got %v", err)
	}
}
