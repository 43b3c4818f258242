package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testPosition() *Position {
	return &Position{
		BaseCurrency:      "ETH",
		QuoteCurrency:     "BTC",
		SecondaryCurrency: "LTC",
		Side:              "SELL",
		OpenPosition:      decimal.NewFromFloat(0.5),
		OpenTimestamp:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertOpenAndFind(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pos := testPosition()
	if err := store.InsertOpen(ctx, pos); err != nil {
		t.Fatalf("InsertOpen: %v", err)
	}
	if pos.ID == 0 {
		t.Error("Expected assigned ID")
	}

	found, err := store.FindOpen(ctx, pos.Triple())
	if err != nil {
		t.Fatalf("FindOpen: %v", err)
	}
	if found == nil {
		t.Fatal("Expected open position, got nil")
	}
	if found.ID != pos.ID {
		t.Errorf("Expected ID %d, got %d", pos.ID, found.ID)
	}
	if !found.Open() {
		t.Error("Expected position to be open")
	}
	if !found.OpenPosition.Equal(pos.OpenPosition) {
		t.Errorf("Expected open amount %s, got %s", pos.OpenPosition, found.OpenPosition)
	}
	if found.Side != "SELL" {
		t.Errorf("Expected side SELL, got %s", found.Side)
	}
}

func TestFindOpenMissing(t *testing.T) {
	store := openTestStore(t)

	found, err := store.FindOpen(context.Background(), models.CurrencyTriple{
		Base: "ETH", Quote: "BTC", Secondary: "LTC",
	})
	if err != nil {
		t.Fatalf("FindOpen: %v", err)
	}
	if found != nil {
		t.Errorf("Expected nil for missing triple, got %+v", found)
	}
}

func TestInsertOpenDuplicateTriple(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.InsertOpen(ctx, testPosition()); err != nil {
		t.Fatalf("InsertOpen: %v", err)
	}

	err := store.InsertOpen(ctx, testPosition())
	if !errors.Is(err, ErrDuplicateOpen) {
		t.Fatalf("Expected ErrDuplicateOpen, got %v", err)
	}

	open, err := store.OpenPositions(ctx)
	if err != nil {
		t.Fatalf("OpenPositions: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("Expected 1 open position after rejected duplicate, got %d", len(open))
	}
}

func TestClosePositionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pos := testPosition()
	if err := store.InsertOpen(ctx, pos); err != nil {
		t.Fatalf("InsertOpen: %v", err)
	}

	closeTS := time.Date(2024, 3, 2, 9, 30, 0, 0, time.UTC)
	if err := store.ClosePosition(ctx, pos.ID, pos.OpenPosition, closeTS); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}

	// No longer discoverable as open.
	found, err := store.FindOpen(ctx, pos.Triple())
	if err != nil {
		t.Fatalf("FindOpen: %v", err)
	}
	if found != nil {
		t.Errorf("Expected no open position after close, got %+v", found)
	}

	all, err := store.Positions(ctx)
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("Expected 1 position in history, got %d", len(all))
	}
	closed := all[0]
	if closed.Open() {
		t.Error("Expected position closed")
	}
	if !closed.ClosedPosition.Valid || !closed.ClosedPosition.Decimal.Equal(pos.OpenPosition) {
		t.Errorf("Expected closed amount %s, got %+v", pos.OpenPosition, closed.ClosedPosition)
	}
	if closed.CloseTimestamp == nil || !closed.CloseTimestamp.Equal(closeTS) {
		t.Errorf("Expected close timestamp %v, got %v", closeTS, closed.CloseTimestamp)
	}

	// The triple is free for a new position once the old one is closed.
	if err := store.InsertOpen(ctx, testPosition()); err != nil {
		t.Errorf("InsertOpen after close: %v", err)
	}
}

func TestClosePositionErrors(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Now().UTC()

	if err := store.ClosePosition(ctx, 42, decimal.NewFromInt(1), ts); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	pos := testPosition()
	if err := store.InsertOpen(ctx, pos); err != nil {
		t.Fatalf("InsertOpen: %v", err)
	}

	over := pos.OpenPosition.Add(decimal.NewFromFloat(0.1))
	if err := store.ClosePosition(ctx, pos.ID, over, ts); !errors.Is(err, ErrOverClose) {
		t.Errorf("Expected ErrOverClose, got %v", err)
	}

	if err := store.ClosePosition(ctx, pos.ID, pos.OpenPosition, ts); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	if err := store.ClosePosition(ctx, pos.ID, pos.OpenPosition, ts); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Expected ErrAlreadyClosed, got %v", err)
	}
}

func TestReplacePairs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	first := []models.CointegratedPair{
		{FirstMarket: "ETHBTC", SecondMarket: "LTCBTC", HedgeRatio: 1.5, Intercept: 0.1, HalfLife: 6},
		{FirstMarket: "ETHBTC", SecondMarket: "XRPBTC", HedgeRatio: 0.8, Intercept: -0.2, HalfLife: 12},
	}
	if err := store.ReplacePairs(ctx, first, ts); err != nil {
		t.Fatalf("ReplacePairs: %v", err)
	}

	rows, err := store.Pairs(ctx)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(rows))
	}
	if got := rows[0].Pair(); got != first[0] {
		t.Errorf("Expected %+v, got %+v", first[0], got)
	}
	if !rows[0].CreatedAt.Equal(ts) {
		t.Errorf("Expected created-at %v, got %v", ts, rows[0].CreatedAt)
	}

	// A later batch fully replaces the earlier one.
	second := []models.CointegratedPair{
		{FirstMarket: "BNBBTC", SecondMarket: "SOLBTC", HedgeRatio: 2.1, Intercept: 0, HalfLife: 3},
	}
	if err := store.ReplacePairs(ctx, second, ts.Add(time.Hour)); err != nil {
		t.Fatalf("ReplacePairs: %v", err)
	}
	rows, err = store.Pairs(ctx)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(rows) != 1 || rows[0].FirstMarket != "BNBBTC" {
		t.Errorf("Expected replacement batch only, got %+v", rows)
	}

	// An empty batch clears the cache.
	if err := store.ReplacePairs(ctx, nil, ts.Add(2*time.Hour)); err != nil {
		t.Fatalf("ReplacePairs empty: %v", err)
	}
	rows, err = store.Pairs(ctx)
	if err != nil {
		t.Fatalf("Pairs: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected empty cache, got %+v", rows)
	}
}
