// Package ledger persists positions and the cointegrated-pair cache in a
// local SQLite database.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gmcnicol/pairtrader/internal/models"
)

var (
	// ErrDuplicateOpen is returned when a second open position is
	// attempted for a currency triple that already has one.
	ErrDuplicateOpen = errors.New("ledger: open position already exists for triple")
	// ErrNotFound is returned when the referenced position does not exist.
	ErrNotFound = errors.New("ledger: position not found")
	// ErrAlreadyClosed is returned when closing a position twice.
	ErrAlreadyClosed = errors.New("ledger: position already closed")
	// ErrOverClose is returned when the closed amount exceeds the opened amount.
	ErrOverClose = errors.New("ledger: closed amount exceeds open amount")
)

// Position is one leg-pair trade over its lifecycle. A position is open
// while CloseTimestamp is NULL; closing stamps the timestamp and records
// the closed amount, which may never exceed the opened amount.
type Position struct {
	ID                uint   `gorm:"primaryKey"`
	BaseCurrency      string `gorm:"index:idx_triple"`
	QuoteCurrency     string `gorm:"index:idx_triple"`
	SecondaryCurrency string `gorm:"index:idx_triple"`
	Side              string
	OpenPosition      decimal.Decimal     `gorm:"type:numeric"`
	ClosedPosition    decimal.NullDecimal `gorm:"type:numeric"`
	OpenTimestamp     time.Time
	CloseTimestamp    *time.Time
}

// Open reports whether the position is still open.
func (p Position) Open() bool {
	return p.CloseTimestamp == nil
}

// Triple returns the currency triple identifying the position.
func (p Position) Triple() models.CurrencyTriple {
	return models.CurrencyTriple{
		Base:      p.BaseCurrency,
		Quote:     p.QuoteCurrency,
		Secondary: p.SecondaryCurrency,
	}
}

// CointegratedPair is the persisted form of a screening hit. The table is
// replaced wholesale on each successful screen.
type CointegratedPair struct {
	ID           uint `gorm:"primaryKey"`
	FirstMarket  string
	SecondMarket string
	HedgeRatio   float64
	Intercept    float64
	HalfLife     float64
	CreatedAt    time.Time
}

// Pair converts the row back to the in-memory form.
func (p CointegratedPair) Pair() models.CointegratedPair {
	return models.CointegratedPair{
		FirstMarket:  p.FirstMarket,
		SecondMarket: p.SecondMarket,
		HedgeRatio:   p.HedgeRatio,
		Intercept:    p.Intercept,
		HalfLife:     p.HalfLife,
	}
}

// Store wraps the SQLite database holding positions and pair candidates.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates the
// schema. A partial unique index enforces at most one open position per
// currency triple at the database level.
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Position{}, &CointegratedPair{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_open_triple
		 ON positions(base_currency, quote_currency, secondary_currency)
		 WHERE close_timestamp IS NULL`,
	).Error; err != nil {
		return nil, fmt.Errorf("failed to create open-triple index: %w", err)
	}

	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "ledger")),
	}, nil
}

// InsertOpen records a new open position. At most one open position may
// exist per currency triple; a second insert returns ErrDuplicateOpen.
func (s *Store) InsertOpen(ctx context.Context, pos *Position) error {
	if pos.OpenTimestamp.IsZero() {
		pos.OpenTimestamp = time.Now().UTC()
	}
	pos.ClosedPosition = decimal.NullDecimal{}
	pos.CloseTimestamp = nil

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Position{}).
			Where("base_currency = ? AND quote_currency = ? AND secondary_currency = ? AND close_timestamp IS NULL",
				pos.BaseCurrency, pos.QuoteCurrency, pos.SecondaryCurrency).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateOpen
		}
		return tx.Create(pos).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("Position opened",
		zap.Uint("id", pos.ID),
		zap.String("triple", pos.Triple().String()),
		zap.String("side", pos.Side),
		zap.String("amount", pos.OpenPosition.String()))
	return nil
}

// ClosePosition closes the position by id, recording the closed amount and
// the close timestamp. The amount may not exceed the opened amount.
func (s *Store) ClosePosition(ctx context.Context, id uint, amount decimal.Decimal, ts time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pos Position
		if err := tx.First(&pos, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !pos.Open() {
			return ErrAlreadyClosed
		}
		if amount.GreaterThan(pos.OpenPosition) {
			return ErrOverClose
		}
		pos.ClosedPosition = decimal.NewNullDecimal(amount)
		pos.CloseTimestamp = &ts
		return tx.Save(&pos).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("Position closed",
		zap.Uint("id", id),
		zap.String("amount", amount.String()),
		zap.Time("close_timestamp", ts))
	return nil
}

// FindOpen returns the open position for the triple, or nil when none exists.
func (s *Store) FindOpen(ctx context.Context, triple models.CurrencyTriple) (*Position, error) {
	var pos Position
	err := s.db.WithContext(ctx).
		Where("base_currency = ? AND quote_currency = ? AND secondary_currency = ? AND close_timestamp IS NULL",
			triple.Base, triple.Quote, triple.Secondary).
		First(&pos).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query open position: %w", err)
	}
	return &pos, nil
}

// OpenPositions returns all currently open positions, oldest first.
func (s *Store) OpenPositions(ctx context.Context) ([]Position, error) {
	var positions []Position
	err := s.db.WithContext(ctx).
		Where("close_timestamp IS NULL").
		Order("id").
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	return positions, nil
}

// Positions returns the full position history, oldest first.
func (s *Store) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := s.db.WithContext(ctx).Order("id").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// ReplacePairs replaces the cointegrated-pair cache with the given batch in
// a single transaction. A failed replace leaves the previous batch intact.
func (s *Store) ReplacePairs(ctx context.Context, pairs []models.CointegratedPair, ts time.Time) error {
	rows := make([]CointegratedPair, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, CointegratedPair{
			FirstMarket:  p.FirstMarket,
			SecondMarket: p.SecondMarket,
			HedgeRatio:   p.HedgeRatio,
			Intercept:    p.Intercept,
			HalfLife:     p.HalfLife,
			CreatedAt:    ts,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&CointegratedPair{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace pairs: %w", err)
	}

	s.logger.Info("Pair cache replaced", zap.Int("pairs", len(rows)))
	return nil
}

// Pairs returns the persisted pair cache in insertion order.
func (s *Store) Pairs(ctx context.Context) ([]CointegratedPair, error) {
	var rows []CointegratedPair
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	return rows, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
