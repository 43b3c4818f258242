// Package screener runs pairwise cointegration screening over a price
// matrix and emits the candidate pairs that pass the mean-reversion filter.
package screener

import (
	"context"
	"errors"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gmcnicol/pairtrader/internal/config"
	"github.com/gmcnicol/pairtrader/internal/marketdata"
	"github.com/gmcnicol/pairtrader/internal/models"
	"github.com/gmcnicol/pairtrader/internal/stats"
)

// Screener tests every unordered pair of matrix columns for cointegration.
type Screener struct {
	maxHalfLife float64
	logger      *zap.Logger
}

// New creates a Screener with the configured half-life cap.
func New(cfg *config.Config, logger *zap.Logger) *Screener {
	return &Screener{
		maxHalfLife: cfg.MaxHalfLife,
		logger:      logger.With(zap.String("component", "screener")),
	}
}

// Screen enumerates (i, j) with i < j over the matrix columns in column
// order, so each unordered pair is considered exactly once. Pair tests are
// independent and read-only over the matrix, so they run in parallel;
// results are collected back into enumeration order. A pair whose test
// fails (short or degenerate series) is skipped, never fatal.
func (s *Screener) Screen(ctx context.Context, matrix *marketdata.Matrix) ([]models.CointegratedPair, error) {
	markets := matrix.Columns()
	n := len(markets)
	if n < 2 {
		return nil, nil
	}

	type slot struct {
		pair *models.CointegratedPair
	}
	slots := make([]slot, n*(n-1)/2)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	k := 0
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			i, j, slot := i, j, k
			g.Go(func() error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
				slots[slot].pair = s.screenPair(
					markets[i], markets[j],
					matrix.Series(markets[i]), matrix.Series(markets[j]),
				)
				return nil
			})
			k++
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pairs []models.CointegratedPair
	for _, sl := range slots {
		if sl.pair != nil {
			pairs = append(pairs, *sl.pair)
		}
	}

	s.logger.Info("screening complete",
		zap.Int("markets", n),
		zap.Int("pairs_tested", len(slots)),
		zap.Int("pairs_accepted", len(pairs)))
	return pairs, nil
}

// screenPair tests one pair and returns it if it passes the filter:
// cointegration accepted at the 5% level and a half-life in
// (0, maxHalfLife].
func (s *Screener) screenPair(first, second string, series1, series2 []float64) *models.CointegratedPair {
	res, err := stats.EngleGranger(series1, series2)
	if err != nil {
		s.logger.Debug("pair test failed",
			zap.String("first", first),
			zap.String("second", second),
			zap.Error(err))
		return nil
	}
	if !res.Accepted() {
		return nil
	}

	halfLife, err := stats.HalfLife(res.Spread)
	if err != nil {
		if errors.Is(err, stats.ErrDegenerate) {
			s.logger.Debug("degenerate spread, excluding pair",
				zap.String("first", first),
				zap.String("second", second))
		}
		return nil
	}
	if halfLife <= 0 || halfLife > s.maxHalfLife {
		return nil
	}

	return &models.CointegratedPair{
		FirstMarket:  first,
		SecondMarket: second,
		HedgeRatio:   res.HedgeRatio,
		Intercept:    res.Intercept,
		HalfLife:     halfLife,
	}
}
