package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gmcnicol/pairtrader/internal/stream"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading engine until interrupted",
	Long: `Run executes the configured phases in sequence: optionally flatten
all open positions, optionally rescreen for cointegrated pairs, then loop
managing exits and placing entries until interrupted.`,
	RunE: runEngine,
}

func runEngine(cmd *cobra.Command, args []string) error {
	defer closeStore()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := notifier.Send(ctx, "pairtrader launched"); err != nil {
		logger.Warn("Launch notification failed", zap.Error(err))
	}

	if cfg.AbortAllPositions {
		logger.Info("Phase: abort all positions")
		if err := engine.AbortAll(ctx); err != nil {
			return notifyFatal(ctx, fmt.Errorf("abort phase: %w", err))
		}
	}

	if cfg.FindCointegrated {
		logger.Info("Phase: screen for cointegrated pairs")
		if err := rescreen(ctx); err != nil {
			return notifyFatal(ctx, fmt.Errorf("screening phase: %w", err))
		}
	}

	if err := startStream(ctx); err != nil {
		logger.Warn("Live price stream unavailable, falling back to candle closes",
			zap.Error(err))
	}

	logger.Info("Entering trading loop",
		zap.Bool("manage_exits", cfg.ManageExits),
		zap.Bool("place_trades", cfg.PlaceTrades),
		zap.Duration("loop_delay", cfg.LoopDelay))

	for {
		if cfg.ManageExits {
			if err := engine.ManageExits(ctx); err != nil {
				logger.Error("Exit management failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-time.After(cfg.LoopDelay):
		}

		if cfg.PlaceTrades {
			if err := engine.PlaceEntries(ctx); err != nil {
				logger.Error("Entry placement failed", zap.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case <-time.After(cfg.LoopDelay):
		}
	}
}

// rescreen rebuilds the price matrix, screens it, and atomically replaces
// the persisted pair cache. The previous cache survives any failure.
func rescreen(ctx context.Context) error {
	matrix, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	pairs, err := pairScreener.Screen(ctx, matrix)
	if err != nil {
		return err
	}

	if err := store.ReplacePairs(ctx, pairs, time.Now().UTC()); err != nil {
		return err
	}

	logger.Info("Pair cache refreshed",
		zap.Int("markets", len(matrix.Columns())),
		zap.Int("pairs", len(pairs)))
	return nil
}

// startStream subscribes to live tickers for every symbol appearing in the
// cached pairs, keeping the price cache warm for order sizing.
func startStream(ctx context.Context) error {
	rows, err := store.Pairs(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var symbols []string
	for _, row := range rows {
		for _, s := range []string{row.FirstMarket, row.SecondMarket} {
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	client := stream.NewClient(cfg, dataCache, symbols, logger)
	if err := client.Connect(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		client.Close()
	}()
	return nil
}

// notifyFatal alerts the operator before the engine exits on error.
func notifyFatal(ctx context.Context, err error) error {
	if nerr := notifier.Send(ctx, fmt.Sprintf("pairtrader fatal: %v", err)); nerr != nil {
		logger.Warn("Fatal notification failed", zap.Error(nerr))
	}
	return err
}
