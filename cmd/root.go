package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gmcnicol/pairtrader/internal/cache"
	"github.com/gmcnicol/pairtrader/internal/config"
	"github.com/gmcnicol/pairtrader/internal/exchange"
	"github.com/gmcnicol/pairtrader/internal/ledger"
	"github.com/gmcnicol/pairtrader/internal/marketdata"
	"github.com/gmcnicol/pairtrader/internal/notify"
	"github.com/gmcnicol/pairtrader/internal/risk"
	"github.com/gmcnicol/pairtrader/internal/screener"
	"github.com/gmcnicol/pairtrader/internal/trader"
)

var (
	// Global instances
	cfg          *config.Config
	ex           *exchange.Binance
	store        *ledger.Store
	dataCache    *cache.Cache
	riskManager  *risk.Manager
	notifier     notify.Notifier
	builder      *marketdata.Builder
	pairScreener *screener.Screener
	engine       *trader.Trader
	logger       *zap.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pairtrader",
	Short: "Statistical pairs-trading engine for Binance spot markets",
	Long: `pairtrader screens a quote currency's spot markets for cointegrated
pairs, then trades the spread: opening hedged positions when the rolling
z-score diverges and closing them when it reverts through zero.`,
	PersistentPreRunE: initializeApp,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogger)
}

// initLogger configures logging: default INFO, DEBUG if DEBUG env is truthy.
func initLogger() {
	verbose := false
	if v := os.Getenv("DEBUG"); v == "true" || v == "1" || v == "yes" {
		verbose = true
	}

	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zcfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	var err error
	logger, err = zcfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
}

// initializeApp sets up all dependencies
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ex = exchange.NewBinance(cfg.BinanceAPIKey, cfg.BinanceSecretKey, logger)
	store, err = ledger.Open(cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	resolution, err := cfg.ResolutionDuration()
	if err != nil {
		return err
	}
	dataCache = cache.NewCache(resolution, cfg.LivePriceTTL)
	riskManager = risk.New(cfg, logger)
	notifier = notify.New(cfg, logger)
	builder = marketdata.NewBuilder(ex, cfg, logger)
	pairScreener = screener.New(cfg, logger)
	engine = trader.New(cfg, ex, store, dataCache, riskManager, logger)

	logger.Info("Components initialized",
		zap.String("quote_currency", cfg.QuoteCurrency),
		zap.String("resolution", cfg.Resolution),
		zap.Duration("resolution_interval", resolution),
		zap.String("database", cfg.DatabasePath))
	return nil
}

// closeStore flushes and closes the ledger; called by commands on exit.
func closeStore() {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		logger.Warn("Failed to close ledger", zap.Error(err))
	}
}
