package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"chasebtc/internal/config"
	"chasebtc/internal/features"
	"chasebtc/internal/util"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	start := flag.String("start", cfg.Backtest.StartDate, "first bar date to fetch (YYYY-MM-DD)")
	out := flag.String("out", cfg.Storage.FeaturesFile, "feature parquet file to write")
	flag.Parse()

	startDate, err := time.Parse(time.DateOnly, *start)
	if err != nil {
		log.Fatalf("parsing -start: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	fetcher := features.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	store := features.NewStore(*out)
	pipeline := features.NewPipeline(fetcher, store, cfg.Alpaca.Symbol, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	began := time.Now()
	n, err := pipeline.Refresh(ctx, startDate)
	if err != nil {
		log.Fatalf("refreshing features: %v", err)
	}
	version, err := store.Version(ctx)
	if err != nil {
		log.Fatalf("reading feature version: %v", err)
	}
	logger.Info("feature file written",
		"path", store.Path(), "rows", n, "version", version, "elapsed", time.Since(began).Round(time.Millisecond))
}
