package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"chasebtc/internal/api"
	"chasebtc/internal/backtest"
	"chasebtc/internal/config"
	"chasebtc/internal/events"
	"chasebtc/internal/features"
	"chasebtc/internal/httpapi"
	"chasebtc/internal/prediction"
	"chasebtc/internal/service"
	"chasebtc/internal/util"
)

func main() {
	refresh := flag.Bool("refresh", false, "rebuild the feature file from Alpaca before serving")
	flag.Parse()

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	defaults, err := service.DefaultsFromConfig(cfg.Backtest)
	if err != nil {
		log.Fatalf("backtest defaults: %v", err)
	}

	// Data path: Alpaca bars -> features -> model.
	fetcher := features.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, logger)
	store := features.NewStore(cfg.Storage.FeaturesFile)
	pipeline := features.NewPipeline(fetcher, store, cfg.Alpaca.Symbol, logger)
	model := prediction.NewModelClient(cfg.Model.URL, cfg.Model.Version, cfg.Model.Timeout, logger)

	// Result cache: in-process LRU, then Redis when configured.
	stores := []backtest.ResultStore{backtest.NewMemoryStore(cfg.Backtest.CacheSize, cfg.Backtest.CacheTTL)}
	if cfg.Redis.Addr != "" {
		rs := backtest.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix, cfg.Backtest.CacheTTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rs.HealthCheck(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, using in-process cache only", "addr", cfg.Redis.Addr, "error", err)
			rs.Close()
		} else {
			defer rs.Close()
			stores = append(stores, rs)
		}
	}
	cache := backtest.NewCache(logger, stores...)

	svc := service.New(pipeline, store, model, cache, defaults, logger)
	hub := httpapi.NewHub(logger)
	publishers := service.Publishers{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer kp.Close()
		publishers = append(publishers, kp)
		logger.Info("streaming signals to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	svc.SetPublisher(publishers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *refresh {
		if _, err := svc.Refresh(ctx); err != nil {
			log.Fatalf("refreshing features: %v", err)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           httpapi.NewServer(svc, hub, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcServer := api.NewGRPCServer(api.NewServer(svc, logger))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr())
		if err != nil {
			return err
		}
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down chase-server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
