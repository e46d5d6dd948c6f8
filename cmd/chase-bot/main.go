package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chasebtc/internal/bot"
	"chasebtc/internal/config"
	"chasebtc/internal/subscribers"
	"chasebtc/internal/util"
	"chasebtc/pkg/chasebtc"
)

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Telegram.Token == "" {
		log.Fatal("missing telegram token: set TELEGRAM_TOKEN or telegram.token")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		log.Fatalf("opening subscriber store: %v", err)
	}
	defer store.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatalf("connecting to telegram: %v", err)
	}
	logger.Info("authorized on telegram", "account", botAPI.Self.UserName)

	client := chasebtc.NewClient(cfg.Telegram.APIURL)
	b := bot.New(botAPI, client, store, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := client.Health(ctx); err != nil {
		logger.Warn("chasebtc api not reachable yet", "url", cfg.Telegram.APIURL, "error", err)
	}

	scheduler, err := b.Schedule(ctx, cfg.Telegram.DailyCron, cfg.Telegram.Timezone)
	if err != nil {
		log.Fatalf("scheduling daily signal: %v", err)
	}
	scheduler.Start()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := botAPI.GetUpdatesChan(u)

	b.Run(ctx, updates)

	logger.Info("shutting down chase-bot")
	botAPI.StopReceivingUpdates()
	<-scheduler.Stop().Done()
}

type closableStore interface {
	subscribers.Store
	Close() error
}

func openStore(s config.Storage, logger *slog.Logger) (closableStore, error) {
	if s.PostgresDSN == "" {
		return subscribers.NewSQLiteStore(s.SQLitePath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return subscribers.NewPgStore(ctx, s.PostgresDSN, logger)
}
