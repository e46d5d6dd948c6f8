// Package bot is the Telegram front end: subscriptions, on-demand signals
// and backtests, the /config wizard and the daily signal broadcast.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chasebtc/internal/domain"
	"chasebtc/internal/subscribers"
	"chasebtc/internal/util"
	"chasebtc/pkg/chasebtc"
)

const (
	backtestStart   = "2020-01-01"
	backtestCapital = 1000.0

	// Telegram allows about 30 messages per second across all chats.
	sendRate  = 25
	sendBurst = 10

	requestTimeout = 2 * time.Minute
	updateWorkers  = 8
)

// Sender delivers outgoing Telegram calls. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// API is the part of the chasebtc HTTP API the bot uses.
type API interface {
	Predict(ctx context.Context, p chasebtc.PredictParams) (*chasebtc.PredictResponse, error)
	Backtest(ctx context.Context, p chasebtc.BacktestParams) (*chasebtc.BacktestResponse, error)
}

// Compile-time interface checks.
var (
	_ Sender = (*tgbotapi.BotAPI)(nil)
	_ API    = (*chasebtc.Client)(nil)
)

// Bot handles Telegram updates.
type Bot struct {
	sender  Sender
	api     API
	store   subscribers.Store
	log     *slog.Logger
	limiter *util.RateLimiter
	now     func() time.Time

	mu      sync.Mutex
	wizards map[int64]*wizard
}

// New creates a Bot.
func New(sender Sender, api API, store subscribers.Store, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		sender:  sender,
		api:     api,
		store:   store,
		log:     log.With("component", "bot"),
		limiter: util.NewRateLimiter(sendRate, sendBurst),
		now:     time.Now,
		wizards: make(map[int64]*wizard),
	}
}

// Run handles updates until ctx is done or the channel closes. Updates are
// spread over a fixed set of workers by chat, so one chat's updates are
// handled in arrival order while different chats proceed in parallel. Run
// waits for the workers before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	var wg sync.WaitGroup
	queues := make([]chan tgbotapi.Update, updateWorkers)
	for i := range queues {
		queues[i] = make(chan tgbotapi.Update, 16)
		wg.Add(1)
		go func(q <-chan tgbotapi.Update) {
			defer wg.Done()
			for u := range q {
				b.HandleUpdate(ctx, u)
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			select {
			case queues[shard(u)] <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

// shard picks the worker for an update's chat.
func shard(u tgbotapi.Update) int {
	var id int64
	switch {
	case u.CallbackQuery != nil:
		// Inline-mode callbacks carry no message.
		if u.CallbackQuery.Message != nil && u.CallbackQuery.Message.Chat != nil {
			id = u.CallbackQuery.Message.Chat.ID
		}
	default:
		if c := u.FromChat(); c != nil {
			id = c.ID
		}
	}
	if id < 0 {
		id = -id
	}
	return int(id % updateWorkers)
}

// HandleUpdate dispatches a single update.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch {
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	case u.Message == nil || u.Message.Chat == nil:
		return
	case u.Message.IsCommand():
		b.handleCommand(ctx, u.Message)
	default:
		b.handleText(ctx, u.Message)
	}
}

func (b *Bot) handleCommand(ctx context.Context, m *tgbotapi.Message) {
	chatID := m.Chat.ID
	b.log.Debug("command", "chat_id", chatID, "command", m.Command())

	switch m.Command() {
	case "start":
		b.start(ctx, chatID)
	case "stop":
		b.stop(ctx, chatID)
	case "signal":
		b.signal(ctx, chatID)
	case "backtest":
		b.backtest(ctx, chatID)
	case "learn":
		for _, text := range learnMessages {
			b.send(ctx, chatID, text, true)
		}
	case "config":
		b.startWizard(ctx, chatID)
	case "cancel":
		b.cancelWizard(ctx, chatID)
	case "help":
		b.send(ctx, chatID, helpText, false)
	default:
		b.send(ctx, chatID, "Unknown command.\n\n"+helpText, false)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (b *Bot) start(ctx context.Context, chatID int64) {
	if err := b.store.Subscribe(ctx, chatID); err != nil {
		b.log.Error("subscribing", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "⚠️ Could not subscribe you right now, please try again later.", false)
		return
	}
	b.send(ctx, chatID, welcomeText, false)
}

func (b *Bot) stop(ctx context.Context, chatID int64) {
	if err := b.store.Unsubscribe(ctx, chatID); err != nil {
		b.log.Error("unsubscribing", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "⚠️ Could not unsubscribe you right now, please try again later.", false)
		return
	}
	b.send(ctx, chatID, "🔕 Daily signals stopped. Send /start to subscribe again.", false)
}

func (b *Bot) signal(ctx context.Context, chatID int64) {
	cfg, err := b.store.Config(ctx, chatID)
	if err != nil {
		b.log.Error("loading config", "chat_id", chatID, "error", err)
		cfg = domain.DefaultUserConfig()
	}
	p, err := b.api.Predict(ctx, predictParams(cfg))
	if err != nil {
		b.log.Warn("predict failed", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "⚠️ Error fetching prediction: "+err.Error(), false)
		return
	}
	b.send(ctx, chatID, signalText(p), true)
}

func (b *Bot) backtest(ctx context.Context, chatID int64) {
	cfg, err := b.store.Config(ctx, chatID)
	if err != nil {
		b.log.Error("loading config", "chat_id", chatID, "error", err)
		cfg = domain.DefaultUserConfig()
	}
	bt, err := b.api.Backtest(ctx, backtestParams(cfg, b.now()))
	if err != nil {
		b.log.Warn("backtest failed", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "⚠️ Error running backtest: "+err.Error(), false)
		return
	}
	b.send(ctx, chatID, backtestText(bt), true)
}

// ---------------------------------------------------------------------------
// Daily broadcast
// ---------------------------------------------------------------------------

// Broadcast sends every subscriber today's signal and a backtest of their
// settings. Per-user failures are logged and skipped. Users who blocked the
// bot are unsubscribed.
func (b *Bot) Broadcast(ctx context.Context) (int, error) {
	ids, err := b.store.Subscribers(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, chatID := range ids {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		text, err := b.dailyText(ctx, chatID)
		if err != nil {
			b.log.Warn("daily signal failed", "chat_id", chatID, "error", err)
			continue
		}
		if err := b.deliver(ctx, chatID, text, true); err != nil {
			b.log.Warn("daily signal not delivered", "chat_id", chatID, "error", err)
			if isBlocked(err) {
				if err := b.store.Unsubscribe(ctx, chatID); err != nil {
					b.log.Error("unsubscribing blocked chat", "chat_id", chatID, "error", err)
				}
			}
			continue
		}
		sent++
	}
	b.log.Info("daily broadcast complete", "subscribers", len(ids), "sent", sent)
	return sent, nil
}

func (b *Bot) dailyText(ctx context.Context, chatID int64) (string, error) {
	cfg, err := b.store.Config(ctx, chatID)
	if err != nil {
		return "", err
	}
	p, err := b.api.Predict(ctx, predictParams(cfg))
	if err != nil {
		return "", err
	}
	bt, err := b.api.Backtest(ctx, backtestParams(cfg, b.now()))
	if err != nil {
		return "", err
	}
	return dailyText(p, bt, cfg), nil
}

// ---------------------------------------------------------------------------
// Sending
// ---------------------------------------------------------------------------

// send delivers text and logs failures.
func (b *Bot) send(ctx context.Context, chatID int64, text string, markdown bool) {
	if err := b.deliver(ctx, chatID, text, markdown); err != nil {
		b.log.Warn("sending message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) deliver(ctx context.Context, chatID int64, text string, markdown bool) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	return b.sendChattable(ctx, msg)
}

func (b *Bot) sendChattable(ctx context.Context, c tgbotapi.Chattable) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.sender.Send(c)
	return err
}

func isBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

func predictParams(cfg domain.UserConfig) chasebtc.PredictParams {
	return chasebtc.PredictParams{
		Threshold:  chasebtc.Float(cfg.Threshold),
		StopLoss:   chasebtc.Float(cfg.StopLoss),
		TakeProfit: chasebtc.Float(cfg.TakeProfit),
	}
}

func backtestParams(cfg domain.UserConfig, now time.Time) chasebtc.BacktestParams {
	return chasebtc.BacktestParams{
		StartDate:      backtestStart,
		EndDate:        now.UTC().Format(chasebtc.DateLayout),
		Threshold:      chasebtc.Float(cfg.Threshold),
		StopLoss:       chasebtc.Float(cfg.StopLoss),
		TakeProfit:     chasebtc.Float(cfg.TakeProfit),
		InitialCapital: chasebtc.Float(backtestCapital),
		PositionSize:   chasebtc.Float(cfg.PositionSize),
	}
}
