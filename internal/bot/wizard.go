package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chasebtc/internal/domain"
	"chasebtc/internal/signal"
)

// step is a /config wizard stage.
type step int

const (
	stepThreshold step = iota
	stepStopLoss
	stepTakeProfit
	stepPositionSize
)

type stepInfo struct {
	field   string
	label   string
	prompt  string
	example string
}

var steps = [...]stepInfo{
	stepThreshold: {
		field:   "threshold",
		label:   "Threshold",
		prompt:  "⚙️ Let's set up your trading preferences.\n\nStep 1/4: choose the decision threshold (0 to 1). Tap a value or send a number:",
		example: "0.5",
	},
	stepStopLoss: {
		field:   "stop_loss",
		label:   "Stop loss",
		prompt:  "Step 2/4: enter your stop loss as a fraction (0.05 means 5%).",
		example: "0.05",
	},
	stepTakeProfit: {
		field:   "take_profit",
		label:   "Take profit",
		prompt:  "Step 3/4: enter your take profit as a fraction (0.3 means 30%).",
		example: "0.3",
	},
	stepPositionSize: {
		field:   "position_size",
		label:   "Position size",
		prompt:  "Step 4/4: enter the share of equity to put into each trade (1.0 means 100%).",
		example: "1.0",
	},
}

var thresholdChoices = []string{"0.3", "0.5", "0.7"}

// wizard is one chat's in-progress /config conversation.
type wizard struct {
	step step
	cfg  domain.UserConfig
}

func (w *wizard) set(v float64) {
	switch w.step {
	case stepThreshold:
		w.cfg.Threshold = v
	case stepStopLoss:
		w.cfg.StopLoss = v
	case stepTakeProfit:
		w.cfg.TakeProfit = v
	case stepPositionSize:
		w.cfg.PositionSize = v
	}
}

func (b *Bot) startWizard(ctx context.Context, chatID int64) {
	cfg, err := b.store.Config(ctx, chatID)
	if err != nil {
		b.log.Error("loading config", "chat_id", chatID, "error", err)
		cfg = domain.DefaultUserConfig()
	}
	b.mu.Lock()
	b.wizards[chatID] = &wizard{step: stepThreshold, cfg: cfg}
	b.mu.Unlock()

	row := make([]tgbotapi.InlineKeyboardButton, 0, len(thresholdChoices))
	for _, c := range thresholdChoices {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(c, c))
	}
	msg := tgbotapi.NewMessage(chatID, steps[stepThreshold].prompt)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	if err := b.sendChattable(ctx, msg); err != nil {
		b.log.Warn("sending config prompt", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) cancelWizard(ctx context.Context, chatID int64) {
	b.mu.Lock()
	_, ok := b.wizards[chatID]
	delete(b.wizards, chatID)
	b.mu.Unlock()

	if !ok {
		b.send(ctx, chatID, "Nothing to cancel.", false)
		return
	}
	b.send(ctx, chatID, "❌ Configuration cancelled.", false)
}

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		b.log.Warn("answering callback", "error", err)
	}
	if q.Message == nil || q.Message.Chat == nil {
		return
	}
	chatID := q.Message.Chat.ID

	reply, ok := b.advance(ctx, chatID, q.Data, true)
	if !ok {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, q.Message.MessageID, reply)
	if err := b.sendChattable(ctx, edit); err != nil {
		b.log.Warn("editing config prompt", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleText(ctx context.Context, m *tgbotapi.Message) {
	reply, ok := b.advance(ctx, m.Chat.ID, m.Text, false)
	if !ok {
		b.send(ctx, m.Chat.ID, "Send /help to see what I can do.", false)
		return
	}
	b.send(ctx, m.Chat.ID, reply, false)
}

// advance feeds input to the chat's wizard and returns the reply. ok is
// false when no wizard is waiting for this kind of input. Button presses
// only apply to the threshold step.
func (b *Bot) advance(ctx context.Context, chatID int64, input string, fromButton bool) (reply string, ok bool) {
	b.mu.Lock()
	w := b.wizards[chatID]
	if w == nil || (fromButton && w.step != stepThreshold) {
		b.mu.Unlock()
		return "", false
	}

	cur := w.step
	v, err := parseStep(cur, input)
	if err != nil {
		b.mu.Unlock()
		return invalidText(cur, err), true
	}
	w.set(v)

	if cur < stepPositionSize {
		w.step++
		next := w.step
		b.mu.Unlock()
		return fmt.Sprintf("✅ %s set to %s.\n\n%s", steps[cur].label, formatValue(v), steps[next].prompt), true
	}

	cfg := w.cfg
	delete(b.wizards, chatID)
	b.mu.Unlock()

	if err := b.store.SaveConfig(ctx, chatID, cfg); err != nil {
		b.log.Error("saving config", "chat_id", chatID, "error", err)
		return "⚠️ Could not save your config, please run /config again.", true
	}
	b.log.Info("config saved", "chat_id", chatID,
		"threshold", cfg.Threshold, "sl", cfg.StopLoss, "tp", cfg.TakeProfit, "position_size", cfg.PositionSize)
	return savedText(cfg), true
}

// parseStep parses a wizard answer. A trailing % divides by 100.
func parseStep(s step, input string) (float64, error) {
	text := strings.TrimSpace(input)
	percent := strings.HasSuffix(text, "%")
	text = strings.TrimSpace(strings.TrimSuffix(text, "%"))

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, domain.Invalid(steps[s].field, "%q is not a number", strings.TrimSpace(input))
	}
	if percent {
		v /= 100
	}

	if s == stepPositionSize {
		if !(v > 0 && v <= 1) {
			return 0, domain.Invalid(steps[s].field, "%v is outside (0,1]", v)
		}
		return v, nil
	}
	return v, signal.Validate(steps[s].field, v)
}

func invalidText(s step, err error) string {
	reason := err.Error()
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		reason = ve.Reason
	}
	return fmt.Sprintf("⚠️ %s. Please enter a valid number (e.g. %s), or /cancel.", reason, steps[s].example)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
