package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const broadcastTimeout = 30 * time.Minute

// Schedule registers the daily broadcast on a cron scheduler running in the
// named time zone. The caller starts and stops the returned scheduler.
func (b *Bot) Schedule(ctx context.Context, spec, timezone string) (*cron.Cron, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", timezone, err)
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(b.log.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
		defer cancel()
		if _, err := b.Broadcast(ctx); err != nil {
			b.log.Error("daily broadcast", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	b.log.Info("daily broadcast scheduled", "spec", spec, "timezone", timezone)
	return c, nil
}
