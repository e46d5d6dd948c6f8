package subscribers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chasebtc/internal/domain"
)

// Compile-time interface check.
var _ Store = (*PgStore)(nil)

const pgSchema = `
CREATE TABLE IF NOT EXISTS bot_subscribers (
	chat_id       BIGINT PRIMARY KEY,
	subscribed_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bot_user_configs (
	chat_id       BIGINT PRIMARY KEY,
	threshold     DOUBLE PRECISION NOT NULL,
	stop_loss     DOUBLE PRECISION NOT NULL,
	take_profit   DOUBLE PRECISION NOT NULL,
	position_size DOUBLE PRECISION NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);`

// PgStore implements Store on PostgreSQL, for bots running several replicas
// against one database.
type PgStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	now  func() time.Time
}

// NewPgStore connects to the database at connStr, verifies connectivity and
// applies the schema.
func NewPgStore(ctx context.Context, connStr string, log *slog.Logger) (*PgStore, error) {
	if log == nil {
		log = slog.Default()
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	config.MaxConns = 4
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	log.Info("subscriber database connected", "max_conns", config.MaxConns)
	return &PgStore{pool: pool, log: log, now: time.Now}, nil
}

// Close shuts down the connection pool.
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgStore) Subscribe(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_subscribers (chat_id, subscribed_at) VALUES ($1, $2)
		 ON CONFLICT (chat_id) DO NOTHING`,
		chatID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("subscribing %d: %w", chatID, err)
	}
	return nil
}

func (s *PgStore) Unsubscribe(ctx context.Context, chatID int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM bot_subscribers WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("unsubscribing %d: %w", chatID, err)
	}
	return nil
}

func (s *PgStore) Subscribers(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT chat_id FROM bot_subscribers ORDER BY subscribed_at, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning subscribers: %w", err)
	}
	return ids, nil
}

func (s *PgStore) Config(ctx context.Context, chatID int64) (domain.UserConfig, error) {
	var cfg domain.UserConfig
	err := s.pool.QueryRow(ctx,
		`SELECT threshold, stop_loss, take_profit, position_size FROM bot_user_configs WHERE chat_id = $1`,
		chatID).Scan(&cfg.Threshold, &cfg.StopLoss, &cfg.TakeProfit, &cfg.PositionSize)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultUserConfig(), nil
	}
	if err != nil {
		return domain.UserConfig{}, fmt.Errorf("loading config for %d: %w", chatID, err)
	}
	return cfg, nil
}

func (s *PgStore) SaveConfig(ctx context.Context, chatID int64, cfg domain.UserConfig) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bot_user_configs (chat_id, threshold, stop_loss, take_profit, position_size, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (chat_id) DO UPDATE SET
		   threshold = EXCLUDED.threshold,
		   stop_loss = EXCLUDED.stop_loss,
		   take_profit = EXCLUDED.take_profit,
		   position_size = EXCLUDED.position_size,
		   updated_at = EXCLUDED.updated_at`,
		chatID, cfg.Threshold, cfg.StopLoss, cfg.TakeProfit, cfg.PositionSize, s.now().UTC())
	if err != nil {
		return fmt.Errorf("saving config for %d: %w", chatID, err)
	}
	return nil
}
