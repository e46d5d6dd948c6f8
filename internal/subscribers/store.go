// Package subscribers persists chat bot subscriptions and per-user trading
// preferences.
package subscribers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chasebtc/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Store is a keyed store of subscriptions and user configs.
type Store interface {
	// Subscribe adds chatID to the daily broadcast. Repeat calls are no-ops.
	Subscribe(ctx context.Context, chatID int64) error

	// Unsubscribe removes chatID from the daily broadcast.
	Unsubscribe(ctx context.Context, chatID int64) error

	// Subscribers lists subscribed chat ids in subscription order.
	Subscribers(ctx context.Context) ([]int64, error)

	// Config returns the user's saved preferences, or the defaults.
	Config(ctx context.Context, chatID int64) (domain.UserConfig, error)

	// SaveConfig replaces the user's preferences.
	SaveConfig(ctx context.Context, chatID int64, cfg domain.UserConfig) error
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
	chat_id       INTEGER PRIMARY KEY,
	subscribed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS user_configs (
	chat_id       INTEGER PRIMARY KEY,
	threshold     REAL NOT NULL,
	stop_loss     REAL NOT NULL,
	take_profit   REAL NOT NULL,
	position_size REAL NOT NULL,
	updated_at    INTEGER NOT NULL
);`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbPath, err)
	}
	// One writer avoids SQLITE_BUSY between the bot's handlers and cron job.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

func (s *SQLiteStore) Subscribe(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, subscribed_at) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("subscribing %d: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) Unsubscribe(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("unsubscribing %d: %w", chatID, err)
	}
	return nil
}

func (s *SQLiteStore) Subscribers(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM subscribers ORDER BY subscribed_at, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning subscriber: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---------------------------------------------------------------------------
// User configs
// ---------------------------------------------------------------------------

func (s *SQLiteStore) Config(ctx context.Context, chatID int64) (domain.UserConfig, error) {
	var cfg domain.UserConfig
	err := s.db.QueryRowContext(ctx,
		`SELECT threshold, stop_loss, take_profit, position_size FROM user_configs WHERE chat_id = ?`,
		chatID).Scan(&cfg.Threshold, &cfg.StopLoss, &cfg.TakeProfit, &cfg.PositionSize)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultUserConfig(), nil
	}
	if err != nil {
		return domain.UserConfig{}, fmt.Errorf("loading config for %d: %w", chatID, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveConfig(ctx context.Context, chatID int64, cfg domain.UserConfig) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_configs (chat_id, threshold, stop_loss, take_profit, position_size, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET
		   threshold = excluded.threshold,
		   stop_loss = excluded.stop_loss,
		   take_profit = excluded.take_profit,
		   position_size = excluded.position_size,
		   updated_at = excluded.updated_at`,
		chatID, cfg.Threshold, cfg.StopLoss, cfg.TakeProfit, cfg.PositionSize, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("saving config for %d: %w", chatID, err)
	}
	return nil
}
