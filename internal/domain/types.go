// Package domain defines the core types shared across chasebtc: bars and
// feature rows, signals, positions, trades, equity points, and metrics.
package domain

import (
	"time"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Signal is the categorical action derived from a model probability.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalHold Signal = "HOLD"
)

// TradeAction identifies what a trade record did to the position.
type TradeAction string

const (
	ActionBuy        TradeAction = "BUY"
	ActionSell       TradeAction = "SELL"
	ActionStopLoss   TradeAction = "STOP_LOSS"
	ActionTakeProfit TradeAction = "TAKE_PROFIT"
)

// IsClose reports whether the action closes an open position.
func (a TradeAction) IsClose() bool {
	switch a {
	case ActionSell, ActionStopLoss, ActionTakeProfit:
		return true
	case ActionBuy:
		return false
	}
	return false
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV bar for the traded asset.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// FeatureRow is one model-ready row produced by the feature pipeline.
type FeatureRow struct {
	Timestamp    time.Time `json:"timestamp"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	Return1      float64   `json:"return_1"`
	SMA7Ratio    float64   `json:"sma7_ratio"`
	SMA30Ratio   float64   `json:"sma30_ratio"`
	Volatility14 float64   `json:"volatility_14"`
	RSI14        float64   `json:"rsi_14"`
}

// ---------------------------------------------------------------------------
// Simulation records
// ---------------------------------------------------------------------------

// Position is an open long holding. A flat book is represented by a nil
// *Position.
type Position struct {
	EntryIdx   int       `json:"entry_idx"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	SizeAsset  float64   `json:"size_asset"`
	SizeUSD    float64   `json:"size_usd"`
}

// Trade is emitted each time a position opens or closes. RealizedProfit and
// ReturnPct are set only for closing actions.
type Trade struct {
	DateIdx        int         `json:"date_idx"`
	Date           time.Time   `json:"date"`
	Action         TradeAction `json:"action"`
	Price          float64     `json:"price"`
	SizeAsset      float64     `json:"size_asset"`
	SizeUSD        float64     `json:"size_usd"`
	RealizedProfit *float64    `json:"realized_profit,omitempty"`
	ReturnPct      *float64    `json:"return_pct,omitempty"`
}

// EquityPoint is the mark-to-market value of the strategy and of a passive
// buy-and-hold baseline at one bar.
type EquityPoint struct {
	Date       time.Time `json:"date"`
	Strategy   float64   `json:"strategy"`
	BuyAndHold float64   `json:"buy_and_hold"`
}

// Metrics summarises a completed backtest. WinRatePct and
// AvgProfitPerClosedTrade are nil when no trade closed.
type Metrics struct {
	SharpeRatio             float64  `json:"sharpe_ratio"`
	MaxDrawdownPct          float64  `json:"max_drawdown_pct"`
	CumulativeReturn        float64  `json:"cumulative_return"`
	FinalEquity             float64  `json:"final_equity"`
	TotalTrades             int      `json:"total_trades"`
	ClosedTrades            int      `json:"closed_trades"`
	WinRatePct              *float64 `json:"win_rate_pct"`
	AvgProfitPerClosedTrade *float64 `json:"avg_profit_per_closed_trade"`
}

// ---------------------------------------------------------------------------
// Live prediction
// ---------------------------------------------------------------------------

// Prediction is a live trading signal derived from the latest model output.
type Prediction struct {
	Timestamp    time.Time `json:"timestamp"`
	BarTimestamp time.Time `json:"bar_timestamp"`
	Signal       Signal    `json:"signal"`
	Probability  float64   `json:"probability"`
	Confidence   float64   `json:"confidence"`
	Threshold    float64   `json:"threshold"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	ModelVersion string    `json:"model_version"`
}

// UserConfig holds a chat user's trading preferences.
type UserConfig struct {
	Threshold    float64 `json:"threshold"`
	StopLoss     float64 `json:"sl"`
	TakeProfit   float64 `json:"tp"`
	PositionSize float64 `json:"position_size"`
}

// DefaultUserConfig returns the preferences applied to users who never ran
// the configuration wizard.
func DefaultUserConfig() UserConfig {
	return UserConfig{
		Threshold:    0.27,
		StopLoss:     0.05,
		TakeProfit:   0.30,
		PositionSize: 1.0,
	}
}
