package chasebtc

import (
	"net/url"
	"strconv"
	"time"
)

// DateLayout is the format of request and response dates.
const DateLayout = "2006-01-02"

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// PredictParams are the optional /predict query parameters. Nil fields use
// server defaults.
type PredictParams struct {
	Threshold  *float64 `json:"threshold,omitempty"`
	StopLoss   *float64 `json:"sl,omitempty"`
	TakeProfit *float64 `json:"tp,omitempty"`
	DaysBack   *int     `json:"days_back,omitempty"`
}

// Query encodes the parameters as URL query values.
func (p PredictParams) Query() url.Values {
	q := url.Values{}
	setFloat(q, "threshold", p.Threshold)
	setFloat(q, "sl", p.StopLoss)
	setFloat(q, "tp", p.TakeProfit)
	if p.DaysBack != nil {
		q.Set("days_back", strconv.Itoa(*p.DaysBack))
	}
	return q
}

// BacktestParams are the optional /backtest query parameters. Dates are
// YYYY-MM-DD; empty or nil fields use server defaults.
type BacktestParams struct {
	StartDate      string   `json:"start_date,omitempty"`
	EndDate        string   `json:"end_date,omitempty"`
	Threshold      *float64 `json:"threshold,omitempty"`
	StopLoss       *float64 `json:"sl,omitempty"`
	TakeProfit     *float64 `json:"tp,omitempty"`
	InitialCapital *float64 `json:"initial_capital,omitempty"`
	PositionSize   *float64 `json:"position_size,omitempty"`
	PeriodsPerYear *float64 `json:"periods_per_year,omitempty"`
}

// Query encodes the parameters as URL query values.
func (p BacktestParams) Query() url.Values {
	q := url.Values{}
	if p.StartDate != "" {
		q.Set("start_date", p.StartDate)
	}
	if p.EndDate != "" {
		q.Set("end_date", p.EndDate)
	}
	setFloat(q, "threshold", p.Threshold)
	setFloat(q, "sl", p.StopLoss)
	setFloat(q, "tp", p.TakeProfit)
	setFloat(q, "initial_capital", p.InitialCapital)
	setFloat(q, "position_size", p.PositionSize)
	setFloat(q, "periods_per_year", p.PeriodsPerYear)
	return q
}

func setFloat(q url.Values, key string, v *float64) {
	if v != nil {
		q.Set(key, strconv.FormatFloat(*v, 'f', -1, 64))
	}
}

// Float returns a pointer to v, for optional parameters.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional parameters.
func Int(v int) *int { return &v }

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Features  string    `json:"features,omitempty"`
}

// PredictResponse is returned by GET /predict and pushed on /ws/signals.
// StopLoss is reported as a negative return.
type PredictResponse struct {
	Timestamp    time.Time `json:"timestamp"`
	BarTimestamp time.Time `json:"bar_timestamp"`
	Signal       string    `json:"signal"`
	Probability  float64   `json:"probability"`
	Confidence   float64   `json:"confidence"`
	Threshold    float64   `json:"threshold"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	ModelVersion string    `json:"model_version"`
}

// Metrics summarises a backtest. WinRatePct and AvgProfitPerClosedTrade are
// null when no trade closed.
type Metrics struct {
	Sharpe                  float64  `json:"sharpe"`
	MaxDrawdown             float64  `json:"max_drawdown"`
	CumulativeReturn        float64  `json:"cumulative_return"`
	FinalEquity             float64  `json:"final_equity"`
	TotalTrades             int      `json:"total_trades"`
	ClosedTrades            int      `json:"closed_trades"`
	WinRatePct              *float64 `json:"win_rate_pct"`
	AvgProfitPerClosedTrade *float64 `json:"avg_profit_per_closed_trade"`
}

// EquityPoint is one bar of the strategy and buy-and-hold equity curves.
type EquityPoint struct {
	Date       string  `json:"date"`
	Strategy   float64 `json:"strategy"`
	BuyAndHold float64 `json:"buy_and_hold"`
}

// Trade is one entry or exit. Profit fields are set on exits only.
type Trade struct {
	DateIdx        int      `json:"date_idx"`
	Date           string   `json:"date"`
	Action         string   `json:"action"`
	Price          float64  `json:"price"`
	SizeAsset      float64  `json:"size_asset"`
	SizeUSD        float64  `json:"size_usd"`
	RealizedProfit *float64 `json:"realized_profit,omitempty"`
	ReturnPct      *float64 `json:"return_pct,omitempty"`
}

// OpenPosition is a holding still open at the end of a backtest.
type OpenPosition struct {
	EntryIdx   int     `json:"entry_idx"`
	EntryDate  string  `json:"entry_date"`
	EntryPrice float64 `json:"entry_price"`
	SizeAsset  float64 `json:"size_asset"`
	SizeUSD    float64 `json:"size_usd"`
}

// BacktestResponse is returned by GET /backtest and the gRPC Run method.
type BacktestResponse struct {
	RunID        string         `json:"run_id"`
	Cached       bool           `json:"cached"`
	Params       BacktestParams `json:"params"`
	Metrics      Metrics        `json:"metrics"`
	EquityCurve  []EquityPoint  `json:"equity_curve"`
	Trades       []Trade        `json:"trades"`
	OpenPosition *OpenPosition  `json:"open_position,omitempty"`
}

// UpdateResponse is returned by POST /update.
type UpdateResponse struct {
	Status  string `json:"status"`
	Rows    int    `json:"rows"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
