// Package dashboard provides formatting and aggregation for backtest and
// live-signal views, shared by the terminal client and the chat bot.
package dashboard

import (
	"fmt"
	"sort"

	"chasebtc/pkg/chasebtc"
)

// KPI is one headline figure. Sign is +1, 0 or -1 and drives coloring.
type KPI struct {
	Label string
	Value string
	Sign  int
}

// KPIs returns the headline row for a backtest: final equity, cumulative
// return, Sharpe, max drawdown, trade counts and win rate.
func KPIs(m chasebtc.Metrics) []KPI {
	winRate := "-"
	winSign := 0
	if m.WinRatePct != nil {
		winRate = fmt.Sprintf("%.1f%%", *m.WinRatePct)
		winSign = sign(*m.WinRatePct - 50)
	}
	return []KPI{
		{Label: "Final equity", Value: FormatUSD(m.FinalEquity), Sign: sign(m.CumulativeReturn)},
		{Label: "Return", Value: FormatReturn(m.CumulativeReturn), Sign: sign(m.CumulativeReturn)},
		{Label: "Sharpe", Value: FormatRatio(m.Sharpe), Sign: sign(m.Sharpe)},
		{Label: "Max drawdown", Value: FormatPercent(m.MaxDrawdown), Sign: -sign(m.MaxDrawdown)},
		{Label: "Trades", Value: fmt.Sprintf("%d/%d", m.ClosedTrades, m.TotalTrades)},
		{Label: "Win rate", Value: winRate, Sign: winSign},
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Trade log
// ---------------------------------------------------------------------------

// Sort modes for the trade log.
const (
	SortByDate   = iota // newest first
	SortByProfit        // closed trades by realized profit, entries last
	sortModes
)

// NextSortMode cycles through the sort modes.
func NextSortMode(mode int) int {
	return (mode + 1) % sortModes
}

// SortModeLabel returns a short label for the sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortByProfit:
		return "profit"
	default:
		return "date"
	}
}

// TradeRow is a display-ready trade. Sign is the sign of the realized
// profit, 0 for entries.
type TradeRow struct {
	Date   string
	Action string
	Price  string
	Size   string
	Profit string
	Return string
	Sign   int

	profit float64
	idx    int
	closed bool
}

// TradeRows formats trades for the trade log in the given sort mode.
func TradeRows(trades []chasebtc.Trade, mode int) []TradeRow {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		r := TradeRow{
			Date:   t.Date,
			Action: t.Action,
			Price:  FormatPrice(t.Price),
			Size:   FormatUSD(t.SizeUSD),
			idx:    i,
		}
		if t.RealizedProfit != nil {
			r.closed = true
			r.profit = *t.RealizedProfit
			r.Profit = FormatProfit(r.profit)
			r.Sign = sign(r.profit)
		}
		if t.ReturnPct != nil {
			r.Return = FormatReturn(*t.ReturnPct)
		}
		rows[i] = r
	}

	switch mode {
	case SortByProfit:
		sort.SliceStable(rows, func(a, b int) bool {
			if rows[a].closed != rows[b].closed {
				return rows[a].closed
			}
			return rows[a].profit > rows[b].profit
		})
	default:
		sort.SliceStable(rows, func(a, b int) bool { return rows[a].idx > rows[b].idx })
	}
	return rows
}

// Curves splits an equity curve into strategy and buy-and-hold series.
func Curves(points []chasebtc.EquityPoint) (strategy, buyAndHold []float64) {
	strategy = make([]float64, len(points))
	buyAndHold = make([]float64, len(points))
	for i, p := range points {
		strategy[i] = p.Strategy
		buyAndHold[i] = p.BuyAndHold
	}
	return strategy, buyAndHold
}
