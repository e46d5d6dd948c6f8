package bot

import (
	"fmt"
	"strings"

	"chasebtc/internal/dashboard"
	"chasebtc/internal/domain"
	"chasebtc/pkg/chasebtc"
)

const helpText = `Available commands:
• /signal - today's prediction
• /backtest - backtest your settings since 2020
• /config - set your trading preferences
• /learn - key trading terms explained
• /stop - stop the daily signal`

const welcomeText = "👋 Welcome to ChaseBTC!\n\nYou are now subscribed to the daily signal ✅\n\n" + helpText

var learnMessages = []string{
	"📚 *ChaseBTC Learn Corner*\n\nA short tour of the terms you will see in signals and backtests.",
	"💡 *Bitcoin (BTC)*\nA digital currency that no bank or government controls. Its price moves a lot, which is what traders try to profit from.",
	"🎯 *Threshold*\nThe model outputs a probability that BTC rises. If it is at or above your threshold the signal is BUY, otherwise HOLD. A higher threshold means fewer, pickier trades.",
	"🛑 *Stop Loss*\nSells automatically once a trade has lost this much. Buy at $100 with a 5% stop and the position closes at $95.",
	"✅ *Take Profit*\nSells automatically once a trade has gained this much. Buy at $100 with a 20% target and the position closes at $120.",
	"📊 *Cumulative Return*\nTotal gain or loss over the whole backtest. $1,000 growing to $1,500 is +50%.",
	"📉 *Max Drawdown*\nThe worst fall from a peak to a later low. It is the pain you would have sat through before recovering.",
	"📈 *Sharpe Ratio*\nReturn per unit of risk. Higher means steadier gains; below zero means the strategy lost money on average.",
	"🚀 *Remember*\nBacktests describe the past, not the future. ChaseBTC is a learning tool, not financial advice.",
}

func signalText(p *chasebtc.PredictResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *ChaseBTC Signal*\n")
	fmt.Fprintf(&b, "Date: %s\n\n", p.BarTimestamp.UTC().Format(chasebtc.DateLayout))
	fmt.Fprintf(&b, "Action: *%s*\n", dashboard.SignalBadge(p.Signal))
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", dashboard.Conviction(p.Signal, p.Confidence))
	fmt.Fprintf(&b, "Threshold: %s", formatValue(p.Threshold))
	return b.String()
}

func backtestText(bt *chasebtc.BacktestResponse) string {
	m := bt.Metrics
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *Backtest Results* (since %s)\n", backtestStart)
	fmt.Fprintf(&b, "Final Equity: %s\n", dashboard.FormatUSD(m.FinalEquity))
	fmt.Fprintf(&b, "Cumulative Return: %s\n", dashboard.FormatReturn(m.CumulativeReturn))
	fmt.Fprintf(&b, "Sharpe Ratio: %s\n", dashboard.FormatRatio(m.Sharpe))
	fmt.Fprintf(&b, "Max Drawdown: %s\n", dashboard.FormatPercent(m.MaxDrawdown))
	fmt.Fprintf(&b, "Trades: %d closed of %d", m.ClosedTrades, m.TotalTrades)
	if m.WinRatePct != nil {
		fmt.Fprintf(&b, ", %.1f%% won", *m.WinRatePct)
	}
	if bt.OpenPosition != nil {
		fmt.Fprintf(&b, "\nOpen position since %s at %s", bt.OpenPosition.EntryDate, dashboard.FormatUSD(bt.OpenPosition.EntryPrice))
	}
	return b.String()
}

func dailyText(p *chasebtc.PredictResponse, bt *chasebtc.BacktestResponse, cfg domain.UserConfig) string {
	m := bt.Metrics
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 *Daily Signal*\n")
	fmt.Fprintf(&b, "Date: %s\n\n", p.BarTimestamp.UTC().Format(chasebtc.DateLayout))
	fmt.Fprintf(&b, "Action: *%s*\n", dashboard.SignalBadge(p.Signal))
	fmt.Fprintf(&b, "Confidence: %.1f%%\n", dashboard.Conviction(p.Signal, p.Confidence))
	fmt.Fprintf(&b, "Stop Loss: %s\n", dashboard.FormatPercent(cfg.StopLoss))
	fmt.Fprintf(&b, "Take Profit: %s\n\n", dashboard.FormatPercent(cfg.TakeProfit))
	fmt.Fprintf(&b, "📊 Backtest since %s:\n", backtestStart)
	fmt.Fprintf(&b, "• Cumulative Return: %s\n", dashboard.FormatReturn(m.CumulativeReturn))
	fmt.Fprintf(&b, "• Sharpe Ratio: %s\n", dashboard.FormatRatio(m.Sharpe))
	fmt.Fprintf(&b, "• Max Drawdown: %s", dashboard.FormatPercent(m.MaxDrawdown))
	return b.String()
}

func savedText(cfg domain.UserConfig) string {
	return fmt.Sprintf("🎉 Your config has been saved:\nThreshold: %s\nStop loss: %s\nTake profit: %s\nPosition size: %s",
		formatValue(cfg.Threshold),
		dashboard.FormatPercent(cfg.StopLoss),
		dashboard.FormatPercent(cfg.TakeProfit),
		dashboard.FormatPercent(cfg.PositionSize))
}
