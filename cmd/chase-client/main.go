package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chasebtc/internal/config"
	"chasebtc/internal/dashboard"
	"chasebtc/pkg/chasebtc"
)

// Styles.
var (
	buyStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	holdStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("250"))
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	labelStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sparkStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	holdSparkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	kpiBoxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
	errStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func signStyle(sign int) lipgloss.Style {
	switch {
	case sign > 0:
		return gainStyle
	case sign < 0:
		return lossStyle
	default:
		return lipgloss.NewStyle()
	}
}

const (
	thresholdStep = 0.05
	stopLossStep  = 0.01
	refreshEvery  = 5 * time.Minute
	maxTradeRows  = 200
)

// Messages.
type tickMsg time.Time

type predictMsg struct {
	resp *chasebtc.PredictResponse
	err  error
}

type backtestMsg struct {
	resp *chasebtc.BacktestResponse
	err  error
}

type signalMsg chasebtc.PredictResponse
type signalsClosedMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model.
type model struct {
	client  *chasebtc.Client
	signals <-chan chasebtc.PredictResponse
	logger  *slog.Logger

	// Parameters under user control.
	threshold  float64
	stopLoss   float64
	takeProfit float64
	startDate  string

	latest   *chasebtc.PredictResponse
	history  *dashboard.SignalHistory
	result   *chasebtc.BacktestResponse
	err      error
	running  bool
	live     bool
	sortMode int

	viewport      viewport.Model
	ready         bool
	width, height int
}

func initialModel(client *chasebtc.Client, signals <-chan chasebtc.PredictResponse, cfg config.Backtest, start string, logger *slog.Logger) model {
	return model{
		client:     client,
		signals:    signals,
		logger:     logger,
		threshold:  cfg.Threshold,
		stopLoss:   cfg.StopLoss,
		takeProfit: cfg.TakeProfit,
		startDate:  start,
		history:    dashboard.NewSignalHistory(10),
		running:    true,
		live:       signals != nil,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(), m.predictCmd(), m.backtestCmd()}
	if m.signals != nil {
		cmds = append(cmds, waitForSignal(m.signals))
	}
	return tea.Batch(cmds...)
}

func (m model) predictCmd() tea.Cmd {
	client := m.client
	p := chasebtc.PredictParams{
		Threshold:  chasebtc.Float(m.threshold),
		StopLoss:   chasebtc.Float(m.stopLoss),
		TakeProfit: chasebtc.Float(m.takeProfit),
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		resp, err := client.Predict(ctx, p)
		return predictMsg{resp: resp, err: err}
	}
}

func (m model) backtestCmd() tea.Cmd {
	client := m.client
	p := chasebtc.BacktestParams{
		StartDate:  m.startDate,
		Threshold:  chasebtc.Float(m.threshold),
		StopLoss:   chasebtc.Float(m.stopLoss),
		TakeProfit: chasebtc.Float(m.takeProfit),
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		resp, err := client.Backtest(ctx, p)
		return backtestMsg{resp: resp, err: err}
	}
}

func waitForSignal(ch <-chan chasebtc.PredictResponse) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return signalsClosedMsg{}
		}
		return signalMsg(p)
	}
}

// rerun refreshes the signal and backtest for the current parameters.
func (m *model) rerun() tea.Cmd {
	m.running = true
	m.err = nil
	return tea.Batch(m.predictCmd(), m.backtestCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+", "=":
			m.threshold = clampStep(m.threshold+thresholdStep, 0.05, 0.95)
			return m, m.rerun()
		case "-", "_":
			m.threshold = clampStep(m.threshold-thresholdStep, 0.05, 0.95)
			return m, m.rerun()
		case "]":
			m.stopLoss = clampStep(m.stopLoss+stopLossStep, 0.01, 0.5)
			return m, m.rerun()
		case "[":
			m.stopLoss = clampStep(m.stopLoss-stopLossStep, 0.01, 0.5)
			return m, m.rerun()
		case "r":
			return m, m.rerun()
		case "s":
			m.sortMode = dashboard.NextSortMode(m.sortMode)
			m.viewport.SetContent(m.renderContent())
			return m, nil
		case "home":
			m.viewport.GotoTop()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := m.height - 2
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(m.width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderContent())
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.predictCmd(), tickCmd())

	case predictMsg:
		if msg.err != nil {
			m.logger.Error("predict", "error", msg.err)
			m.err = msg.err
		} else {
			m.latest = msg.resp
			m.history.Add(*msg.resp)
		}
		m.refresh()
		return m, nil

	case backtestMsg:
		m.running = false
		if msg.err != nil {
			m.logger.Error("backtest", "error", msg.err)
			m.err = msg.err
		} else {
			m.result = msg.resp
			m.logger.Info("backtest loaded", "run_id", msg.resp.RunID, "cached", msg.resp.Cached,
				"trades", msg.resp.Metrics.TotalTrades)
		}
		m.refresh()
		return m, nil

	case signalMsg:
		p := chasebtc.PredictResponse(msg)
		m.history.Add(p)
		m.refresh()
		return m, waitForSignal(m.signals)

	case signalsClosedMsg:
		m.live = false
		m.logger.Warn("live signal stream closed")
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *model) refresh() {
	if m.ready {
		m.viewport.SetContent(m.renderContent())
	}
}

func clampStep(v, lo, hi float64) float64 {
	v = math.Round(v*100) / 100
	return math.Max(lo, math.Min(hi, v))
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func (m model) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := "ready"
	if m.running {
		status = "running..."
	}
	liveInfo := "live: off"
	if m.live {
		liveInfo = "live: on"
	}
	headerText := fmt.Sprintf(
		" ChaseBTC  BTC/USD    threshold: %.2f  sl: %.2f  tp: %.2f  since: %s    sort: %s    %s    %s ",
		m.threshold, m.stopLoss, m.takeProfit, orDefault(m.startDate, "default"),
		dashboard.SortModeLabel(m.sortMode), liveInfo, status,
	)
	headerBar := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("4")).
		Render(padOrTrunc(headerText, m.width))

	pct := m.viewport.ScrollPercent() * 100
	footerLeft := " q quit  +/- threshold  [/] stop loss  r rerun  s sort  pgup/dn scroll"
	footerRight := fmt.Sprintf("%.0f%% ", pct)
	gap := m.width - len(footerLeft) - len(footerRight)
	if gap < 0 {
		gap = 0
	}
	footerBar := lipgloss.NewStyle().
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("8")).
		Render(padOrTrunc(footerLeft+strings.Repeat(" ", gap)+footerRight, m.width))

	return headerBar + "\n" + m.viewport.View() + "\n" + footerBar
}

func (m model) renderContent() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(errStyle.Render("  error: " + m.err.Error()))
		b.WriteString("\n\n")
	}

	m.renderSignal(&b)
	b.WriteString("\n")

	if m.result == nil {
		b.WriteString(dimStyle.Render("  waiting for backtest..."))
		b.WriteString("\n")
		return b.String()
	}
	m.renderKPIs(&b)
	m.renderCurves(&b)
	m.renderTrades(&b)
	return b.String()
}

func (m model) renderSignal(b *strings.Builder) {
	b.WriteString(labelStyle.Render("  SIGNAL"))
	b.WriteString("\n")
	if m.latest == nil {
		b.WriteString(dimStyle.Render("  waiting for prediction..."))
		b.WriteString("\n")
		return
	}
	p := m.latest
	badge := holdStyle.Render(" HOLD ")
	if strings.EqualFold(p.Signal, "BUY") {
		badge = buyStyle.Render(" BUY ")
	}
	fmt.Fprintf(b, "  %s  bar %s   p=%.4f   confidence %.1f%%   model %s\n",
		badge, p.BarTimestamp.UTC().Format(chasebtc.DateLayout), p.Probability,
		dashboard.Conviction(p.Signal, p.Confidence), p.ModelVersion)
	fmt.Fprintf(b, "  stop loss %s   take profit %s\n",
		dashboard.FormatPercent(-p.StopLoss), dashboard.FormatPercent(p.TakeProfit))

	items := m.history.Items()
	if len(items) > 1 {
		b.WriteString(colHeaderStyle.Render("  recent:"))
		for _, h := range items[1:] {
			fmt.Fprintf(b, "  %s %s@%.2f", h.BarTimestamp.UTC().Format("01-02"), h.Signal, h.Threshold)
		}
		b.WriteString("\n")
	}
}

func (m model) renderKPIs(b *strings.Builder) {
	kpis := dashboard.KPIs(m.result.Metrics)
	boxes := make([]string, len(kpis))
	for i, k := range kpis {
		boxes[i] = kpiBoxStyle.Render(dimStyle.Render(k.Label) + "\n" + signStyle(k.Sign).Bold(true).Render(k.Value))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")
	if m.result.Cached {
		b.WriteString(dimStyle.Render("  cached result  run " + m.result.RunID))
	} else {
		b.WriteString(dimStyle.Render("  run " + m.result.RunID))
	}
	b.WriteString("\n\n")
}

func (m model) renderCurves(b *strings.Builder) {
	width := m.width - 16
	if width < 10 {
		width = 10
	}
	strategy, hold := dashboard.Curves(m.result.EquityCurve)
	fmt.Fprintf(b, "  %-12s%s\n", "strategy", sparkStyle.Render(dashboard.Sparkline(strategy, width)))
	fmt.Fprintf(b, "  %-12s%s\n", "buy & hold", holdSparkStyle.Render(dashboard.Sparkline(hold, width)))
	if op := m.result.OpenPosition; op != nil {
		fmt.Fprintf(b, "  %s\n", dimStyle.Render(fmt.Sprintf("open since %s at %s", op.EntryDate, dashboard.FormatUSD(op.EntryPrice))))
	}
	b.WriteString("\n")
}

func (m model) renderTrades(b *strings.Builder) {
	rows := dashboard.TradeRows(m.result.Trades, m.sortMode)
	fmt.Fprintf(b, "%s\n", labelStyle.Render(fmt.Sprintf("  TRADES (%d)", len(rows))))
	if len(rows) == 0 {
		b.WriteString(dimStyle.Render("  no trades"))
		b.WriteString("\n")
		return
	}
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("  %-10s  %-11s  %12s  %12s  %12s  %8s", "DATE", "ACTION", "PRICE", "SIZE", "PROFIT", "RETURN")))
	b.WriteString("\n")
	if len(rows) > maxTradeRows {
		rows = rows[:maxTradeRows]
	}
	for _, r := range rows {
		line := fmt.Sprintf("  %-10s  %-11s  %12s  %12s  %12s  %8s", r.Date, r.Action, r.Price, r.Size, r.Profit, r.Return)
		b.WriteString(signStyle(r.Sign).Render(line))
		b.WriteString("\n")
	}
}

func padOrTrunc(s string, width int) string {
	n := len(s)
	if n >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-n)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func main() {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	apiURL := flag.String("url", cfg.Telegram.APIURL, "chase-server base URL")
	start := flag.String("start", "2020-01-01", "backtest start date (YYYY-MM-DD)")
	noLive := flag.Bool("no-live", false, "do not subscribe to live signals")
	flag.Parse()

	logPath := fmt.Sprintf("/tmp/chase-client-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := chasebtc.NewClient(*apiURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var signals <-chan chasebtc.PredictResponse
	if !*noLive {
		signals, err = client.Signals(ctx)
		if err != nil {
			logger.Warn("live signals unavailable", "error", err)
			signals = nil
		}
	}

	p := tea.NewProgram(
		initialModel(client, signals, cfg.Backtest, *start, logger),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
