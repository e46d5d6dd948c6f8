package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"chasebtc/internal/config"
	"chasebtc/internal/dashboard"
	"chasebtc/pkg/chasebtc"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: chase-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  health     Show chase-server status\n")
	fmt.Fprintf(os.Stderr, "  predict    Get the latest signal\n")
	fmt.Fprintf(os.Stderr, "  backtest   Run a backtest\n")
	fmt.Fprintf(os.Stderr, "  update     Rebuild the server's feature file\n")
	fmt.Fprintf(os.Stderr, "\nRun 'chase-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		fatalf("loading config: %v", err)
	}
	defaultURL := cfg.Telegram.APIURL

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "version":
		fmt.Printf("chase-cli %s\n", version)

	case "health":
		fs := flag.NewFlagSet("health", flag.ExitOnError)
		url := fs.String("url", defaultURL, "chase-server base URL")
		fs.Parse(args)

		h, err := chasebtc.NewClient(*url).Health(ctx)
		if err != nil {
			fatalf("health: %v", err)
		}
		fmt.Printf("status:   %s\nfeatures: %s\ntime:     %s\n", h.Status, h.Features, h.Timestamp.Format(time.RFC3339))

	case "predict":
		opts, err := parsePredict(args, defaultURL, cfg.Backtest.Threshold)
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if err != nil {
			fatalf("predict: %v", err)
		}

		var resp *chasebtc.PredictResponse
		if opts.grpcAddr != "" {
			c := dialGRPC(opts.grpcAddr)
			defer c.Close()
			resp, err = c.Predict(ctx, opts.params)
		} else {
			resp, err = chasebtc.NewClient(opts.url).Predict(ctx, opts.params)
		}
		if err != nil {
			fatalf("predict: %v", err)
		}
		if opts.asJSON {
			printJSON(resp)
			return
		}
		fmt.Printf("%s  %s  p=%.4f  confidence=%.1f%%  threshold=%v  model=%s\n",
			resp.BarTimestamp.Format(chasebtc.DateLayout), dashboard.SignalBadge(resp.Signal),
			resp.Probability, dashboard.Conviction(resp.Signal, resp.Confidence), resp.Threshold, resp.ModelVersion)

	case "backtest":
		fs := flag.NewFlagSet("backtest", flag.ExitOnError)
		url := fs.String("url", defaultURL, "chase-server base URL")
		grpcAddr := fs.String("grpc", "", "use the gRPC API at this address instead of HTTP")
		start := fs.String("start", "", "start date (YYYY-MM-DD), server default when empty")
		end := fs.String("end", "", "end date (YYYY-MM-DD), today when empty")
		threshold := fs.Float64("threshold", cfg.Backtest.Threshold, "decision threshold")
		sl := fs.Float64("sl", cfg.Backtest.StopLoss, "stop loss fraction")
		tp := fs.Float64("tp", cfg.Backtest.TakeProfit, "take profit fraction")
		capital := fs.Float64("capital", cfg.Backtest.InitialCapital, "initial capital in USD")
		position := fs.Float64("position", cfg.Backtest.PositionSize, "position size as a fraction of equity")
		trades := fs.Int("trades", 10, "number of recent trades to list")
		asJSON := fs.Bool("json", false, "print the raw JSON response")
		fs.Parse(args)

		p := chasebtc.BacktestParams{
			StartDate:      *start,
			EndDate:        *end,
			Threshold:      threshold,
			StopLoss:       sl,
			TakeProfit:     tp,
			InitialCapital: capital,
			PositionSize:   position,
		}
		var resp *chasebtc.BacktestResponse
		if *grpcAddr != "" {
			c := dialGRPC(*grpcAddr)
			defer c.Close()
			resp, err = c.Backtest(ctx, p)
		} else {
			resp, err = chasebtc.NewClient(*url).Backtest(ctx, p)
		}
		if err != nil {
			fatalf("backtest: %v", err)
		}
		if *asJSON {
			printJSON(resp)
			return
		}
		printBacktest(resp, *trades)

	case "update":
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		url := fs.String("url", defaultURL, "chase-server base URL")
		fs.Parse(args)

		resp, err := chasebtc.NewClient(*url).Update(ctx)
		if err != nil {
			fatalf("update: %v", err)
		}
		fmt.Printf("%s: %d rows, version %s\n", resp.Status, resp.Rows, resp.Version)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

type predictOpts struct {
	url      string
	grpcAddr string
	asJSON   bool
	params   chasebtc.PredictParams
}

func parsePredict(args []string, defaultURL string, defaultThreshold float64) (predictOpts, error) {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	url := fs.String("url", defaultURL, "chase-server base URL")
	grpcAddr := fs.String("grpc", "", "use the gRPC API at this address instead of HTTP")
	threshold := fs.Float64("threshold", defaultThreshold, "decision threshold")
	daysBack := fs.Int("days-back", 60, "days of features to fetch")
	asJSON := fs.Bool("json", false, "print the raw JSON response")
	if err := fs.Parse(args); err != nil {
		return predictOpts{}, err
	}
	return predictOpts{
		url:      *url,
		grpcAddr: *grpcAddr,
		asJSON:   *asJSON,
		params:   chasebtc.PredictParams{Threshold: threshold, DaysBack: daysBack},
	}, nil
}

func printBacktest(resp *chasebtc.BacktestResponse, maxTrades int) {
	cached := ""
	if resp.Cached {
		cached = " (cached)"
	}
	fmt.Printf("run %s%s\n\n", resp.RunID, cached)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range dashboard.KPIs(resp.Metrics) {
		fmt.Fprintf(w, "%s\t%s\n", k.Label, k.Value)
	}
	w.Flush()

	strategy, hold := dashboard.Curves(resp.EquityCurve)
	fmt.Printf("\nstrategy      %s\nbuy & hold    %s\n", dashboard.Sparkline(strategy, 60), dashboard.Sparkline(hold, 60))

	if resp.OpenPosition != nil {
		fmt.Printf("\nopen position since %s at %s (%s)\n", resp.OpenPosition.EntryDate,
			dashboard.FormatUSD(resp.OpenPosition.EntryPrice), dashboard.FormatUSD(resp.OpenPosition.SizeUSD))
	}

	rows := dashboard.TradeRows(resp.Trades, dashboard.SortByDate)
	if len(rows) == 0 || maxTrades <= 0 {
		return
	}
	if len(rows) > maxTrades {
		rows = rows[:maxTrades]
	}
	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tACTION\tPRICE\tSIZE\tPROFIT\tRETURN")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Date, r.Action, r.Price, r.Size, r.Profit, r.Return)
	}
	w.Flush()
}

func dialGRPC(addr string) *chasebtc.GRPCClient {
	c, err := chasebtc.DialGRPC(addr)
	if err != nil {
		fatalf("dialing %s: %v", addr, err)
	}
	return c
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("encoding: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "chase-cli: "+format+"\n", args...)
	os.Exit(1)
}
