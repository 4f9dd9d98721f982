// Package main is the entry point for the volarb backtesting CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/tathienbao/volarb/internal/backtest"
	"github.com/tathienbao/volarb/internal/config"
	"github.com/tathienbao/volarb/internal/marketdata"
	"github.com/tathienbao/volarb/internal/metrics"
	"github.com/tathienbao/volarb/internal/persistence"
	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/internal/ui"
	"github.com/tathienbao/volarb/internal/volatility"
)

// Version information (set by build flags).
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "validate":
		cmdValidate(os.Args[2:])
	case "backtest":
		cmdBacktest(os.Args[2:])
	case "sweep":
		cmdSweep(os.Args[2:])
	case "demo":
		cmdDemo(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Volarb - Volatility Arbitrage Backtester

Usage:
  volarb <command> [options]

Commands:
  backtest   Run a backtest over a CSV of daily bars
  sweep      Backtest every point of the configured parameter grid
  demo       Generate synthetic bars with implied vol to CSV
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  volarb demo --bars 500 --out demo.csv
  volarb backtest --config config.yaml --data demo.csv --symbol DEMO --ui
  volarb sweep --config config.yaml --workers 4
  volarb validate --config config.yaml

Use "volarb <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("volarb version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Symbol: %s\n", cfg.Data.Symbol)
	fmt.Printf("  Initial capital: $%.2f\n", cfg.Backtest.InitialCapital)
	fmt.Printf("  Holding period: %d bars\n", cfg.Strategy.HoldingPeriod)
	fmt.Printf("  Entry threshold: %.2f vol points\n", cfg.Strategy.EntryThreshold)
	fmt.Printf("  Exit threshold: %.2f vol points\n", cfg.Strategy.ExitThreshold)
	if cfg.HasPinnedGARCH() {
		g := cfg.Strategy.GARCH
		fmt.Printf("  GARCH: pinned omega=%g alpha=%g beta=%g\n", g.Omega, g.Alpha, g.Beta)
	} else {
		fmt.Println("  GARCH: calibrated from data")
	}
}

func cmdBacktest(args []string) {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	dataPath := fs.String("data", "", "Path to CSV bar data (overrides config)")
	symbol := fs.String("symbol", "", "Symbol to backtest (overrides config)")
	useUI := fs.Bool("ui", false, "Render live progress in the terminal")
	dbPath := fs.String("db", "", "SQLite database for results (overrides config)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	// The live chart owns stdout, so routine logs are dropped while it
	// runs. Fatal errors go to stderr either way.
	interactive := *useUI && ui.IsTerminal()
	logOut := io.Writer(os.Stdout)
	if interactive {
		logOut = io.Discard
	}
	logger := setupLogging(*verbose, logOut)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if *dataPath == "" {
		*dataPath = cfg.Data.CSVPath
	}
	if *symbol == "" {
		*symbol = cfg.Data.Symbol
	}
	if *dataPath == "" {
		fmt.Fprintln(os.Stderr, "Error: no data file; pass --data or set data.csv_path")
		fs.Usage()
		os.Exit(1)
	}

	bars, sym, err := loadSymbolBars(*dataPath, *symbol)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load bars: %v\n", err)
		os.Exit(1)
	}

	params := cfg.ToBacktestParams()
	params.Symbols = []string{sym}
	if params.Start.IsZero() {
		params.Start = bars[0].Timestamp
	}
	if params.End.IsZero() {
		params.End = bars[len(bars)-1].Timestamp
	}

	model, err := buildModel(cfg, bars, params.Start, params.End)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: volatility model: %v\n", err)
		os.Exit(1)
	}
	strat := strategy.New(model, cfg.ToStrategyConfig(), logger)

	eng := backtest.New(logger)
	if err := eng.AddBars(sym, bars); err != nil {
		fmt.Fprintf(os.Stderr, "Error: register bars: %v\n", err)
		os.Exit(1)
	}

	var server *metrics.Server
	var serverErr <-chan error
	if cfg.Metrics.Enabled {
		server, serverErr = startMetricsServer(cfg, logger)
		server.RegisterHealthCheck("data", dataCheck(eng, sym))
		rec := metrics.NewRecorder()
		eng.SetRecorder(rec)
		strat.SetRecorder(rec)
	}

	// Bars inside the run window drive the chart.
	var view []types.Bar
	for _, b := range bars {
		if !b.Timestamp.Before(params.Start) && !b.Timestamp.After(params.End) {
			view = append(view, b)
		}
	}

	var tui *ui.BacktestUI
	switch {
	case interactive:
		tui = ui.NewBacktestUI(len(view), params.InitialCapital)
		next := 0
		eng.SetProgressCallback(func(u backtest.ProgressUpdate) {
			for next < len(view) && !view[next].Timestamp.After(u.Timestamp) {
				tui.AddBar(view[next])
				next++
			}
			tui.UpdateStats(u.Equity, u.Trades, u.LastSignal)
			tui.MaybeRender()
		})
	case *useUI:
		eng.SetProgressCallback(func(u backtest.ProgressUpdate) {
			ui.ProgressLine(u.Bar, u.TotalBars, "equity $"+u.Equity.StringFixed(2))
		})
	}

	slog.Info("starting backtest",
		"symbol", sym,
		"bars", len(view),
		"start", params.Start.Format("2006-01-02"),
		"end", params.End.Format("2006-01-02"),
		"model", model.Name(),
	)

	if tui != nil {
		tui.Start()
	}
	result, err := eng.Run(strat, params)
	if tui != nil {
		tui.Stop()
	} else if *useUI {
		fmt.Println()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Backtest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Print(result.Summary())
	printCalendarReturns(result)

	dbTarget := *dbPath
	if dbTarget == "" && cfg.Persistence.Enabled {
		dbTarget = cfg.Persistence.Path
	}
	if dbTarget != "" {
		if err := persistRun(context.Background(), dbTarget, sym, result); err != nil {
			fmt.Fprintf(os.Stderr, "Error: persist results: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nResults saved to %s\n", dbTarget)
	}

	if server != nil {
		stopMetricsServer(server, serverErr)
	}
}

func cmdSweep(args []string) {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	workers := fs.Int("workers", 0, "Worker pool size (overrides config)")
	dbPath := fs.String("db", "", "SQLite database for the best run (overrides config)")
	verbose := fs.Bool("verbose", false, "Verbose output")
	fs.Parse(args)

	logger := setupLogging(*verbose, os.Stdout)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if len(cfg.Sweep.Grid) == 0 {
		fmt.Fprintln(os.Stderr, "Error: config has no sweep.grid")
		os.Exit(1)
	}
	if cfg.Data.CSVPath == "" {
		fmt.Fprintln(os.Stderr, "Error: sweep needs data.csv_path")
		os.Exit(1)
	}
	if *workers == 0 {
		*workers = cfg.Sweep.Workers
	}

	bars, sym, err := loadSymbolBars(cfg.Data.CSVPath, cfg.Data.Symbol)
	if err != nil {
		slog.Error("failed to load bars", "err", err)
		os.Exit(1)
	}

	params := cfg.ToBacktestParams()
	params.Symbols = []string{sym}
	if params.Start.IsZero() {
		params.Start = bars[0].Timestamp
	}
	if params.End.IsZero() {
		params.End = bars[len(bars)-1].Timestamp
	}

	model, err := buildModel(cfg, bars, params.Start, params.End)
	if err != nil {
		slog.Error("volatility model setup failed", "err", err)
		os.Exit(1)
	}
	base := strategy.New(model, cfg.ToStrategyConfig(), logger)

	eng := backtest.New(logger)
	if err := eng.AddBars(sym, bars); err != nil {
		slog.Error("failed to register bars", "err", err)
		os.Exit(1)
	}
	eng.SetSweepBuilder(applyGridPoint)

	var server *metrics.Server
	var serverErr <-chan error
	if cfg.Metrics.Enabled {
		server, serverErr = startMetricsServer(cfg, logger)
		server.RegisterHealthCheck("data", dataCheck(eng, sym))
		eng.SetRecorder(metrics.NewRecorder())
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting sweep",
		"symbol", sym,
		"grid_keys", len(cfg.Sweep.Grid),
		"workers", *workers,
	)

	results, err := eng.RunSweep(ctx, base, params, cfg.Sweep.Grid, *workers)
	if err != nil {
		slog.Warn("sweep stopped early", "err", err)
	}

	best := printSweepResults(results)

	dbTarget := *dbPath
	if dbTarget == "" && cfg.Persistence.Enabled {
		dbTarget = cfg.Persistence.Path
	}
	if dbTarget != "" && best != nil {
		if err := persistRun(context.Background(), dbTarget, sym, best.Result); err != nil {
			slog.Error("failed to persist best run", "err", err)
			os.Exit(1)
		}
		fmt.Printf("\nBest run (%s) saved to %s\n", formatPoint(best.Point), dbTarget)
	}

	if server != nil {
		stopMetricsServer(server, serverErr)
	}
}

func cmdDemo(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	barCount := fs.Int("bars", 500, "Number of daily bars to generate")
	seed := fs.Int64("seed", 42, "Random seed")
	outPath := fs.String("out", "demo.csv", "Output CSV path")
	fs.Parse(args)

	if *barCount <= 0 {
		fmt.Fprintln(os.Stderr, "Error: --bars must be positive")
		os.Exit(1)
	}

	start := time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC)
	bars := marketdata.GenerateGBM("DEMO", *barCount, start, 100, 0.05, 0.20, *seed)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: create %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	if err := marketdata.WriteBars(f, bars); err != nil {
		f.Close()
		fmt.Fprintf(os.Stderr, "Error: write bars: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: close %s: %v\n", *outPath, err)
		os.Exit(1)
	}

	first := bars[0].Timestamp.Format("2006-01-02")
	last := bars[len(bars)-1].Timestamp.Format("2006-01-02")
	fmt.Printf("Wrote %d DEMO bars (%s to %s) to %s\n", len(bars), first, last, *outPath)
}

func setupLogging(verbose bool, out io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadSymbolBars loads bars from a CSV, keeping only the given symbol.
// An empty symbol defaults to the first symbol in the file.
func loadSymbolBars(path, symbol string) ([]types.Bar, string, error) {
	all, err := marketdata.LoadBars(path)
	if err != nil {
		return nil, "", err
	}
	if len(all) == 0 {
		return nil, "", fmt.Errorf("%w: no bars in %s", types.ErrMissingData, path)
	}
	if symbol == "" {
		symbol = all[0].Symbol
	}

	bars := make([]types.Bar, 0, len(all))
	for _, b := range all {
		if b.Symbol == symbol {
			bars = append(bars, b)
		}
	}
	if len(bars) == 0 {
		return nil, "", fmt.Errorf("%w: no bars for %s in %s", types.ErrMissingData, symbol, path)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, symbol, nil
}

// buildModel readies the volatility model on the window's log returns:
// pinned parameters are warmed up, anything else is calibrated.
func buildModel(cfg *config.Config, bars []types.Bar, start, end time.Time) (*volatility.GARCH, error) {
	closes, err := marketdata.ExtractSeries(bars, "close")
	if err != nil {
		return nil, err
	}
	returns, err := closes.Slice(start, end).LogReturn()
	if err != nil {
		return nil, fmt.Errorf("log returns: %w", err)
	}

	garchCfg := cfg.Strategy.GARCH
	if cfg.HasPinnedGARCH() {
		model, err := volatility.NewGARCH(garchCfg.Omega, garchCfg.Alpha, garchCfg.Beta)
		if err != nil {
			return nil, err
		}
		if err := model.Warmup(returns.Values()); err != nil {
			return nil, err
		}
		return model, nil
	}

	model := volatility.NewDefaultGARCH()
	if garchCfg.CalibrateMLE {
		err = model.CalibrateMLE(returns.Values())
	} else {
		err = model.Calibrate(returns.Values())
	}
	if err != nil {
		return nil, fmt.Errorf("calibrate: %w", err)
	}
	return model, nil
}

// applyGridPoint derives the strategy for one sweep point by rebuilding
// it around the clone's model with the overridden parameters.
func applyGridPoint(base strategy.Strategy, point map[string]float64) strategy.Strategy {
	s := base.Clone().(*strategy.VolArb)
	cfg := s.Config()
	if v, ok := point["holding_period"]; ok {
		cfg.HoldingPeriod = int(v)
	}
	if v, ok := point["entry_quantity"]; ok {
		cfg.EntryQuantity = v
	}
	if v, ok := point["tenor_days"]; ok {
		cfg.TenorDays = int(v)
	}
	if v, ok := point["entry_threshold"]; ok {
		cfg.EntryThreshold = v
	}
	if v, ok := point["exit_threshold"]; ok {
		cfg.ExitThreshold = v
	}
	if v, ok := point["target_delta"]; ok {
		cfg.TargetDelta = v
	}
	if v, ok := point["delta_tolerance"]; ok {
		cfg.DeltaTolerance = v
	}
	return strategy.New(s.Model(), cfg, nil)
}

// printSweepResults ranks finished points by Sharpe ratio and returns
// the best one, or nil when nothing finished.
func printSweepResults(results []backtest.SweepResult) *backtest.SweepResult {
	var done []backtest.SweepResult
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Result != nil:
			done = append(done, r)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].Result.SharpeRatio() > done[j].Result.SharpeRatio()
	})

	fmt.Printf("\n=== Sweep Results (%d points", len(done))
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println(") ===")
	for i, r := range done {
		fmt.Printf("%3d. %-44s sharpe %8.4f  return %7.2f%%  maxdd %6.2f%%  trades %d\n",
			i+1, formatPoint(r.Point),
			r.Result.SharpeRatio(),
			r.Result.TotalReturn()*100,
			r.Result.MaxDrawdown()*100,
			len(r.Result.Trades()))
	}
	if len(done) == 0 {
		return nil
	}
	return &done[0]
}

// formatPoint renders a grid point with sorted keys.
func formatPoint(point map[string]float64) string {
	keys := make([]string, 0, len(point))
	for k := range point {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, point[k]))
	}
	return strings.Join(parts, " ")
}

func printCalendarReturns(result *backtest.Result) {
	byYear := result.ReturnsByYear()
	if len(byYear) > 0 {
		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)
		fmt.Println("\n=== Returns by Year ===")
		for _, y := range years {
			fmt.Printf("%d      %7.2f%%\n", y, byYear[y]*100)
		}
	}

	byMonth := result.ReturnsByMonth()
	if len(byMonth) > 0 {
		fmt.Println("\n=== Returns by Month ===")
		for m := time.January; m <= time.December; m++ {
			if ret, ok := byMonth[m]; ok {
				fmt.Printf("%-9s %7.2f%%\n", m, ret*100)
			}
		}
	}
}

// persistRun stores the run, its trades and its equity curve in SQLite.
func persistRun(ctx context.Context, dbPath, symbol string, result *backtest.Result) error {
	repo, err := persistence.NewSQLiteRepository(dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	run := persistence.NewRunRecord(symbol, result)
	if err := repo.SaveRun(ctx, run); err != nil {
		return err
	}
	if err := repo.SaveTrades(ctx, run.ID, result.Trades()); err != nil {
		return err
	}
	return repo.SaveEquityCurve(ctx, run.ID, result.EquityCurve())
}

// dataCheck reports whether bars remain registered for the symbol.
func dataCheck(eng *backtest.Engine, symbol string) metrics.HealthChecker {
	return func() metrics.Check {
		if !eng.HasData(symbol) {
			return metrics.Check{Status: "unhealthy", Message: "no bars loaded for " + symbol}
		}
		return metrics.Check{Status: "healthy"}
	}
}

// startMetricsServer exposes Prometheus metrics while a run is active.
func startMetricsServer(cfg *config.Config, logger *slog.Logger) (*metrics.Server, <-chan error) {
	metrics.SetBuildInfo(Version, GitCommit, BuildTime)
	server := metrics.NewServer(metrics.ServerConfig{
		Port:        cfg.Metrics.Port,
		MetricsPath: cfg.Metrics.Path,
	}, logger)
	errCh := server.Start()
	slog.Info("metrics server listening", "addr", cfg.MetricsAddr())
	return server, errCh
}

// stopMetricsServer shuts the server down and drains its error channel.
func stopMetricsServer(server *metrics.Server, errCh <-chan error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
	if err, ok := <-errCh; ok && err != nil {
		slog.Warn("metrics server", "err", err)
	}
}
