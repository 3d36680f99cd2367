// Command scanner is the CLI entrypoint: scan runs one end-to-end confluence
// scan, trade policy-checks and executes a single pre-built plan, serve runs
// the scan on a cron schedule behind the HTTP status server.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nightfall-quant/perpscan/internal/config"
	"github.com/nightfall-quant/perpscan/internal/executor"
	"github.com/nightfall-quant/perpscan/internal/journal"
	"github.com/nightfall-quant/perpscan/internal/marketdata"
	"github.com/nightfall-quant/perpscan/internal/metrics"
	"github.com/nightfall-quant/perpscan/internal/model"
	"github.com/nightfall-quant/perpscan/internal/pairs"
	"github.com/nightfall-quant/perpscan/internal/policy"
	"github.com/nightfall-quant/perpscan/internal/scanengine"
	"github.com/nightfall-quant/perpscan/internal/server"

	"github.com/prometheus/client_golang/prometheus"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:   "scanner",
		Short: "Perp-futures confluence scanner and trade-plan factory",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to JSON config file")

	root.AddCommand(newScanCmd(&configPath))
	root.AddCommand(newTradeCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return exitCodeFor(err)
	}
	return 0
}

// exitCodeFor maps the error taxonomy onto the CLI's documented exit codes:
// 1 for configuration errors, 2 for everything else that reaches main.
func exitCodeFor(err error) int {
	var kerr *model.KindError
	if asKindError(err, &kerr) && kerr.Kind == model.ErrConfig {
		return 1
	}
	return 2
}

func asKindError(err error, target **model.KindError) bool {
	for err != nil {
		if k, ok := err.(*model.KindError); ok {
			*target = k
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

type scanFlags struct {
	symbols    string
	timeframes string
	limit      int
	minScore   float64
	leverage   float64
	riskUSD    float64
	formats    string
	outDir     string
}

func bindScanFlags(cmd *cobra.Command, f *scanFlags) {
	cmd.Flags().StringVar(&f.symbols, "symbols", "", "comma list or topN:venue, e.g. top30:binance")
	cmd.Flags().StringVar(&f.timeframes, "timeframes", "", "comma list, e.g. 15m,1h,4h")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "candle fetch limit per timeframe")
	cmd.Flags().Float64Var(&f.minScore, "min-score", 0, "minimum composite score to keep")
	cmd.Flags().Float64Var(&f.leverage, "leverage", 0, "leverage used for sizing")
	cmd.Flags().Float64Var(&f.riskUSD, "risk-usd", 0, "per-trade risk budget in quote currency")
	cmd.Flags().StringVar(&f.formats, "formats", "json", "comma list of output formats: json,csv,md")
	cmd.Flags().StringVar(&f.outDir, "out", "./out", "directory to write the scan bundle to")
}

func newScanCmd(configPath *string) *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one end-to-end confluence scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, exch, err := loadAndDial(*configPath)
			if err != nil {
				return err
			}
			applyScanFlags(&cfg, f)

			ctx, cancel := signalContext()
			defer cancel()

			bundle, err := runScan(ctx, cfg, exch, f.symbols)
			if err != nil {
				return model.WrapError(model.ErrDataShape, "scan failed", err)
			}
			return writeBundle(bundle, f.outDir, strings.Split(f.formats, ","))
		},
	}
	bindScanFlags(cmd, &f)
	return cmd
}

func newTradeCmd(configPath *string) *cobra.Command {
	var planPath, mode string
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Policy-check and execute a single pre-built trade plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(planPath)
			if err != nil {
				return model.WrapError(model.ErrConfig, "read plan file", err)
			}
			var plan model.TradePlan
			if err := json.Unmarshal(raw, &plan); err != nil {
				return model.WrapError(model.ErrConfig, "decode plan file", err)
			}

			pol := cfg.Policy()
			applyModeOverride(&pol, mode)

			reg := metrics.NewRegistry(prometheus.NewRegistry(), time.Hour)
			ex := buildExecutor(cfg, pol, reg)
			ctx, cancel := signalContext()
			defer cancel()

			if mode == "dry" {
				// A dry run never places an order, so it checks every gate
				// except the master switch that applyModeOverride turns off.
				dryPol := pol
				dryPol.AutotradeEnabled = true
				res := policy.Check(dryPol, ex.Snapshot(), plan.Setup.Symbol, plan.Sizing.Notional,
					plan.Sizing.Qty*absf(plan.Entries.Near.Price-plan.Setup.StopLoss), time.Now())
				if !res.Allowed {
					log.Warn().Str("reason", res.Reason).Msg("plan blocked in dry run")
					return model.NewError(model.ErrInvalidSetup, "blocked: "+res.Reason)
				}
				log.Info().Msg("plan passes policy in dry run, no order placed")
				return nil
			}

			state, err := ex.Execute(ctx, &plan)
			if err != nil {
				return err
			}
			log.Info().Str("status", state.Status.String()).Msg("trade executed")
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "path to a JSON-encoded TradePlan")
	cmd.Flags().StringVar(&mode, "mode", "dry", "dry|paper|live25|live50|live100")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	var f scanFlags
	var cronExpr string
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP status server and a cron-scheduled scanner together",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, exch, err := loadAndDial(*configPath)
			if err != nil {
				return err
			}
			applyScanFlags(&cfg, f)

			reg := metrics.NewRegistry(prometheus.DefaultRegisterer, time.Hour)
			ex := buildExecutor(cfg, cfg.Policy(), reg)

			srv := server.New(server.Config{Port: port, Log: log, Executor: ex})

			c := cron.New()
			_, err = c.AddFunc(cronExpr, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				bundle, err := runScan(ctx, cfg, exch, f.symbols)
				if err != nil {
					log.Error().Err(err).Msg("scheduled scan failed")
					return
				}
				srv.SetLastScan(bundle)
			})
			if err != nil {
				return model.WrapError(model.ErrConfig, "invalid --cron expression", err)
			}
			c.Start()
			defer c.Stop()

			ctx, cancel := signalContext()
			defer cancel()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case <-ctx.Done():
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
	bindScanFlags(cmd, &f)
	cmd.Flags().StringVar(&cronExpr, "cron", "@every 5m", "cron schedule for the periodic re-scan")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP status server port")
	return cmd
}

func applyScanFlags(cfg *config.Config, f scanFlags) {
	if f.timeframes != "" {
		cfg.Timeframes = strings.Split(f.timeframes, ",")
	}
	if f.limit > 0 {
		cfg.CandleLimit = f.limit
	}
	if f.minScore > 0 {
		cfg.MinScore = f.minScore
	}
	if f.leverage > 0 {
		cfg.Leverage = f.leverage
	}
	if f.riskUSD > 0 {
		cfg.RiskUSD = f.riskUSD
	}
}

func applyModeOverride(pol *model.Policy, mode string) {
	switch mode {
	case "dry":
		pol.AutotradeEnabled = false
		pol.AutotradeMode = "dry"
	case "paper", "live25", "live50", "live100":
		pol.AutotradeEnabled = true
		pol.AutotradeMode = mode
	}
}

func loadAndDial(configPath string) (config.Config, marketdata.Exchange, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	client := binance.NewFuturesClient(cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.Secret)
	exch := marketdata.NewBinanceFutures(client)
	return cfg, exch, nil
}

func resolveSymbols(ctx context.Context, cfg config.Config, exch marketdata.Exchange, raw string) ([]string, error) {
	if raw == "" {
		raw = fmt.Sprintf("top%d:%s", cfg.MaxPairs, cfg.Exchange)
	}
	if strings.Contains(raw, ":") {
		parts := strings.SplitN(raw, ":", 2)
		n, err := strconv.Atoi(strings.TrimPrefix(parts[0], "top"))
		if err != nil {
			return nil, model.WrapError(model.ErrConfig, "invalid --symbols topN syntax", err)
		}
		top, err := exch.TopPairs(ctx, "USDT", n)
		if err != nil {
			return nil, err
		}
		return pairs.TopN(top, cfg.ExcludeStablecoins, cfg.CustomExclude, n), nil
	}
	list := strings.Split(raw, ",")
	return pairs.Filter(list, cfg.ExcludeStablecoins, cfg.CustomExclude), nil
}

func runScan(ctx context.Context, cfg config.Config, exch marketdata.Exchange, symbolSpec string) (*scanengine.Bundle, error) {
	symbols, err := resolveSymbols(ctx, cfg, exch, symbolSpec)
	if err != nil {
		return nil, err
	}

	candleLimit := cfg.CandleLimit
	if candleLimit <= 0 {
		candleLimit = 200
	}

	return scanengine.Run(ctx, scanengine.Config{
		Exchange:       exch,
		ExchangeName:   cfg.Exchange,
		Symbols:        symbols,
		Timeframes:     cfg.Timeframes,
		CandleLimit:    candleLimit,
		MaxWorkers:     cfg.MaxWorkers,
		MinScore:       cfg.MinScore,
		TopSetupsLimit: cfg.TopSetupsLimit,
		Sizing:         cfg.SizingConfig(),
		Exec:           cfg.ExecutionConfig(),
		RiskUSD:        cfg.RiskUSD,
		Leverage:       cfg.Leverage,
		Log:            log,
	})
}

func buildExecutor(cfg config.Config, pol model.Policy, reg *metrics.Registry) *executor.Executor {
	store, err := journal.NewOrderStateStore(filepath.Join(cfg.StateDir, "orders.json"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open order state store")
	}
	jw, err := journal.NewWriter(filepath.Join(cfg.StateDir, "journal.jsonl"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open journal")
	}

	client := binance.NewFuturesClient(cfg.ExchangeConfig.APIKey, cfg.ExchangeConfig.Secret)
	venue := executor.NewBinanceVenue(client)

	return executor.NewExecutor(
		pol, cfg.IdempotencyPrefix, time.Duration(cfg.MakerTimeoutSec)*time.Second,
		venue, store, jw, reg, model.PortfolioState{},
	)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func writeBundle(bundle *scanengine.Bundle, outDir string, formats []string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return model.WrapError(model.ErrConfig, "create output dir", err)
	}

	for _, format := range formats {
		switch strings.TrimSpace(format) {
		case "json":
			if err := writeJSONBundle(bundle, filepath.Join(outDir, bundle.Meta.ScanID+".json")); err != nil {
				return err
			}
		case "csv":
			if err := writeCSVBundle(bundle, filepath.Join(outDir, bundle.Meta.ScanID+".csv")); err != nil {
				return err
			}
		case "md":
			if err := writeMarkdownBundle(bundle, filepath.Join(outDir, bundle.Meta.ScanID+".md")); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeJSONBundle(bundle *scanengine.Bundle, path string) error {
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeCSVBundle(bundle *scanengine.Bundle, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"symbol", "direction", "score", "rr", "entry", "stop"}); err != nil {
		return err
	}
	for _, r := range bundle.Results {
		if r.Plan == nil {
			continue
		}
		row := []string{
			r.Symbol,
			r.Decision.Setup.Direction.String(),
			strconv.FormatFloat(r.Decision.Score, 'f', 2, 64),
			strconv.FormatFloat(r.Decision.RR, 'f', 2, 64),
			strconv.FormatFloat(r.Plan.Entries.Near.Price, 'f', 8, 64),
			strconv.FormatFloat(r.Decision.Setup.StopLoss, 'f', 8, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeMarkdownBundle(bundle *scanengine.Bundle, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scan %s\n\n", bundle.Meta.ScanID)
	fmt.Fprintf(&b, "pairs=%d qualified=%d returned=%d\n\n",
		bundle.Meta.Stats.Pairs, bundle.Meta.Stats.Qualified, bundle.Meta.Stats.Returned)
	b.WriteString("| symbol | direction | score | rr |\n|---|---|---|---|\n")
	for _, r := range bundle.Results {
		fmt.Fprintf(&b, "| %s | %s | %.2f | %.2f |\n",
			r.Symbol, r.Decision.Setup.Direction.String(), r.Decision.Score, r.Decision.RR)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
