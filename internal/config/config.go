// Package config resolves the scanner's configuration from, in priority
// order: command-line flags, environment variables, an optional JSON file,
// then built-in defaults.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nightfall-quant/perpscan/internal/model"
	"github.com/nightfall-quant/perpscan/internal/planner"
)

// ExchangeCreds carries the venue API credentials.
type ExchangeCreds struct {
	APIKey          string `json:"apiKey"`
	Secret          string `json:"secret"`
	EnableRateLimit bool   `json:"enableRateLimit"`
}

// CacheTTLs holds the adapter's per-resource cache lifetimes, in seconds.
type CacheTTLs struct {
	MarketsSec int `json:"markets"`
	TickersSec int `json:"tickers"`
	OHLCVSec   int `json:"ohlcv"`
}

// Config is the fully-resolved configuration the CLI commands build their
// scan/trade/serve runs from.
type Config struct {
	Exchange           string
	ExchangeConfig     ExchangeCreds
	Timeframes         []string
	MaxPairs           int
	MaxWorkers         int
	TopSetupsLimit     int
	MinScore           float64
	AdapterCacheTTL    CacheTTLs
	TimeframeCacheTTL  int
	CandleLimit        int
	ExcludeStablecoins bool
	CustomExclude      []string

	AutotradeEnabled bool
	AutotradeMode    string

	MaxConcurrentTrades     int
	DailyRiskUSDLimit       float64
	PerTradeRiskUSD         float64
	PerSymbolExposureUSDMax float64
	TotalExposureUSDMax     float64

	AllowlistSymbols  []string
	TradingWindowsUTC []string
	BlocklistDays     []string

	MakerTimeoutSec   int
	IdempotencyPrefix string

	LiqBufferPct               float64
	LiqBufferATRMult           float64
	ReduceSizeIfLiqTooClose    bool
	SkipIfAfterReduceStillUnsafe bool

	Leverage float64
	RiskUSD  float64

	StateDir string
}

// Defaults mirrors the reference implementation's out-of-the-box values.
func Defaults() Config {
	return Config{
		Exchange:           "binance",
		Timeframes:         []string{"15m", "1h", "4h"},
		MaxPairs:           30,
		MaxWorkers:         6,
		TopSetupsLimit:     5,
		MinScore:           60,
		AdapterCacheTTL:    CacheTTLs{MarketsSec: 3600, TickersSec: 30, OHLCVSec: 60},
		TimeframeCacheTTL:  60,
		CandleLimit:        200,
		ExcludeStablecoins: true,

		AutotradeMode: "dry",

		MaxConcurrentTrades:     3,
		DailyRiskUSDLimit:       200,
		PerTradeRiskUSD:         50,
		PerSymbolExposureUSDMax: 2000,
		TotalExposureUSDMax:     5000,

		MakerTimeoutSec:   90,
		IdempotencyPrefix: "perpscan_",

		LiqBufferPct:     0.10,
		LiqBufferATRMult: 1.5,

		Leverage: 5,
		RiskUSD:  25,

		StateDir: "./state",
	}
}

// Load resolves a Config from a JSON file (if path is non-empty), then
// layers environment variables, matching the flags > env > file > defaults
// priority the caller applies on top by overwriting fields from parsed
// flags after Load returns.
func Load(jsonPath string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on process environment")
	}

	cfg := Defaults()

	if jsonPath != "" {
		raw, err := os.ReadFile(jsonPath)
		if err != nil {
			return Config{}, model.WrapError(model.ErrConfig, "read config file", err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, model.WrapError(model.ErrConfig, "decode config file", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.ExchangeConfig.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.ExchangeConfig.Secret = v
	}
	if v := os.Getenv("MIN_SCORE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinScore = f
		}
	}
	if v := os.Getenv("AUTOTRADE_ENABLED"); v != "" {
		cfg.AutotradeEnabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("AUTOTRADE_MODE"); v != "" {
		cfg.AutotradeMode = v
	}
	if v := os.Getenv("MAX_CONCURRENT_TRADES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentTrades = n
		}
	}
	if v := os.Getenv("DAILY_RISK_USD_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DailyRiskUSDLimit = f
		}
	}
	if v := os.Getenv("PER_TRADE_RISK_USD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PerTradeRiskUSD = f
		}
	}
	if v := os.Getenv("PER_SYMBOL_EXPOSURE_USD_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PerSymbolExposureUSDMax = f
		}
	}
	if v := os.Getenv("TOTAL_EXPOSURE_USD_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.TotalExposureUSDMax = f
		}
	}
	if v := os.Getenv("ALLOWLIST_SYMBOLS"); v != "" {
		cfg.AllowlistSymbols = splitCSV(v)
	}
	if v := os.Getenv("TRADING_WINDOWS_UTC"); v != "" {
		cfg.TradingWindowsUTC = splitCSV(v)
	}
	if v := os.Getenv("BLOCKLIST_DAYS"); v != "" {
		cfg.BlocklistDays = splitCSV(v)
	}
	if v := os.Getenv("MAKER_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MakerTimeoutSec = n
		}
	}
	if v := os.Getenv("IDEMPOTENCY_PREFIX"); v != "" {
		cfg.IdempotencyPrefix = v
	}
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SizingConfig derives the planner sizing configuration from cfg.
func (c Config) SizingConfig() planner.SizingConfig {
	return planner.SizingConfig{
		LotSize:         0.001,
		MinNotional:     5,
		MaintMarginRate: 0.005,
		Buffers: planner.LiqBuffers{
			PctOfStop: c.LiqBufferPct,
			ATRMult:   c.LiqBufferATRMult,
		},
		ReduceSizeIfUnsafe: c.ReduceSizeIfLiqTooClose,
		SkipIfStillUnsafe:  c.SkipIfAfterReduceStillUnsafe,
	}
}

// ExecutionConfig derives the planner execution configuration from cfg.
func (c Config) ExecutionConfig() planner.ExecutionConfig {
	return planner.ExecutionConfig{MakerTimeout: time.Duration(c.MakerTimeoutSec) * time.Second}
}

// Policy derives the executor's read-only policy snapshot from cfg.
func (c Config) Policy() model.Policy {
	return model.Policy{
		AllowlistSymbols:     c.AllowlistSymbols,
		BlocklistDays:        parseWeekdays(c.BlocklistDays),
		TradingWindowsUTC:    parseWindows(c.TradingWindowsUTC),
		PerSymbolExposureMax: c.PerSymbolExposureUSDMax,
		TotalExposureMax:     c.TotalExposureUSDMax,
		MaxConcurrentTrades:  c.MaxConcurrentTrades,
		PerTradeRiskUSD:      c.PerTradeRiskUSD,
		DailyRiskUSDLimit:    c.DailyRiskUSDLimit,
		AutotradeEnabled:     c.AutotradeEnabled,
		AutotradeMode:        c.AutotradeMode,
	}
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func parseWeekdays(names []string) []time.Weekday {
	out := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		if d, ok := weekdayNames[strings.ToLower(n)[:minInt(3, len(n))]]; ok {
			out = append(out, d)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// parseWindows accepts "HH:MM-HH:MM" entries in UTC.
func parseWindows(entries []string) []model.TimeWindow {
	out := make([]model.TimeWindow, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, "-", 2)
		if len(parts) != 2 {
			continue
		}
		start, ok1 := parseClock(parts[0])
		end, ok2 := parseClock(parts[1])
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, model.TimeWindow{StartMinute: start, EndMinute: end})
	}
	return out
}

func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}
