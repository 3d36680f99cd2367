package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFileOrEnv(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "binance", cfg.Exchange)
	require.Equal(t, 60.0, cfg.MinScore)
	require.Equal(t, "dry", cfg.AutotradeMode)
}

func TestLoad_JSONFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"minScore": 75, "maxPairs": 12}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 75.0, cfg.MinScore)
	require.Equal(t, 12, cfg.MaxPairs)
}

func TestLoad_EnvOverridesFileAndDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIN_SCORE", "82")
	t.Setenv("AUTOTRADE_ENABLED", "1")
	t.Setenv("AUTOTRADE_MODE", "live25")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 82.0, cfg.MinScore)
	require.True(t, cfg.AutotradeEnabled)
	require.Equal(t, "live25", cfg.AutotradeMode)
}

func TestConfig_PolicyParsesWindowsAndWeekdays(t *testing.T) {
	cfg := Defaults()
	cfg.TradingWindowsUTC = []string{"08:00-16:30"}
	cfg.BlocklistDays = []string{"sat", "sun"}

	pol := cfg.Policy()
	require.Len(t, pol.TradingWindowsUTC, 1)
	require.Equal(t, 8*60, pol.TradingWindowsUTC[0].StartMinute)
	require.Equal(t, 16*60+30, pol.TradingWindowsUTC[0].EndMinute)
	require.ElementsMatch(t, []time.Weekday{time.Saturday, time.Sunday}, pol.BlocklistDays)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BINANCE_API_KEY", "BINANCE_API_SECRET", "MIN_SCORE", "AUTOTRADE_ENABLED",
		"AUTOTRADE_MODE", "MAX_CONCURRENT_TRADES", "DAILY_RISK_USD_LIMIT",
		"PER_TRADE_RISK_USD", "PER_SYMBOL_EXPOSURE_USD_MAX", "TOTAL_EXPOSURE_USD_MAX",
		"ALLOWLIST_SYMBOLS", "TRADING_WINDOWS_UTC", "BLOCKLIST_DAYS",
		"MAKER_TIMEOUT_SEC", "IDEMPOTENCY_PREFIX",
	} {
		t.Setenv(k, "")
	}
}
