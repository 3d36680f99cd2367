// Package policy evaluates the executor's ordered gate chain before any
// order is placed: master switch, allowlist, trading windows, exposure
// caps, and per-trade risk.
package policy

import (
	"time"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// Result is the outcome of a policy check: allowed, or blocked with a
// reason. Being blocked is not an error.
type Result struct {
	Allowed bool
	Reason  string
}

func blocked(reason string) Result { return Result{Allowed: false, Reason: reason} }

var allowed = Result{Allowed: true}

// Check evaluates the policy gates in the exact order the executor's
// contract specifies, returning the first failure.
func Check(
	policy model.Policy,
	state model.PortfolioState,
	symbol string,
	notional float64,
	tradeRisk float64,
	now time.Time,
) Result {
	if !policy.AutotradeEnabled {
		return blocked("autotrade_disabled")
	}
	if policy.AutotradeMode == "" {
		return blocked("autotrade_mode_unrecognized")
	}
	if symbol == "" {
		return blocked("symbol_required")
	}
	if len(policy.AllowlistSymbols) > 0 && !contains(policy.AllowlistSymbols, symbol) {
		return blocked("symbol_not_in_allowlist")
	}
	if blocklisted(policy.BlocklistDays, now) {
		return blocked("blocklisted_day")
	}
	if len(policy.TradingWindowsUTC) > 0 && !inAnyWindow(policy.TradingWindowsUTC, now) {
		return blocked("outside_trading_window")
	}
	if policy.DailyRiskUSDLimit > 0 && state.DailyRealizedLoss >= policy.DailyRiskUSDLimit {
		return blocked("daily_loss_limit_reached")
	}
	if policy.MaxConcurrentTrades > 0 && state.OpenTrades >= policy.MaxConcurrentTrades {
		return blocked("concurrent_trade_cap_reached")
	}
	if notional <= 0 {
		return blocked("notional_must_be_positive")
	}
	if policy.PerSymbolExposureMax > 0 {
		existing := state.SymbolExposure[symbol]
		if existing+notional > policy.PerSymbolExposureMax {
			return blocked("per_symbol_exposure_cap_exceeded")
		}
	}
	if policy.TotalExposureMax > 0 && state.TotalExposure+notional > policy.TotalExposureMax {
		return blocked("total_exposure_cap_exceeded")
	}
	if policy.PerTradeRiskUSD > 0 && tradeRisk > policy.PerTradeRiskUSD {
		return blocked("per_trade_risk_cap_exceeded")
	}

	return allowed
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func blocklisted(days []time.Weekday, now time.Time) bool {
	weekday := now.UTC().Weekday()
	for _, d := range days {
		if d == weekday {
			return true
		}
	}
	return false
}

func inAnyWindow(windows []model.TimeWindow, now time.Time) bool {
	t := now.UTC()
	minuteOfDay := t.Hour()*60 + t.Minute()
	for _, w := range windows {
		if w.Contains(minuteOfDay) {
			return true
		}
	}
	return false
}
