package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func basePolicy() model.Policy {
	return model.Policy{
		AutotradeEnabled:     true,
		AutotradeMode:        "paper",
		PerSymbolExposureMax: 10_000,
		TotalExposureMax:     50_000,
		MaxConcurrentTrades:  5,
		PerTradeRiskUSD:      1_000,
		DailyRiskUSDLimit:    2_000,
	}
}

func TestCheck_MasterSwitchFirst(t *testing.T) {
	p := basePolicy()
	p.AutotradeEnabled = false
	r := Check(p, model.PortfolioState{}, "BTC/USDT", 100, 10, time.Now())
	assert.False(t, r.Allowed)
	assert.Equal(t, "autotrade_disabled", r.Reason)
}

func TestCheck_AllowlistBlocksUnknownSymbol(t *testing.T) {
	p := basePolicy()
	p.AllowlistSymbols = []string{"ETH/USDT"}
	r := Check(p, model.PortfolioState{}, "BTC/USDT", 100, 10, time.Now())
	assert.False(t, r.Allowed)
	assert.Equal(t, "symbol_not_in_allowlist", r.Reason)
}

func TestCheck_ExposureCaps(t *testing.T) {
	p := basePolicy()
	state := model.PortfolioState{SymbolExposure: map[string]float64{"BTC/USDT": 9_900}}
	r := Check(p, state, "BTC/USDT", 200, 10, time.Now())
	assert.False(t, r.Allowed)
	assert.Equal(t, "per_symbol_exposure_cap_exceeded", r.Reason)
}

func TestCheck_AllowsWithinLimits(t *testing.T) {
	p := basePolicy()
	r := Check(p, model.PortfolioState{}, "BTC/USDT", 500, 50, time.Now())
	assert.True(t, r.Allowed)
}

func TestCheck_PerTradeRiskCap(t *testing.T) {
	p := basePolicy()
	r := Check(p, model.PortfolioState{}, "BTC/USDT", 500, 5_000, time.Now())
	assert.False(t, r.Allowed)
	assert.Equal(t, "per_trade_risk_cap_exceeded", r.Reason)
}
