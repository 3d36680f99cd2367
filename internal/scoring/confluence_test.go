package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func trendingCandles(n int, trend float64) []model.Candle {
	candles := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += trend
		candles[i] = model.Candle{TsMs: int64(i) * 60000, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 1000}
	}
	return candles
}

func noZones(string, string, float64) []model.LiquidationZone { return nil }

func TestScore_ShortSeriesYieldsNoSetup(t *testing.T) {
	tfData := map[string][]model.Candle{"15m": trendingCandles(10, 0.2)}
	_, ok := Score("BTC/USDT", "binance", tfData, 100, noZones)
	assert.False(t, ok)
}

func TestScore_TrendingMarketProducesLongSetup(t *testing.T) {
	tfData := map[string][]model.Candle{
		"15m": trendingCandles(220, 0.6),
		"1h":  trendingCandles(220, 0.6),
	}
	setup, ok := Score("BTC/USDT", "binance", tfData, 130, noZones)
	require.True(t, ok)
	assert.GreaterOrEqual(t, setup.Score, 0.0)
	assert.LessOrEqual(t, setup.Score, 100.0)
	assert.NotEmpty(t, setup.Reasons)
	assert.LessOrEqual(t, len(setup.Reasons), 5)
}

func TestScore_EmptyInputYieldsNoSetup(t *testing.T) {
	_, ok := Score("BTC/USDT", "binance", map[string][]model.Candle{}, 100, noZones)
	assert.False(t, ok)
}
