package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func syntheticCandles(n int, trend float64) []model.Candle {
	candles := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += trend
		candles[i] = model.Candle{
			TsMs: int64(i) * 60000, Open: price, High: price + 1, Low: price - 1,
			Close: price, Volume: 1000,
		}
	}
	return candles
}

func TestIndicators_ShortSeriesYieldsNoSignal(t *testing.T) {
	short := syntheticCandles(10, 0.1)
	_, ok := RSI(short, "15m")
	assert.False(t, ok)
	assert.Empty(t, All(short, "15m"))
}

func TestRSI_StrengthClippedToUnit(t *testing.T) {
	candles := syntheticCandles(60, -0.5)
	sig, ok := RSI(candles, "1h")
	require.True(t, ok)
	assert.GreaterOrEqual(t, sig.Strength, 0.0)
	assert.LessOrEqual(t, sig.Strength, 1.0)
	assert.False(t, math.IsNaN(sig.Strength))
}

func TestEMAStack_DirectionMatchesTrend(t *testing.T) {
	up := syntheticCandles(220, 0.5)
	sig, ok := EMAStack(up, "4h")
	require.True(t, ok)
	assert.Contains(t, []model.Direction{model.Long, model.Neutral}, sig.Direction)
}

func TestBollinger_NeutralInsideBands(t *testing.T) {
	flat := syntheticCandles(60, 0)
	sig, ok := Bollinger(flat, "15m")
	require.True(t, ok)
	assert.Equal(t, model.Neutral, sig.Direction)
}
