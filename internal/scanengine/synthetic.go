package scanengine

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// SyntheticCandles produces a deterministic pseudo-candle series seeded on
// sha256(symbol||timeframe), used when the live venue is unreachable so a
// scan still produces a reproducible result instead of failing outright.
func SyntheticCandles(symbol, timeframe string, count int) []model.Candle {
	sum := sha256.Sum256([]byte(symbol + timeframe))
	seed := int64(binary.BigEndian.Uint64(sum[:8]))
	rng := rand.New(rand.NewSource(seed))

	price := 100 + rng.Float64()*900
	candles := make([]model.Candle, count)
	ts := int64(0)
	for i := 0; i < count; i++ {
		drift := (rng.Float64() - 0.5) * price * 0.01
		open := price
		price += drift
		high := max2(open, price) + rng.Float64()*price*0.002
		low := min2(open, price) - rng.Float64()*price*0.002
		volume := 1000 + rng.Float64()*9000

		candles[i] = model.Candle{
			TsMs: ts, Open: open, High: high, Low: low, Close: price, Volume: volume,
		}
		ts += 60_000
	}
	return candles
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
