package scanengine

import "github.com/nightfall-quant/perpscan/internal/model"

// atr computes a simple (non-Wilder-smoothed) average true range over the
// trailing `period` candles, used only for the scheduler's own ATR%
// estimate — the indicator engine's own ATR-dependent work, if any, lives
// in internal/indicators.
func atr(candles []model.Candle, period int) float64 {
	if len(candles) < 2 {
		return 0
	}
	if period > len(candles)-1 {
		period = len(candles) - 1
	}
	start := len(candles) - period
	var sum float64
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		c := candles[i]
		tr := maxOf3(c.High-c.Low, absf(c.High-prevClose), absf(c.Low-prevClose))
		sum += tr
	}
	return sum / float64(period)
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
