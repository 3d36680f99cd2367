// Package indicators computes single-signal technical indicators over a
// candle series: RSI, MACD, an EMA stack, and Bollinger Bands.
package indicators

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// MinCandles is the shortest series any indicator will evaluate; shorter
// series yield no signals at all.
const MinCandles = 50

func closes(candles []model.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func clip01(v float64) float64 {
	return model.ClampUnit(v)
}

// RSI computes a 14-period RSI signal: LONG below 30, SHORT above 70,
// NEUTRAL otherwise, with strength scaled by distance from the nearer
// threshold.
func RSI(candles []model.Candle, timeframe string) (model.IndicatorSignal, bool) {
	if len(candles) < MinCandles {
		return model.IndicatorSignal{}, false
	}
	series := talib.Rsi(closes(candles), 14)
	value := series[len(series)-1]

	dir := model.Neutral
	strength := 0.0
	switch {
	case value < 30:
		dir = model.Long
		strength = clip01((30 - value) / 30)
	case value > 70:
		dir = model.Short
		strength = clip01((value - 70) / 30)
	}

	return model.IndicatorSignal{
		Name: "rsi", Direction: dir, Strength: strength, Value: value,
		Timeframe: timeframe, Extras: map[string]float64{"period": 14},
	}, true
}

// MACD computes a 12/26/9 MACD signal from the sign of the histogram
// (macd - signal), with strength the histogram's fraction of |macd|.
func MACD(candles []model.Candle, timeframe string) (model.IndicatorSignal, bool) {
	if len(candles) < MinCandles {
		return model.IndicatorSignal{}, false
	}
	macdLine, signalLine, hist := talib.Macd(closes(candles), 12, 26, 9)
	n := len(macdLine) - 1
	macdV, sigV, histV := macdLine[n], signalLine[n], hist[n]

	dir := model.Neutral
	switch {
	case histV > 0:
		dir = model.Long
	case histV < 0:
		dir = model.Short
	}

	strength := 0.5
	if macdV != 0 {
		strength = clip01(math.Abs(histV) / math.Abs(macdV))
	}

	return model.IndicatorSignal{
		Name: "macd", Direction: dir, Strength: strength, Value: histV,
		Timeframe: timeframe,
		Extras:    map[string]float64{"macd": macdV, "signal": sigV},
	}, true
}

// EMAStack computes a 20/50/200 EMA stack signal: LONG if price sits above
// all three EMAs, SHORT if below all three, NEUTRAL otherwise. Strength is
// the distance from the extremum EMA, scaled.
func EMAStack(candles []model.Candle, timeframe string) (model.IndicatorSignal, bool) {
	if len(candles) < MinCandles {
		return model.IndicatorSignal{}, false
	}
	cl := closes(candles)
	price := cl[len(cl)-1]

	ema20 := talib.Ema(cl, 20)
	ema50 := talib.Ema(cl, 50)
	ema200last := price
	if len(cl) >= 200 {
		ema200 := talib.Ema(cl, 200)
		ema200last = ema200[len(ema200)-1]
	}
	e20, e50 := ema20[len(ema20)-1], ema50[len(ema50)-1]

	above := price > e20 && price > e50 && price > ema200last
	below := price < e20 && price < e50 && price < ema200last

	dir := model.Neutral
	var extremum float64
	switch {
	case above:
		dir = model.Long
		extremum = math.Min(e20, math.Min(e50, ema200last))
	case below:
		dir = model.Short
		extremum = math.Max(e20, math.Max(e50, ema200last))
	default:
		extremum = price
	}

	strength := 0.0
	if dir != model.Neutral && price != 0 {
		strength = clip01(math.Abs(price-extremum) / price * 10)
	}

	return model.IndicatorSignal{
		Name: "ema_stack", Direction: dir, Strength: strength, Value: price,
		Timeframe: timeframe,
		Extras:    map[string]float64{"ema20": e20, "ema50": e50, "ema200": ema200last},
	}, true
}

// Bollinger computes a 20-period, 2-sigma Bollinger Bands signal: LONG
// below the lower band, SHORT above the upper band, NEUTRAL inside.
// Strength is the overshoot relative to bandwidth, scaled.
func Bollinger(candles []model.Candle, timeframe string) (model.IndicatorSignal, bool) {
	if len(candles) < MinCandles {
		return model.IndicatorSignal{}, false
	}
	cl := closes(candles)
	upper, _, lower := talib.BBands(cl, 20, 2, 2, talib.SMA)
	n := len(cl) - 1
	price := cl[n]
	up, lo := upper[n], lower[n]
	bandwidth := up - lo

	dir := model.Neutral
	overshoot := 0.0
	switch {
	case price < lo:
		dir = model.Long
		overshoot = lo - price
	case price > up:
		dir = model.Short
		overshoot = price - up
	}

	strength := 0.0
	if bandwidth > 0 && overshoot > 0 {
		strength = clip01(overshoot / bandwidth * 2)
	}

	return model.IndicatorSignal{
		Name: "bollinger", Direction: dir, Strength: strength, Value: price,
		Timeframe: timeframe,
		Extras:    map[string]float64{"upper": up, "lower": lo},
	}, true
}

// All runs every indicator over candles, returning only the signals whose
// series was long enough to evaluate.
func All(candles []model.Candle, timeframe string) []model.IndicatorSignal {
	signals := make([]model.IndicatorSignal, 0, 4)
	if s, ok := RSI(candles, timeframe); ok {
		signals = append(signals, s)
	}
	if s, ok := MACD(candles, timeframe); ok {
		signals = append(signals, s)
	}
	if s, ok := EMAStack(candles, timeframe); ok {
		signals = append(signals, s)
	}
	if s, ok := Bollinger(candles, timeframe); ok {
		signals = append(signals, s)
	}
	return signals
}
