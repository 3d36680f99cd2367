// Package scoring combines per-timeframe indicator signals into a single
// composite TradeSetup candidate.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/nightfall-quant/perpscan/internal/indicators"
	"github.com/nightfall-quant/perpscan/internal/model"
)

// Weights are the fixed component weights from the confluence formula.
const (
	weightIndicator   = 0.35
	weightConfluence  = 0.30
	weightLiquidation = 0.20
	weightTrend       = 0.15
)

// LiquidationProvider fetches the liquidation heatmap for a symbol; it is
// provider-dependent and may return a synthetic heatmap.
type LiquidationProvider func(symbol, timeframe string, price float64) []model.LiquidationZone

// Score runs the indicator engine over every timeframe's candles and
// combines the results into a TradeSetup. It returns (nil, false) when no
// timeframe has enough data or the overall direction is NEUTRAL.
func Score(
	symbol, exchange string,
	timeframeCandles map[string][]model.Candle,
	currentPrice float64,
	liqProvider LiquidationProvider,
) (*model.TradeSetup, bool) {
	type tfSignals struct {
		timeframe string
		signals   []model.IndicatorSignal
		dominant  model.Direction
	}

	var perTF []tfSignals
	var allSignals []model.IndicatorSignal

	// Deterministic order: sort timeframes so the same input always
	// produces the same reasons list and confluence map.
	tfOrder := make([]string, 0, len(timeframeCandles))
	for tf := range timeframeCandles {
		tfOrder = append(tfOrder, tf)
	}
	sort.Strings(tfOrder)

	for _, tf := range tfOrder {
		candles := timeframeCandles[tf]
		if len(candles) < indicators.MinCandles {
			continue
		}
		signals := indicators.All(candles, tf)
		if len(signals) == 0 {
			continue
		}
		dom := dominantDirection(signals)
		perTF = append(perTF, tfSignals{timeframe: tf, signals: signals, dominant: dom})
		allSignals = append(allSignals, signals...)
	}

	if len(perTF) == 0 {
		return nil, false
	}

	overall := dominantDirection(allSignals)
	if overall == model.Neutral {
		return nil, false
	}

	tfConfluence := make(map[string]model.Direction, len(perTF))
	alignedTFs := 0
	for _, t := range perTF {
		tfConfluence[t.timeframe] = t.dominant
		if t.dominant == overall {
			alignedTFs++
		}
	}

	zones := liqProvider(symbol, tfOrder[0], currentPrice)

	indicatorScore := indicatorScoreOf(allSignals, overall)
	confluenceScore := float64(alignedTFs) / float64(len(perTF)) * 100
	liquidationScore := liquidationScoreOf(zones, overall)
	trendScore := trendScoreOf(allSignals)

	composite := weightIndicator*indicatorScore +
		weightConfluence*confluenceScore +
		weightLiquidation*liquidationScore +
		weightTrend*trendScore

	confidence := composite/100 +
		math.Min(0.2, float64(len(allSignals))/20) +
		math.Min(0.2, float64(alignedTFs)/10)
	confidence = model.ClampUnit(confidence)

	entryPlan, stop, tps := baselineGeometry(overall, currentPrice)
	reasons := buildReasons(allSignals, overall, alignedTFs, len(perTF), zones, composite)

	setup, err := model.NewTradeSetup(
		symbol, exchange, overall, composite, confidence,
		entryPlan, stop, tps, reasons, 0, tfConfluence, allSignals, zones, nil,
	)
	if err != nil {
		return nil, false
	}
	return setup, true
}

// dominantDirection returns the side with the larger summed strength; a
// tie yields NEUTRAL.
func dominantDirection(signals []model.IndicatorSignal) model.Direction {
	var longStrength, shortStrength float64
	for _, s := range signals {
		switch s.Direction {
		case model.Long:
			longStrength += s.Strength
		case model.Short:
			shortStrength += s.Strength
		}
	}
	switch {
	case longStrength > shortStrength:
		return model.Long
	case shortStrength > longStrength:
		return model.Short
	default:
		return model.Neutral
	}
}

func indicatorScoreOf(signals []model.IndicatorSignal, overall model.Direction) float64 {
	if len(signals) == 0 {
		return 0
	}
	var totalStrength, alignedStrength float64
	var alignedCount int
	for _, s := range signals {
		totalStrength += s.Strength
		if s.Direction == overall {
			alignedStrength += s.Strength
			alignedCount++
		}
	}
	alignedStrengthRatio := 0.0
	if totalStrength > 0 {
		alignedStrengthRatio = alignedStrength / totalStrength
	}
	alignedCountRatio := float64(alignedCount) / float64(len(signals))
	return (0.7*alignedStrengthRatio + 0.3*alignedCountRatio) * 100
}

func liquidationScoreOf(zones []model.LiquidationZone, overall model.Direction) float64 {
	if len(zones) == 0 {
		return 50
	}
	var supporting []model.LiquidationZone
	for _, z := range zones {
		if z.Direction == overall {
			supporting = append(supporting, z)
		}
	}
	if len(supporting) == 0 {
		return 30
	}
	var sumSig float64
	for _, z := range supporting {
		sumSig += z.Significance
	}
	avgSig := sumSig / float64(len(supporting))
	countRatio := math.Min(1, float64(len(supporting))/3)
	return (0.7*avgSig + 0.3*countRatio) * 100
}

func trendScoreOf(signals []model.IndicatorSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, s := range signals {
		sum += s.Strength
	}
	return sum / float64(len(signals)) * 100
}

func baselineGeometry(direction model.Direction, price float64) ([]float64, float64, []float64) {
	if direction == model.Long {
		return []float64{price}, price * 0.98, []float64{price * 1.02, price * 1.04}
	}
	return []float64{price}, price * 1.02, []float64{price * 0.98, price * 0.96}
}

func buildReasons(
	signals []model.IndicatorSignal,
	overall model.Direction,
	alignedTFs, totalTFs int,
	zones []model.LiquidationZone,
	score float64,
) []string {
	var reasons []string

	strongest := strongestAligned(signals, overall)
	if strongest != nil {
		reasons = append(reasons, fmt.Sprintf("%s on %s favors %s (strength %.2f)",
			strongest.Name, strongest.Timeframe, overall, strongest.Strength))
	}

	if alignedTFs > 0 {
		reasons = append(reasons, fmt.Sprintf("%d/%d timeframes aligned %s", alignedTFs, totalTFs, overall))
	}

	for _, z := range zones {
		if z.Direction == overall && z.Significance >= 0.5 {
			reasons = append(reasons, fmt.Sprintf("significant liquidation support near %.2f", z.Price))
			break
		}
	}

	reasons = append(reasons, qualitativeBand(score))

	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}

func strongestAligned(signals []model.IndicatorSignal, overall model.Direction) *model.IndicatorSignal {
	var best *model.IndicatorSignal
	for i := range signals {
		s := &signals[i]
		if s.Direction != overall {
			continue
		}
		if best == nil || s.Strength > best.Strength {
			best = s
		}
	}
	return best
}

func qualitativeBand(score float64) string {
	switch {
	case score >= 80:
		return "strong confluence score"
	case score >= 60:
		return "moderate confluence score"
	default:
		return "weak confluence score"
	}
}
