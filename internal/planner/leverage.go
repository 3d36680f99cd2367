package planner

import (
	"math"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// LiqBuffers are the two configured safety margins between the estimated
// liquidation price and the stop: a fraction of the stop price (0.05 is 5%)
// and a multiple of ATR. Whichever is larger applies.
type LiqBuffers struct {
	PctOfStop float64
	ATRMult   float64
}

func (b LiqBuffers) required(stop, atr float64) float64 {
	return math.Max(stop*b.PctOfStop, atr*b.ATRMult)
}

// EstimateLiqPrice computes the isolated-margin liquidation price for a
// position opened at entry with leverage L and maintenance margin rate mmr.
func EstimateLiqPrice(entry, leverage, mmr float64, direction model.Direction) float64 {
	if leverage <= 0 {
		return 0
	}
	if direction == model.Long {
		return entry * (1 - 1/leverage + mmr)
	}
	return entry * (1 + 1/leverage - mmr)
}

// LiqIsSafe reports whether the liquidation price clears the stop by at
// least the required buffer, on the correct side of the stop for the
// trade direction.
func LiqIsSafe(liq, stop float64, direction model.Direction, buffers LiqBuffers, atr float64) bool {
	required := buffers.required(stop, atr)
	if direction == model.Long {
		return liq < stop && (stop-liq) >= required
	}
	return liq > stop && (liq-stop) >= required
}

// MaxSafeLeverage solves algebraically for the largest leverage at which
// the liquidation price still clears the stop by the required buffer,
// given the entry/stop/mmr/atr inputs. Returns (leverage, ok); ok is false
// if no positive leverage satisfies the buffer.
func MaxSafeLeverage(entry, stop, mmr, atr float64, direction model.Direction, buffers LiqBuffers) (float64, bool) {
	required := buffers.required(stop, atr)
	// LONG: liq = entry*(1 - 1/L + mmr); need stop - liq >= required
	//   => liq <= stop - required
	//   => entry*(1 + mmr) - entry/L <= stop - required
	//   => entry/L >= entry*(1+mmr) - stop + required
	//   => L <= entry / (entry*(1+mmr) - stop + required)
	// SHORT is the mirror image.
	var denom float64
	if direction == model.Long {
		denom = entry*(1+mmr) - stop + required
	} else {
		denom = stop - entry*(1-mmr) + required
	}
	if denom <= 0 {
		return 0, false
	}
	leverage := entry / denom
	if leverage <= 0 {
		return 0, false
	}
	return leverage, true
}
