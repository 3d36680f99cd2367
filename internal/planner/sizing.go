package planner

import (
	"math"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// SizingConfig carries the lot/notional constraints and the liquidation
// safety guardrails.
type SizingConfig struct {
	LotSize               float64
	MinNotional           float64
	MaintMarginRate       float64
	Buffers               LiqBuffers
	ReduceSizeIfUnsafe    bool
	SkipIfStillUnsafe     bool
}

// PositionSizeLeverage sizes a position from a risk-in-quote budget,
// quantizes it to the lot size, bumps it to the minimum notional if
// needed, then verifies liquidation safety at the given leverage —
// reducing leverage (and re-quantizing) when the position is unsafe and
// the config allows it.
func PositionSizeLeverage(
	riskUSD, entry, stop, price, leverage, atr float64,
	direction model.Direction,
	cfg SizingConfig,
) model.SizingResult {
	riskPerUnit := math.Abs(entry - stop)
	if riskPerUnit <= 0 {
		return model.SizingResult{Reason: "invalid_entry_stop_distance"}
	}

	qty := riskUSD / riskPerUnit
	qty = quantize(qty, cfg.LotSize, price, cfg.MinNotional)
	if qty <= 0 {
		return model.SizingResult{Reason: "qty_rounds_to_zero"}
	}

	liq := EstimateLiqPrice(entry, leverage, cfg.MaintMarginRate, direction)
	safe := LiqIsSafe(liq, stop, direction, cfg.Buffers, atr)

	effectiveLeverage := leverage
	if !safe && cfg.ReduceSizeIfUnsafe {
		maxLev, ok := MaxSafeLeverage(entry, stop, cfg.MaintMarginRate, atr, direction, cfg.Buffers)
		if ok && maxLev < leverage && maxLev > 0 {
			scale := maxLev / leverage
			qty = quantize(qty*scale, cfg.LotSize, price, cfg.MinNotional)
			effectiveLeverage = maxLev
			liq = EstimateLiqPrice(entry, effectiveLeverage, cfg.MaintMarginRate, direction)
			safe = LiqIsSafe(liq, stop, direction, cfg.Buffers, atr)
		}
	}

	if !safe && cfg.SkipIfStillUnsafe {
		return model.SizingResult{Qty: 0, LiqPrice: liq, Safe: false, Reason: "liquidation_unsafe_after_reduce"}
	}

	return model.SizingResult{
		Qty:      qty,
		Notional: qty * price,
		LiqPrice: liq,
		Safe:     safe,
		Reason:   sizingReason(safe),
	}
}

func sizingReason(safe bool) string {
	if safe {
		return "ok"
	}
	return "liquidation_unsafe"
}

// quantize rounds qty down to the nearest lotSize multiple (when lotSize >
// 0), then bumps up to the smallest lot multiple meeting minNotional.
func quantize(qty, lotSize, price, minNotional float64) float64 {
	if lotSize > 0 {
		qty = math.Floor(qty/lotSize) * lotSize
	}
	if qty <= 0 {
		return 0
	}
	if minNotional > 0 && price > 0 && qty*price < minNotional {
		needed := minNotional / price
		if lotSize > 0 {
			lots := math.Ceil(needed / lotSize)
			qty = lots * lotSize
		} else {
			qty = needed
		}
	}
	return qty
}
