// Package planner derives executable entries, leverage-aware sizing, and
// execution hints from an accepted TradeSetup.
package planner

import (
	"math"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// Tunables governing maker-eligibility and the minimum entry/stop distance,
// matching the reference planner's module-level constants.
const (
	OBIMakerThreshold = 0.2
	MakerSpreadMaxBps = 5.0
	EntryATRMinFrac   = 0.1
)

// Session is the trading-session tag used for the optional entry tilt.
type Session string

const (
	SessionAsia   Session = "ASIA"
	SessionLondon Session = "LONDON"
	SessionNY     Session = "NY"
)

// StructureAnchors are the order-block/fair-value-gap reference prices the
// entry proposal anchors to.
type StructureAnchors struct {
	OBMid  float64
	OBEdge float64
	FVG    float64
}

// FlowContext is the order-flow snapshot feeding the maker-eligibility
// check.
type FlowContext struct {
	OBI        float64 // order-book imbalance, [-1,1]
	SpreadBps  float64
	LiqInZone  bool
}

// EntriesInput bundles everything ProposeEntries needs.
type EntriesInput struct {
	Direction model.Direction
	Tick      float64
	ATR       float64
	Anchors   StructureAnchors
	VWAP      float64
	VWAPSigma float64
	BiasK     float64 // bias = vwap +/- k*sigma
	Flow      FlowContext
	Session   Session
}

// ProposeEntries derives the near/far entry pair, choosing limit vs stop
// per leg from the order-flow maker-eligibility check, then tick-rounds
// both prices. It fails with an InvalidSetup error if the resulting
// entry/stop distance is below EntryATRMinFrac of ATR.
func ProposeEntries(in EntriesInput, stop float64) (near, far model.EntryLeg, err error) {
	bias := vwapBias(in.Direction, in.VWAP, in.VWAPSigma, in.BiasK)

	nearPrice := (in.Anchors.OBMid + bias) / 2
	farPrice := (in.Anchors.OBEdge + in.Anchors.FVG) / 2

	nearPrice, farPrice = applySessionTilt(in.Session, in.Direction, nearPrice, farPrice)

	makerAllowedNear := isMakerAllowed(in.Flow, true)
	makerAllowedFar := isMakerAllowed(in.Flow, false)

	nearType := model.EntryStop
	if makerAllowedNear {
		nearType = model.EntryLimit
	}
	farType := model.EntryStop
	if makerAllowedFar {
		farType = model.EntryLimit
	}

	nearPrice = stepForType(nearPrice, in.Tick, nearType, in.Direction)
	farPrice = stepForType(farPrice, in.Tick, farType, in.Direction)

	nearPrice = roundToTick(nearPrice, in.Tick)
	farPrice = roundToTick(farPrice, in.Tick)

	if math.Abs(nearPrice-stop) < in.ATR*EntryATRMinFrac {
		return model.EntryLeg{}, model.EntryLeg{}, model.NewError(model.ErrInvalidSetup, "entry too close to stop relative to ATR")
	}

	near = model.EntryLeg{Price: nearPrice, Type: nearType, PostOnly: nearType == model.EntryLimit, Reason: "near entry"}
	far = model.EntryLeg{Price: farPrice, Type: farType, PostOnly: farType == model.EntryLimit, Reason: "far entry"}
	return near, far, nil
}

func vwapBias(direction model.Direction, vwap, sigma, k float64) float64 {
	if direction == model.Long {
		return vwap - k*sigma
	}
	return vwap + k*sigma
}

// isMakerAllowed reports whether a leg may use a passive limit order. The
// liquidation-cluster veto only applies to the near leg per the reference
// planner.
func isMakerAllowed(flow FlowContext, isNear bool) bool {
	if flow.OBI < OBIMakerThreshold {
		return false
	}
	if flow.SpreadBps > MakerSpreadMaxBps {
		return false
	}
	if isNear && flow.LiqInZone {
		return false
	}
	return true
}

func applySessionTilt(session Session, direction model.Direction, near, far float64) (float64, float64) {
	tiltFrac := 0.0
	switch session {
	case SessionLondon, SessionNY:
		tiltFrac = -0.1 // tighten toward current structure
	case SessionAsia:
		tiltFrac = 0.1 // loosen
	}
	if tiltFrac == 0 {
		return near, far
	}
	spread := far - near
	adjust := spread * tiltFrac
	if direction == model.Long {
		return near + adjust, far - adjust
	}
	return near - adjust, far + adjust
}

// stepForType moves a limit price one tick toward the market (inside) or a
// stop price one tick away from it (outside), in the trade direction.
func stepForType(price, tick float64, t model.EntryType, direction model.Direction) float64 {
	if tick <= 0 {
		return price
	}
	sign := 1.0
	if direction == model.Short {
		sign = -1.0
	}
	if t == model.EntryLimit {
		return price + sign*tick
	}
	return price - sign*tick
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}
