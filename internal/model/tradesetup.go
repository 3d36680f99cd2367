package model

import "time"

// TradeSetup is a scored, directional candidate produced by the confluence
// scorer. Construct it only through NewTradeSetup, which enforces the
// LONG/SHORT entry-stop-target geometry invariants at build time instead of
// relying on a runtime validator.
type TradeSetup struct {
	Symbol             string
	Exchange           string
	Direction          Direction
	Score              float64 // [0,100]
	Confidence         float64 // [0,1]
	EntryPlan          []float64
	StopLoss           float64
	TakeProfits        []float64
	RR                 float64
	Reasons            []string
	TimeMs             int64
	TfConfluence       map[string]Direction
	IndicatorSummaries []IndicatorSignal
	LiquidationZones   []LiquidationZone
	Metadata           map[string]any
}

// NewTradeSetup validates the LONG/SHORT geometry invariants and computes
// RR before returning a TradeSetup. It returns an InvalidSetup error on any
// violation instead of constructing a malformed value.
func NewTradeSetup(
	symbol, exchange string,
	direction Direction,
	score, confidence float64,
	entryPlan []float64,
	stopLoss float64,
	takeProfits []float64,
	reasons []string,
	timeMs int64,
	tfConfluence map[string]Direction,
	indicators []IndicatorSignal,
	liqZones []LiquidationZone,
	metadata map[string]any,
) (*TradeSetup, error) {
	if direction != Long && direction != Short {
		return nil, NewError(ErrInvalidSetup, "direction must be LONG or SHORT")
	}
	if len(entryPlan) == 0 {
		return nil, NewError(ErrInvalidSetup, "entry_plan must be non-empty")
	}
	if len(takeProfits) == 0 {
		return nil, NewError(ErrInvalidSetup, "take_profits must be non-empty")
	}
	if len(reasons) == 0 {
		return nil, NewError(ErrInvalidSetup, "reasons must be non-empty")
	}

	entry := entryPlan[0]
	minTP := takeProfits[0]
	maxTP := takeProfits[0]
	for _, tp := range takeProfits {
		if tp < minTP {
			minTP = tp
		}
		if tp > maxTP {
			maxTP = tp
		}
	}

	switch direction {
	case Long:
		if !(stopLoss < entry && entry < minTP) {
			return nil, NewError(ErrInvalidSetup, "LONG requires stop_loss < entry_plan[0] < min(take_profits)")
		}
	case Short:
		if !(stopLoss > entry && entry > maxTP) {
			return nil, NewError(ErrInvalidSetup, "SHORT requires stop_loss > entry_plan[0] > max(take_profits)")
		}
	}

	rr := RewardToRisk(entry, stopLoss, takeProfits[0], direction)
	if rr <= 0 {
		return nil, NewError(ErrInvalidSetup, "rr must be positive")
	}

	if timeMs == 0 {
		timeMs = time.Now().UnixMilli()
	}

	return &TradeSetup{
		Symbol:             symbol,
		Exchange:           exchange,
		Direction:          direction,
		Score:              clampScore(score),
		Confidence:         ClampUnit(confidence),
		EntryPlan:          entryPlan,
		StopLoss:           stopLoss,
		TakeProfits:        takeProfits,
		RR:                 rr,
		Reasons:            reasons,
		TimeMs:             timeMs,
		TfConfluence:       tfConfluence,
		IndicatorSummaries: indicators,
		LiquidationZones:   liqZones,
		Metadata:           metadata,
	}, nil
}

// RewardToRisk computes reward/risk for the first target, returning 0 for
// invalid geometry instead of a negative or NaN ratio.
func RewardToRisk(entry, stop, tp1 float64, direction Direction) float64 {
	risk := 0.0
	reward := 0.0
	switch direction {
	case Long:
		risk = entry - stop
		reward = tp1 - entry
	case Short:
		risk = stop - entry
		reward = entry - tp1
	default:
		return 0
	}
	if risk <= 0 || reward <= 0 {
		return 0
	}
	return reward / risk
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
