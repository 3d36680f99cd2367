package planner

import (
	"time"

	"github.com/google/uuid"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// BuildInput bundles everything BuildPlan needs beyond the setup itself.
type BuildInput struct {
	Entries  EntriesInput
	Sizing   SizingConfig
	Exec     ExecutionConfig
	RiskUSD  float64
	Leverage float64
	ATR      float64
	Price    float64
	Now      time.Time
}

// BuildPlan derives the full TradePlan (entries, sizing, execution hints)
// from an accepted TradeSetup. It returns an error only if the entries fail
// the ATR-distance guard; the setup's own fields are not re-validated.
func BuildPlan(setup *model.TradeSetup, in BuildInput) (*model.TradePlan, error) {
	near, far, err := ProposeEntries(in.Entries, setup.StopLoss)
	if err != nil {
		return nil, err
	}

	sizing := PositionSizeLeverage(
		in.RiskUSD, near.Price, setup.StopLoss, in.Price, in.Leverage, in.ATR,
		setup.Direction, in.Sizing,
	)

	execution := DecideExecution(near, far, in.Now, in.Exec)

	plan := &model.TradePlan{
		ID:        uuid.NewString(),
		Setup:     setup,
		Sizing:    sizing,
		Execution: execution,
		Leverage:  in.Leverage,
		Links:     map[string]string{},
		Metadata:  map[string]any{},
	}
	plan.Entries.Near = near
	plan.Entries.Far = far
	return plan, nil
}
