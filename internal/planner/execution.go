package planner

import (
	"time"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// ExecutionConfig carries the maker-timeout duration used to schedule the
// stop-entry fallback.
type ExecutionConfig struct {
	MakerTimeout time.Duration
}

// DecideExecution builds the near/far execution hints and, when the near
// leg is a passive maker limit, a fallback stop-entry that activates after
// the maker timeout. A stop-type near leg needs no fallback since it is
// already an aggressive entry.
func DecideExecution(near, far model.EntryLeg, now time.Time, cfg ExecutionConfig) model.ExecutionPlan {
	plan := model.ExecutionPlan{
		NearPlan: execHint(near, now, cfg),
		FarPlan:  execHint(far, now, cfg),
	}

	if near.Type == model.EntryLimit {
		plan.Fallback = &model.FallbackPlan{
			ActivateAfterMs: cfg.MakerTimeout.Milliseconds(),
			Price:           near.Price,
			Reason:          "maker_timeout",
		}
	}

	return plan
}

func execHint(leg model.EntryLeg, now time.Time, cfg ExecutionConfig) model.ExecHint {
	if leg.Type != model.EntryLimit {
		return model.ExecHint{IsMaker: false}
	}
	return model.ExecHint{
		ValidUntilMs: now.Add(cfg.MakerTimeout).UnixMilli(),
		IsMaker:      true,
	}
}
