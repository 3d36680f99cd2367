// Package executor turns an accepted TradePlan into venue order intents,
// gated by policy, journaled append-only, and tracked through a single
// persisted order-state document per plan.
package executor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nightfall-quant/perpscan/internal/journal"
	"github.com/nightfall-quant/perpscan/internal/metrics"
	"github.com/nightfall-quant/perpscan/internal/model"
	"github.com/nightfall-quant/perpscan/internal/policy"
)

// Executor owns the policy gate, the persisted order-state store, the
// append-only journal, and the mutable portfolio snapshot the policy gate
// reads. All mutation of the portfolio snapshot happens under mu.
type Executor struct {
	Policy            model.Policy
	IdempotencyPrefix string
	MakerTimeout      time.Duration
	Venue             Venue
	Store             *journal.OrderStateStore
	Journal           *journal.Writer
	Metrics           *metrics.Registry
	Now               func() time.Time

	mu    sync.Mutex
	state model.PortfolioState
}

// NewExecutor wires the executor's dependencies. state is copied as the
// initial portfolio snapshot.
func NewExecutor(
	pol model.Policy,
	idempotencyPrefix string,
	makerTimeout time.Duration,
	venue Venue,
	store *journal.OrderStateStore,
	j *journal.Writer,
	reg *metrics.Registry,
	state model.PortfolioState,
) *Executor {
	if state.SymbolExposure == nil {
		state.SymbolExposure = map[string]float64{}
	}
	return &Executor{
		Policy: pol, IdempotencyPrefix: idempotencyPrefix, MakerTimeout: makerTimeout,
		Venue: venue, Store: store, Journal: j, Metrics: reg, state: state,
	}
}

func (ex *Executor) now() time.Time {
	if ex.Now != nil {
		return ex.Now()
	}
	return time.Now()
}

// Snapshot returns a copy of the current portfolio state, safe for callers
// to inspect without racing Execute.
func (ex *Executor) Snapshot() model.PortfolioState {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	cp := ex.state
	cp.SymbolExposure = make(map[string]float64, len(ex.state.SymbolExposure))
	for k, v := range ex.state.SymbolExposure {
		cp.SymbolExposure[k] = v
	}
	return cp
}

// Execute places the near-leg order for plan, after checking policy and
// after checking for an already-persisted record under plan.ID — a repeat
// call with the same plan is a no-op that returns the existing record
// instead of placing a second order.
func (ex *Executor) Execute(ctx context.Context, plan *model.TradePlan) (*model.OrderState, error) {
	if existing, ok, err := ex.Store.Get(plan.ID); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	symbol := plan.Setup.Symbol
	notional := plan.Sizing.Notional
	tradeRisk := math.Abs(plan.Entries.Near.Price-plan.Setup.StopLoss) * plan.Sizing.Qty

	ex.mu.Lock()
	res := policy.Check(ex.Policy, ex.state, symbol, notional, tradeRisk, ex.now())
	ex.mu.Unlock()

	if !res.Allowed {
		ex.journalEvent(plan.ID, symbol, "policy_blocked", map[string]any{"reason": res.Reason})
		return nil, model.NewError(model.ErrInvalidSetup, "policy blocked: "+res.Reason)
	}

	if ex.Metrics != nil {
		ex.Metrics.OrdersAttempted.Inc()
	}
	if err := ex.Store.SaveIntent(plan.ID, plan); err != nil {
		return nil, err
	}
	ex.journalEvent(plan.ID, symbol, "intent_created", map[string]any{"notional": notional})

	idemKey := ex.IdempotencyPrefix + plan.ID + "_limit"
	near := plan.Entries.Near
	orderID, err := ex.Venue.PlaceOrder(ctx, model.OrderIntent{
		PlanID: plan.ID, Symbol: symbol, Side: sideFor(plan.Setup.Direction),
		Type: near.Type, Price: near.Price, Qty: plan.Sizing.Qty,
		PostOnly: near.PostOnly, IdempotencyKey: idemKey,
	})
	if err != nil {
		_ = ex.Store.UpdateStatus(plan.ID, model.StatusRejected, nil)
		ex.journalEvent(plan.ID, symbol, "limit_rejected", map[string]any{"error": err.Error()})
		if ex.Metrics != nil {
			ex.Metrics.OrdersFailed.Inc()
		}
		state, _, getErr := ex.Store.Get(plan.ID)
		if getErr != nil {
			return nil, getErr
		}
		return state, nil
	}

	if err := ex.Store.UpdateStatus(plan.ID, model.StatusWorking, map[string]string{"limit": orderID}); err != nil {
		return nil, err
	}
	ex.journalEvent(plan.ID, symbol, "limit_placed", map[string]any{
		"order_id": orderID, "price": near.Price, "qty": plan.Sizing.Qty,
	})

	ex.mu.Lock()
	ex.state.OpenTrades++
	ex.state.SymbolExposure[symbol] += notional
	ex.state.TotalExposure += notional
	ex.mu.Unlock()

	state, _, err := ex.Store.Get(plan.ID)
	return state, err
}

// ExpireMakerLeg cancels a still-working limit order past its maker timeout
// and places the stop-entry fallback in its place, per the plan's fallback
// configuration. It is a no-op if the plan has no fallback or is no longer
// working.
func (ex *Executor) ExpireMakerLeg(ctx context.Context, plan *model.TradePlan) error {
	if plan.Execution.Fallback == nil {
		return nil
	}
	current, ok, err := ex.Store.Get(plan.ID)
	if err != nil {
		return err
	}
	if !ok || current.Status != model.StatusWorking {
		return nil
	}

	if limitID, has := current.ExchangeIDs["limit"]; has {
		if err := ex.Venue.CancelOrder(ctx, plan.Setup.Symbol, limitID); err != nil {
			return err
		}
	}

	idemKey := ex.IdempotencyPrefix + plan.ID + "_fallback"
	orderID, err := ex.Venue.PlaceOrder(ctx, model.OrderIntent{
		PlanID: plan.ID, Symbol: plan.Setup.Symbol, Side: sideFor(plan.Setup.Direction),
		Type: model.EntryStop, StopPx: plan.Execution.Fallback.Price, Qty: plan.Sizing.Qty,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		ex.journalEvent(plan.ID, plan.Setup.Symbol, "fallback_rejected", map[string]any{"error": err.Error()})
		return err
	}

	if err := ex.Store.UpdateStatus(plan.ID, model.StatusWorking, map[string]string{"fallback": orderID}); err != nil {
		return err
	}
	ex.journalEvent(plan.ID, plan.Setup.Symbol, "fallback_triggered", map[string]any{
		"order_id": orderID, "reason": plan.Execution.Fallback.Reason,
	})
	return nil
}

// RecordFill appends a fill and transitions the record to filled, updates
// the realized-PnL-driven daily loss counter, and releases the plan's
// exposure from the portfolio snapshot. Every call is treated as closing the
// position; partial fills are not tracked separately.
func (ex *Executor) RecordFill(plan *model.TradePlan, fill model.Fill, realizedPnL float64) error {
	if err := ex.Store.AppendFill(plan.ID, fill); err != nil {
		return err
	}
	if err := ex.Store.UpdateStatus(plan.ID, model.StatusFilled, nil); err != nil {
		return err
	}

	ex.mu.Lock()
	if ex.state.OpenTrades > 0 {
		ex.state.OpenTrades--
	}
	ex.state.SymbolExposure[plan.Setup.Symbol] -= plan.Sizing.Notional
	if ex.state.SymbolExposure[plan.Setup.Symbol] < 0 {
		ex.state.SymbolExposure[plan.Setup.Symbol] = 0
	}
	ex.state.TotalExposure -= plan.Sizing.Notional
	if ex.state.TotalExposure < 0 {
		ex.state.TotalExposure = 0
	}
	if realizedPnL < 0 {
		ex.state.DailyRealizedLoss += -realizedPnL
	}
	ex.mu.Unlock()

	if ex.Metrics != nil {
		ex.Metrics.OrdersFilled.Inc()
		ex.Metrics.OrdersRecorded.Inc()
	}
	ex.journalEvent(plan.ID, plan.Setup.Symbol, "fill_recorded", map[string]any{
		"price": fill.Price, "qty": fill.Qty, "role": fill.Role, "realized_pnl": realizedPnL,
	})
	return nil
}

func (ex *Executor) journalEvent(planID, symbol, event string, details map[string]any) {
	if ex.Journal == nil {
		return
	}
	_ = ex.Journal.Append(journal.Event{
		Timestamp: ex.now(), PlanID: planID, Symbol: symbol, Event: event, Details: details,
	})
}

func sideFor(direction model.Direction) model.OrderSide {
	if direction == model.Short {
		return model.SideSell
	}
	return model.SideBuy
}
