package model

// OrderSide mirrors the venue's buy/sell vocabulary.
type OrderSide int

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// OrderStatus is the closed set of statuses an OrderState can hold. Status
// transitions are append-only and never move backward: Intent -> Working ->
// one of {Filled, Rejected, Canceled, Amended}.
type OrderStatus int

const (
	StatusIntent OrderStatus = iota
	StatusWorking
	StatusFilled
	StatusRejected
	StatusCanceled
	StatusAmended
)

func (s OrderStatus) String() string {
	switch s {
	case StatusIntent:
		return "intent"
	case StatusWorking:
		return "working"
	case StatusFilled:
		return "filled"
	case StatusRejected:
		return "rejected"
	case StatusCanceled:
		return "canceled"
	case StatusAmended:
		return "amended"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is permitted.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCanceled:
		return true
	default:
		return false
	}
}

// statusRank gives the monotonic ordering used to reject backward
// transitions. Working and Amended share a rank, so Working may repeat (a
// stop-entry fallback replaces the limit leg while the plan stays Working).
// Filled and Canceled may only follow Working or Amended; Rejected may also
// follow Intent, for an immediate rejection.
var statusRank = map[OrderStatus]int{
	StatusIntent:   0,
	StatusWorking:  1,
	StatusFilled:   2,
	StatusRejected: 2,
	StatusCanceled: 2,
	StatusAmended:  1,
}

// CanTransition reports whether moving from `from` to `to` respects the
// monotonic status ordering.
func CanTransition(from, to OrderStatus) bool {
	if from.Terminal() {
		return false
	}
	if from == StatusIntent && to.Terminal() && to != StatusRejected {
		return false
	}
	return statusRank[to] >= statusRank[from]
}

// OrderIntent is the venue-facing order request the executor builds from a
// TradePlan leg.
type OrderIntent struct {
	PlanID         string
	Symbol         string
	Side           OrderSide
	Type           EntryType
	Price          float64
	StopPx         float64
	Qty            float64
	PostOnly       bool
	ReduceOnly     bool
	IdempotencyKey string
}

// Fill is one partial or full execution against an OrderIntent.
type Fill struct {
	TimestampMs int64
	Price       float64
	Qty         float64
	Role        string // "limit" | "fallback"
}

// OrderState is the persisted, single-writer-owned record for one plan_id.
type OrderState struct {
	PlanID      string
	Status      OrderStatus
	ExchangeIDs map[string]string
	Fills       []Fill
	Plan        *TradePlan
}

// NewOrderState returns the initial "intent" record for a freshly minted
// plan_id.
func NewOrderState(planID string, plan *TradePlan) *OrderState {
	return &OrderState{
		PlanID:      planID,
		Status:      StatusIntent,
		ExchangeIDs: map[string]string{},
		Fills:       []Fill{},
		Plan:        plan,
	}
}

// Transition moves the record forward, rejecting any backward or
// out-of-order move.
func (o *OrderState) Transition(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return NewError(ErrInvalidSetup, "illegal order status transition")
	}
	o.Status = to
	return nil
}
