package liquidity

import (
	"sync"
	"time"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// LiquidationEvent is one forced-liquidation print from the venue's
// liquidation stream.
type LiquidationEvent struct {
	Symbol    string
	Price     float64
	Qty       float64
	Side      model.Direction
	Timestamp time.Time
}

// Monitor aggregates recent liquidation prints per symbol into a rolling
// window, generalizing the windowed volume tracker the whale-detection
// worker used for its own per-symbol liquidation feed.
type Monitor struct {
	mu     sync.Mutex
	window time.Duration
	events map[string][]LiquidationEvent
}

// NewMonitor returns a Monitor that retains, per symbol, the events within
// window of that symbol's newest print.
func NewMonitor(window time.Duration) *Monitor {
	return &Monitor{window: window, events: make(map[string][]LiquidationEvent)}
}

// Add records a liquidation print and evicts anything older than window,
// measured back from the newest print recorded for the symbol.
func (m *Monitor) Add(evt LiquidationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[evt.Symbol] = append(m.events[evt.Symbol], evt)
	now := evt.Timestamp
	for _, e := range m.events[evt.Symbol] {
		if e.Timestamp.After(now) {
			now = e.Timestamp
		}
	}
	m.cleanupLocked(evt.Symbol, now)
}

func (m *Monitor) cleanupLocked(symbol string, now time.Time) {
	cutoff := now.Add(-m.window)
	events := m.events[symbol]
	kept := events[:0]
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	m.events[symbol] = kept
}

// Volume returns the summed notional (price*qty) of liquidations on the
// given side within the current window.
func (m *Monitor) Volume(symbol string, side model.Direction) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, e := range m.events[symbol] {
		if e.Side == side {
			total += e.Price * e.Qty
		}
	}
	return total
}

// Zones converts the current window's events for symbol into
// LiquidationZone buckets by rounding price to a coarse grid, producing
// the same shape the synthetic provider returns so the scorer and planner
// can treat either source uniformly.
func (m *Monitor) Zones(symbol string, gridPct float64) []model.LiquidationZone {
	m.mu.Lock()
	events := append([]LiquidationEvent(nil), m.events[symbol]...)
	m.mu.Unlock()

	buckets := make(map[float64]*model.LiquidationZone)
	for _, e := range events {
		if e.Price <= 0 {
			continue
		}
		grid := gridPct
		if grid <= 0 {
			grid = 0.005
		}
		key := roundToGrid(e.Price, grid)
		z, ok := buckets[key]
		if !ok {
			z = &model.LiquidationZone{Price: key, Direction: e.Side}
			buckets[key] = z
		}
		z.Notional += e.Price * e.Qty
	}

	out := make([]model.LiquidationZone, 0, len(buckets))
	for _, z := range buckets {
		z.Significance = minFloat(1, z.Notional/5_000_000)
		out = append(out, *z)
	}
	return out
}

func roundToGrid(price, gridPct float64) float64 {
	step := price * gridPct
	if step <= 0 {
		return price
	}
	return step * float64(int(price/step+0.5))
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
