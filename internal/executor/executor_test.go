package executor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/journal"
	"github.com/nightfall-quant/perpscan/internal/metrics"
	"github.com/nightfall-quant/perpscan/internal/model"
)

// fakeVenue records every call it receives so tests can assert on call
// counts without a real exchange.
type fakeVenue struct {
	placeCalls  int
	cancelCalls int
	nextID      int
	placeErr    error
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, intent model.OrderIntent) (string, error) {
	f.placeCalls++
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.nextID++
	return "ex-" + time.Now().Format("150405") + "-" + string(rune('a'+f.nextID)), nil
}

func (f *fakeVenue) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	f.cancelCalls++
	return nil
}

func testPlan(t *testing.T) *model.TradePlan {
	t.Helper()
	setup, err := model.NewTradeSetup(
		"BTCUSDT", "binance", model.Long, 80, 0.8,
		[]float64{100}, 95, []float64{110},
		[]string{"htf_trend_agrees"}, 1, nil, nil, nil, nil,
	)
	require.NoError(t, err)

	plan := &model.TradePlan{
		ID:    "plan-1",
		Setup: setup,
		Sizing: model.SizingResult{
			Qty: 1, Notional: 100, LiqPrice: 50, Safe: true,
		},
	}
	plan.Entries.Near = model.EntryLeg{Price: 100, Type: model.EntryLimit, PostOnly: true}
	plan.Entries.Far = model.EntryLeg{Price: 101, Type: model.EntryLimit}
	plan.Execution.Fallback = &model.FallbackPlan{ActivateAfterMs: 60000, Price: 99, Reason: "maker_timeout"}
	return plan
}

func newExecutor(t *testing.T, venue Venue, pol model.Policy) *Executor {
	t.Helper()
	dir := t.TempDir()
	store, err := journal.NewOrderStateStore(filepath.Join(dir, "orders.json"))
	require.NoError(t, err)
	jw, err := journal.NewWriter(filepath.Join(dir, "journal.jsonl"))
	require.NoError(t, err)
	reg := metrics.NewRegistry(prometheus.NewRegistry(), time.Hour)

	return NewExecutor(pol, "scanner_", time.Minute, venue, store, jw, reg, model.PortfolioState{})
}

func allowingPolicy() model.Policy {
	return model.Policy{
		AutotradeEnabled:     true,
		AutotradeMode:        "live",
		PerSymbolExposureMax: 10000,
		TotalExposureMax:     10000,
		MaxConcurrentTrades:  10,
		PerTradeRiskUSD:      1000,
	}
}

func TestExecute_PlacesLimitOrderAndTransitionsToWorking(t *testing.T) {
	venue := &fakeVenue{}
	ex := newExecutor(t, venue, allowingPolicy())
	plan := testPlan(t)

	state, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, model.StatusWorking, state.Status)
	require.Equal(t, 1, venue.placeCalls)
	require.NotEmpty(t, state.ExchangeIDs["limit"])

	snap := ex.Snapshot()
	require.Equal(t, 1, snap.OpenTrades)
	require.Equal(t, 100.0, snap.SymbolExposure["BTCUSDT"])
}

func TestExecute_IsIdempotentAcrossRepeatedCalls(t *testing.T) {
	venue := &fakeVenue{}
	ex := newExecutor(t, venue, allowingPolicy())
	plan := testPlan(t)

	first, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	second, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	require.Equal(t, 1, venue.placeCalls)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.ExchangeIDs["limit"], second.ExchangeIDs["limit"])

	snap := ex.Snapshot()
	require.Equal(t, 1, snap.OpenTrades, "exposure must not double-book on a repeat Execute")
}

func TestExecute_BlockedByPolicyNeverCallsVenue(t *testing.T) {
	venue := &fakeVenue{}
	pol := allowingPolicy()
	pol.AutotradeEnabled = false
	ex := newExecutor(t, venue, pol)
	plan := testPlan(t)

	state, err := ex.Execute(context.Background(), plan)
	require.Error(t, err)
	require.Nil(t, state)
	require.Equal(t, 0, venue.placeCalls)
}

func TestExecute_VenueRejectionMarksOrderRejected(t *testing.T) {
	venue := &fakeVenue{placeErr: model.NewError(model.ErrExchangeFatal, "insufficient margin")}
	ex := newExecutor(t, venue, allowingPolicy())
	plan := testPlan(t)

	state, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, model.StatusRejected, state.Status)

	snap := ex.Snapshot()
	require.Equal(t, 0, snap.OpenTrades, "a rejected order must not consume exposure")
}

func TestExpireMakerLeg_CancelsWorkingLimitAndPlacesFallback(t *testing.T) {
	venue := &fakeVenue{}
	ex := newExecutor(t, venue, allowingPolicy())
	plan := testPlan(t)

	_, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	err = ex.ExpireMakerLeg(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, 1, venue.cancelCalls)
	require.Equal(t, 2, venue.placeCalls)

	state, ok, err := ex.Store.Get(plan.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, state.ExchangeIDs["fallback"])
}

func TestRecordFill_ReleasesExposureAndTracksRealizedLoss(t *testing.T) {
	venue := &fakeVenue{}
	ex := newExecutor(t, venue, allowingPolicy())
	plan := testPlan(t)

	_, err := ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	err = ex.RecordFill(plan, model.Fill{TimestampMs: 1, Price: 100, Qty: 1, Role: "limit"}, -25)
	require.NoError(t, err)

	snap := ex.Snapshot()
	require.Equal(t, 0, snap.OpenTrades)
	require.Equal(t, 0.0, snap.SymbolExposure["BTCUSDT"])
	require.Equal(t, 25.0, snap.DailyRealizedLoss)

	state, ok, err := ex.Store.Get(plan.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.StatusFilled, state.Status)
	require.Len(t, state.Fills, 1)
}
