package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func TestOrderStateStore_IntentThenWorkingThenFilled(t *testing.T) {
	dir := t.TempDir()
	store, err := NewOrderStateStore(filepath.Join(dir, "orders_state.json"))
	require.NoError(t, err)

	require.NoError(t, store.SaveIntent("plan-1", &model.TradePlan{}))
	state, ok, err := store.Get("plan-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.StatusIntent, state.Status)

	require.NoError(t, store.UpdateStatus("plan-1", model.StatusWorking, map[string]string{"limit": "ex-1"}))
	require.NoError(t, store.UpdateStatus("plan-1", model.StatusFilled, nil))

	state, _, err = store.Get("plan-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFilled, state.Status)
	assert.Equal(t, "ex-1", state.ExchangeIDs["limit"])
}

func TestOrderStateStore_RejectsBackwardTransition(t *testing.T) {
	dir := t.TempDir()
	store, err := NewOrderStateStore(filepath.Join(dir, "orders_state.json"))
	require.NoError(t, err)

	require.NoError(t, store.SaveIntent("plan-1", &model.TradePlan{}))
	require.NoError(t, store.UpdateStatus("plan-1", model.StatusWorking, nil))
	require.NoError(t, store.UpdateStatus("plan-1", model.StatusFilled, nil))

	err = store.UpdateStatus("plan-1", model.StatusWorking, nil)
	assert.Error(t, err)
}

func TestOrderStateStore_LoadOpenOrdersExcludesTerminal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewOrderStateStore(filepath.Join(dir, "orders_state.json"))
	require.NoError(t, err)

	require.NoError(t, store.SaveIntent("open-1", &model.TradePlan{}))
	require.NoError(t, store.SaveIntent("done-1", &model.TradePlan{}))
	require.NoError(t, store.UpdateStatus("done-1", model.StatusWorking, nil))
	require.NoError(t, store.UpdateStatus("done-1", model.StatusFilled, nil))

	open, err := store.LoadOpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "open-1", open[0].PlanID)
}
