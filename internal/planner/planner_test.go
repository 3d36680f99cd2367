package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func TestEstimateLiqPrice_LongAndShort(t *testing.T) {
	longLiq := EstimateLiqPrice(100, 50, 0.005, model.Long)
	assert.InDelta(t, 100*(1-1.0/50+0.005), longLiq, 1e-9)

	shortLiq := EstimateLiqPrice(100, 50, 0.005, model.Short)
	assert.InDelta(t, 100*(1+1.0/50-0.005), shortLiq, 1e-9)
}

func TestLiquidationSafetyAndReduce(t *testing.T) {
	buffers := LiqBuffers{PctOfStop: 0.05, ATRMult: 1.0}
	entry, stop, leverage, mmr, atr := 100.0, 98.5, 50.0, 0.005, 1.0

	liq := EstimateLiqPrice(entry, leverage, mmr, model.Long)
	safe := LiqIsSafe(liq, stop, model.Long, buffers, atr)
	require.False(t, safe, "initial leverage should be unsafe inside the buffer")

	cfg := SizingConfig{
		LotSize: 0.001, MinNotional: 5, MaintMarginRate: mmr, Buffers: buffers,
		ReduceSizeIfUnsafe: true, SkipIfStillUnsafe: true,
	}
	result := PositionSizeLeverage(500, entry, stop, entry, leverage, atr, model.Long, cfg)

	if result.Qty == 0 {
		assert.NotEmpty(t, result.Reason)
	} else {
		assert.True(t, result.Safe)
	}
}

func TestQuantize_LotSizeAndMinNotional(t *testing.T) {
	qty := quantize(0.00123, 0.001, 50000, 10)
	assert.GreaterOrEqual(t, qty*50000, 10.0)
}

func TestProposeEntries_RejectsTooCloseToStop(t *testing.T) {
	in := EntriesInput{
		Direction: model.Long, Tick: 0.1, ATR: 10,
		Anchors: StructureAnchors{OBMid: 100, OBEdge: 99, FVG: 99},
		VWAP:    100, VWAPSigma: 0.1, BiasK: 0,
		Flow:    FlowContext{OBI: 0.5, SpreadBps: 1},
	}
	_, _, err := ProposeEntries(in, 99.99)
	assert.Error(t, err)
}

func TestDecideExecution_MakerGetsFallback(t *testing.T) {
	near := model.EntryLeg{Price: 100, Type: model.EntryLimit}
	far := model.EntryLeg{Price: 105, Type: model.EntryLimit}
	plan := DecideExecution(near, far, time.Now(), ExecutionConfig{MakerTimeout: 30_000_000_000})
	require.NotNil(t, plan.Fallback)
	assert.Equal(t, "maker_timeout", plan.Fallback.Reason)
}

func TestDecideExecution_StopHasNoFallback(t *testing.T) {
	near := model.EntryLeg{Price: 100, Type: model.EntryStop}
	far := model.EntryLeg{Price: 105, Type: model.EntryStop}
	plan := DecideExecution(near, far, time.Now(), ExecutionConfig{MakerTimeout: 30_000_000_000})
	assert.Nil(t, plan.Fallback)
}
