package gates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func baseCandidate() Candidate {
	return Candidate{
		Price: 100, EntryNear: 101, EntryStop: 95, EntryTP1: 113,
		Direction: model.Long, AgeMin: 0, VolumeUSD24h: 200_000, SpreadBps: 5,
		HasOB: true, HasFVG: true, BosInFavor: true, HtfTrendAgrees: true,
		ObQuality: 0.8, Regime: Trending, Venue: "binance", ListedOnVenue: true,
		AtrPct: 2,
	}
}

func TestGates_RRFloor(t *testing.T) {
	accepted := Evaluate([]Candidate{baseCandidate()}, DefaultConfig)
	require.Len(t, accepted, 1)
	assert.InDelta(t, 2.0, accepted[0].RR, 0.001)

	weaker := baseCandidate()
	weaker.EntryTP1 = 112
	rejected := Evaluate([]Candidate{weaker}, DefaultConfig)
	assert.Empty(t, rejected)

	short := baseCandidate()
	short.Direction = model.Short
	short.EntryNear = 99
	short.EntryStop = 105
	short.EntryTP1 = 87
	acceptedShort := Evaluate([]Candidate{short}, DefaultConfig)
	require.Len(t, acceptedShort, 1)
	assert.InDelta(t, 2.0, acceptedShort[0].RR, 0.001)
}

func TestGates_EntryDistanceBand(t *testing.T) {
	tooClose := baseCandidate()
	tooClose.EntryNear = 100.2
	assert.Empty(t, Evaluate([]Candidate{tooClose}, DefaultConfig))

	ok := baseCandidate()
	ok.EntryNear = 101.0
	assert.NotEmpty(t, Evaluate([]Candidate{ok}, DefaultConfig))

	tooFar := baseCandidate()
	tooFar.EntryNear = 107.0
	assert.Empty(t, Evaluate([]Candidate{tooFar}, DefaultConfig))
}

func TestGates_FreshnessDecay(t *testing.T) {
	fresh := baseCandidate()
	fresh.AgeMin = 0
	d0 := Evaluate([]Candidate{fresh}, DefaultConfig)
	require.Len(t, d0, 1)
	assert.InDelta(t, 1.0, d0[0].FreshnessWeight, 0.001)

	halfLife := baseCandidate()
	halfLife.AgeMin = 30
	d1 := evaluateOne(halfLife, DefaultConfig)
	assert.InDelta(t, 0.5, d1.FreshnessWeight, 0.001)

	quarter := baseCandidate()
	quarter.AgeMin = 60
	d2 := evaluateOne(quarter, DefaultConfig)
	assert.InDelta(t, 0.25, d2.FreshnessWeight, 0.001)

	stale := baseCandidate()
	stale.AgeMin = 91
	assert.Empty(t, Evaluate([]Candidate{stale}, DefaultConfig))
}

func TestGates_DeterministicOrderingAndCap(t *testing.T) {
	var candidates []Candidate
	for i := 0; i < 8; i++ {
		c := baseCandidate()
		c.ObQuality = float64(i) / 10
		candidates = append(candidates, c)
	}
	cfg := DefaultConfig
	cfg.MaxSetups = 5

	first := Evaluate(candidates, cfg)
	second := Evaluate(candidates, cfg)
	require.Equal(t, first, second)
	assert.LessOrEqual(t, len(first), 5)
	for i := 1; i < len(first); i++ {
		assert.GreaterOrEqual(t, first[i-1].Score, first[i].Score)
	}
}

func TestGates_StructuralConfluenceFloor(t *testing.T) {
	weak := baseCandidate()
	weak.HasOB = false
	weak.HasFVG = false
	assert.Empty(t, Evaluate([]Candidate{weak}, DefaultConfig))
}
