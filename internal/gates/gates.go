// Package gates applies the hard quality filters and the weighted soft
// score that together decide which scored candidates become trade plans.
package gates

import (
	"math"
	"sort"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// Regime is the market-regime classification the ATR sweet-spot score
// depends on.
type Regime string

const (
	Trending Regime = "TRENDING"
	Ranging  Regime = "RANGING"
	Volatile Regime = "VOLATILE"
)

// Weights are the default soft-score component weights.
type Weights struct {
	TFAlign      float64
	OBQuality    float64
	FVGPresence  float64
	BosChoch     float64
	Freshness    float64
	RRStrength   float64
	AtrSweetspot float64
	RegimeBias   float64
}

// DefaultWeights matches the reference QualityGates default configuration.
var DefaultWeights = Weights{
	TFAlign: 25, OBQuality: 15, FVGPresence: 10, BosChoch: 15,
	Freshness: 10, RRStrength: 10, AtrSweetspot: 10, RegimeBias: 5,
}

// Config is the typed quality-gate configuration.
type Config struct {
	MinRR                float64
	EntryDistancePctLow  float64
	EntryDistancePctHigh float64
	FreshnessHalfLifeMin float64
	MaxAgeMin            float64
	MinVolumeUSD         float64
	MaxSpreadBps         float64
	MinConfluenceFlags   int
	MinScore             float64
	MaxSetups            int
	Weights              Weights
}

// DefaultConfig matches the reference implementation's defaults.
var DefaultConfig = Config{
	MinRR: 2.0, EntryDistancePctLow: 0.5, EntryDistancePctHigh: 5.0,
	FreshnessHalfLifeMin: 30, MaxAgeMin: 90, MinVolumeUSD: 100_000,
	MaxSpreadBps: 20, MinConfluenceFlags: 3, MinScore: 60, MaxSetups: 5,
	Weights: DefaultWeights,
}

// Candidate is the enriched gate input derived from a TradeSetup plus the
// market context (age, volume, spread, structural flags, regime).
type Candidate struct {
	Setup          *model.TradeSetup
	Price          float64
	EntryNear      float64
	EntryStop      float64
	EntryTP1       float64
	Direction      model.Direction
	AgeMin         float64
	VolumeUSD24h   float64
	SpreadBps      float64
	HasOB          bool
	HasFVG         bool
	BosInFavor     bool
	HtfTrendAgrees bool
	ObQuality      float64 // [0,1]
	Regime         Regime
	Venue          string
	ListedOnVenue  bool
	AtrPct         float64 // ATR as a percent of price
}

// Evaluate runs the hard gates then computes the soft score for every
// candidate, returning accepted decisions sorted by score descending with
// a stable tie-break on input order, truncated to cfg.MaxSetups.
//
// Evaluate is deterministic: the same candidates and config always produce
// the same output, including ordering.
func Evaluate(candidates []Candidate, cfg Config) []model.GateDecision {
	decisions := make([]model.GateDecision, 0, len(candidates))

	for _, c := range candidates {
		d := evaluateOne(c, cfg)
		if d.Outcome == model.Accepted {
			decisions = append(decisions, d)
		}
	}

	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Score > decisions[j].Score
	})

	if cfg.MaxSetups > 0 && len(decisions) > cfg.MaxSetups {
		decisions = decisions[:cfg.MaxSetups]
	}
	return decisions
}

func evaluateOne(c Candidate, cfg Config) model.GateDecision {
	rr := model.RewardToRisk(c.EntryNear, c.EntryStop, c.EntryTP1, c.Direction)
	entryDistPct := entryDistancePct(c.Price, c.EntryNear)
	spread := c.SpreadBps
	confluenceCount := countFlags(c.HasOB, c.HasFVG, c.BosInFavor, c.HtfTrendAgrees)
	freshness := math.Pow(0.5, c.AgeMin/positiveOr(cfg.FreshnessHalfLifeMin, 1))

	d := model.GateDecision{
		Setup: c.Setup, RR: rr, EntryDistancePct: entryDistPct, SpreadBps: spread,
		FreshnessWeight: freshness, ConfluenceCount: confluenceCount,
	}

	reject := func(reason string) model.GateDecision {
		d.Outcome = model.Rejected
		d.RejectReason = reason
		return d
	}

	if rr < cfg.MinRR {
		return reject("rr_below_floor")
	}
	if entryDistPct < cfg.EntryDistancePctLow || entryDistPct > cfg.EntryDistancePctHigh {
		return reject("entry_distance_out_of_band")
	}
	if c.AgeMin > cfg.MaxAgeMin {
		return reject("stale_candidate")
	}
	if c.VolumeUSD24h < cfg.MinVolumeUSD {
		return reject("insufficient_volume")
	}
	if spread > cfg.MaxSpreadBps {
		return reject("spread_too_wide")
	}
	if confluenceCount < cfg.MinConfluenceFlags {
		return reject("insufficient_structural_confluence")
	}
	if c.Venue == "phemex" && !c.ListedOnVenue {
		return reject("not_listed_on_venue")
	}

	score := softScore(c, rr, freshness, cfg.Weights)
	d.Score = score
	if score < cfg.MinScore {
		return reject("soft_score_below_floor")
	}

	d.Outcome = model.Accepted
	d.Reasons = buildGateReasons(c, rr, freshness, score)
	return d
}

func softScore(c Candidate, rr, freshness float64, w Weights) float64 {
	fTFAlign := boolToFloat(c.HtfTrendAgrees)
	fOB := model.ClampUnit(c.ObQuality)
	fFVG := boolToFloat(c.HasFVG)
	fBos := boolToFloat(c.BosInFavor)
	fFresh := freshness
	fRR := math.Min(rr/3, 1)
	fAtr := atrSweetspot(c.Regime, c.AtrPct)
	fRegime := regimeBias(c.Regime)

	return w.TFAlign*fTFAlign +
		w.OBQuality*fOB +
		w.FVGPresence*fFVG +
		w.BosChoch*fBos +
		w.Freshness*fFresh +
		w.RRStrength*fRR +
		w.AtrSweetspot*fAtr +
		w.RegimeBias*fRegime
}

// atrSweetspot scores a triangular fall-off around the regime's ideal ATR%
// band: 1 inside the band, falling linearly to 0 over one full band width
// on either side.
func atrSweetspot(regime Regime, atrPct float64) float64 {
	lo, hi := sweetspotBand(regime)
	if atrPct >= lo && atrPct <= hi {
		return 1
	}
	bandWidth := hi - lo
	if bandWidth <= 0 {
		return 0
	}
	var distance float64
	if atrPct < lo {
		distance = lo - atrPct
	} else {
		distance = atrPct - hi
	}
	return model.ClampUnit(1 - distance/bandWidth)
}

func sweetspotBand(regime Regime) (float64, float64) {
	switch regime {
	case Trending:
		return 1, 3
	case Ranging:
		return 0.5, 1.5
	case Volatile:
		return 2, 5
	default:
		return 1, 3
	}
}

func regimeBias(regime Regime) float64 {
	switch regime {
	case Trending:
		return 1.0
	case Volatile:
		return 0.8
	case Ranging:
		return 0.6
	default:
		return 0.6
	}
}

func entryDistancePct(price, entryNear float64) float64 {
	if price <= 0 {
		return math.Inf(1)
	}
	return math.Abs(entryNear-price) / price * 100
}

func countFlags(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func positiveOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}

func buildGateReasons(c Candidate, rr, freshness, score float64) []string {
	reasons := make([]string, 0, 5)
	if c.HtfTrendAgrees {
		reasons = append(reasons, "higher-timeframe trend agrees")
	}
	if c.BosInFavor {
		reasons = append(reasons, "break of structure in favor")
	}
	if rr >= 2.5 {
		reasons = append(reasons, "strong reward-to-risk")
	}
	if freshness >= 0.7 {
		reasons = append(reasons, "fresh setup")
	}
	reasons = append(reasons, qualityBand(score))
	if len(reasons) > 5 {
		reasons = reasons[:5]
	}
	return reasons
}

func qualityBand(score float64) string {
	switch {
	case score >= 80:
		return "high-quality gate score"
	case score >= 60:
		return "passing gate score"
	default:
		return "marginal gate score"
	}
}
