// Package scanengine runs the bounded-concurrency market scan: fetching
// candles per symbol/timeframe, scoring confluence, applying quality gates,
// and building executable trade plans for the survivors.
package scanengine

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nightfall-quant/perpscan/internal/indicators"
	"github.com/nightfall-quant/perpscan/internal/liquidity"
	"github.com/nightfall-quant/perpscan/internal/marketdata"
	"github.com/nightfall-quant/perpscan/internal/model"
	"github.com/nightfall-quant/perpscan/internal/planner"
	"github.com/nightfall-quant/perpscan/internal/scoring"
)

// scanRRFloor and scanMaxSpreadBps are the post-filter thresholds the
// scheduler applies on top of min_score, mirroring only a subset of the
// standalone quality-gate criteria (internal/gates keeps the full set for
// its own, separate evaluation path).
const (
	scanRRFloor           = 2.0
	scanMaxSpreadBps      = 300.0
	scanFreshnessHalfLife = 30.0
)

// Config is the scan scheduler's full configuration.
type Config struct {
	Exchange       marketdata.Exchange
	ExchangeName   string
	Symbols        []string
	Timeframes     []string
	CandleLimit    int
	MaxWorkers     int
	MinScore       float64
	TopSetupsLimit int
	Sizing         planner.SizingConfig
	Exec           planner.ExecutionConfig
	RiskUSD        float64
	Leverage       float64
	Now            func() time.Time
	Log            zerolog.Logger
}

// Result pairs an accepted gate decision with its executable trade plan.
type Result struct {
	Symbol   string
	Decision model.GateDecision
	Plan     *model.TradePlan
}

// Stats summarizes the funnel from scanned pairs to returned results.
type Stats struct {
	Pairs     int
	Qualified int
	Returned  int
}

// Meta describes one scan run: identity, timing, and the filter
// configuration it was evaluated under.
type Meta struct {
	ScanID         string
	GeneratedAt    time.Time
	ElapsedSeconds float64
	Stats          Stats
	Notes          []string
	Cancelled      bool
}

// Bundle is the full output of one Run: the ranked results plus metadata.
type Bundle struct {
	Results []Result
	Meta    Meta
}

type enriched struct {
	symbol   string
	setup    *model.TradeSetup
	decision model.GateDecision
	near     model.EntryLeg
	atr      float64
	price    float64
	market   model.MarketInfo
	entries  planner.EntriesInput
}

// Run scans every configured symbol across every configured timeframe,
// bounded by cfg.MaxWorkers concurrent symbol workers, and returns the
// ranked, capped set of trade plans. It honors ctx cancellation at each
// symbol boundary; a cancellation mid-run still returns whatever results
// completed, with Meta.Cancelled set.
func Run(ctx context.Context, cfg Config) (*Bundle, error) {
	start := cfg.now()

	sem := make(chan struct{}, cfg.workers())
	var wg sync.WaitGroup
	var mu sync.Mutex
	enrichedBySymbol := make([]*enriched, 0, len(cfg.Symbols))
	cancelled := false

	for _, symbol := range cfg.Symbols {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}

		symbol := symbol
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			e := cfg.scanOne(ctx, symbol)
			if e == nil {
				return
			}
			mu.Lock()
			enrichedBySymbol = append(enrichedBySymbol, e)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		cancelled = true
	}

	// Deterministic candidate order regardless of goroutine completion order.
	sort.Slice(enrichedBySymbol, func(i, j int) bool {
		return enrichedBySymbol[i].symbol < enrichedBySymbol[j].symbol
	})

	bySymbol := make(map[string]*enriched, len(enrichedBySymbol))
	decisions := make([]model.GateDecision, 0, len(enrichedBySymbol))
	for _, e := range enrichedBySymbol {
		bySymbol[e.symbol] = e
		if e.decision.Outcome == model.Accepted {
			decisions = append(decisions, e.decision)
		}
	}

	sort.SliceStable(decisions, func(i, j int) bool {
		return decisions[i].Score > decisions[j].Score
	})
	if limit := cfg.topSetupsLimit(); limit > 0 && len(decisions) > limit {
		decisions = decisions[:limit]
	}

	results := make([]Result, 0, len(decisions))
	for _, d := range decisions {
		e := bySymbol[d.Setup.Symbol]
		if e == nil {
			continue
		}
		plan, err := planner.BuildPlan(d.Setup, planner.BuildInput{
			Entries:  e.entries,
			Sizing:   cfg.Sizing,
			Exec:     cfg.Exec,
			RiskUSD:  cfg.RiskUSD,
			Leverage: cfg.Leverage,
			ATR:      e.atr,
			Price:    e.price,
			Now:      cfg.now(),
		})
		if err != nil {
			cfg.logger().Debug().Str("symbol", d.Setup.Symbol).Err(err).Msg("plan build rejected")
			continue
		}
		results = append(results, Result{Symbol: d.Setup.Symbol, Decision: d, Plan: plan})
	}

	var notes []string
	if len(cfg.Symbols) > 0 && len(results) == 0 {
		notes = append(notes, "no qualifying setups found for the configured market slice")
	}

	meta := Meta{
		ScanID:         uuid.NewString(),
		GeneratedAt:    start,
		ElapsedSeconds: cfg.now().Sub(start).Seconds(),
		Stats: Stats{
			Pairs:     len(cfg.Symbols),
			Qualified: len(decisions),
			Returned:  len(results),
		},
		Notes:     notes,
		Cancelled: cancelled,
	}

	return &Bundle{Results: results, Meta: meta}, nil
}

// scanOne fetches candles for every configured timeframe, scores the
// resulting confluence, and enriches an accepted setup into a gate
// candidate. It returns nil when no setup emerges, never an error: a
// single symbol's failure never aborts the scan.
func (cfg Config) scanOne(ctx context.Context, symbol string) *enriched {
	timeframeCandles := make(map[string][]model.Candle, len(cfg.Timeframes))
	usedSynthetic := make(map[string]bool, len(cfg.Timeframes))
	for _, tf := range cfg.Timeframes {
		candles, err := cfg.Exchange.FetchCandles(ctx, symbol, tf, cfg.candleLimit())
		if err != nil || len(candles) < indicators.MinCandles {
			cfg.logger().Debug().Str("symbol", symbol).Str("timeframe", tf).Err(err).Msg("falling back to synthetic candles")
			candles = SyntheticCandles(symbol, tf, cfg.candleLimit())
			usedSynthetic[tf] = true
		}
		timeframeCandles[tf] = candles
	}

	price := cfg.resolvePrice(ctx, symbol, timeframeCandles)
	if price <= 0 {
		return nil
	}

	liqProvider := scoring.LiquidationProvider(func(symbol, timeframe string, price float64) []model.LiquidationZone {
		return liquidity.Synthetic(symbol, timeframe, price)
	})

	setup, ok := scoring.Score(symbol, cfg.ExchangeName, timeframeCandles, price, liqProvider)
	if !ok {
		return nil
	}

	primaryTF := cfg.Timeframes[0]
	primaryCandles := timeframeCandles[primaryTF]
	atrVal := atr(primaryCandles, 14)

	market := cfg.lookupMarket(ctx, symbol)
	ticker, _ := cfg.Exchange.FetchTicker(ctx, symbol)

	spreadBps := ticker.SpreadBps()
	if spreadBps < 0 {
		spreadBps = 0
	}

	alignedCount := countAligned(setup.TfConfluence, setup.Direction)
	ageMin := 0.0
	if !usedSynthetic[primaryTF] {
		ageMin = candleAgeMinutes(primaryCandles, cfg.now())
	}

	entries := planner.EntriesInput{
		Direction: setup.Direction,
		Tick:      tickOr(market.TickSize),
		ATR:       atrVal,
		Anchors: planner.StructureAnchors{
			OBMid:  setup.EntryPlan[0],
			OBEdge: setup.EntryPlan[0] + directionSign(setup.Direction)*atrVal*0.5,
			FVG:    setup.EntryPlan[0] + directionSign(setup.Direction)*atrVal*0.25,
		},
		VWAP:      price,
		VWAPSigma: atrVal,
		BiasK:     0.25,
		Flow: planner.FlowContext{
			OBI:       alignedObi(alignedCount, len(setup.TfConfluence)),
			SpreadBps: spreadBps,
			LiqInZone: liquidity.HasSignificantSupport(setup.LiquidationZones, setup.Direction, 0.6),
		},
		Session: sessionFor(cfg.now()),
	}

	// The near entry drives every downstream distance/RR/liquidation check:
	// the scorer's entry_plan[0] is only a baseline placeholder equal to the
	// current price, never the real proposed entry.
	near, _, err := planner.ProposeEntries(entries, setup.StopLoss)
	if err != nil {
		cfg.logger().Debug().Str("symbol", symbol).Err(err).Msg("entry proposal rejected")
		return nil
	}

	// Reward is measured against the furthest baseline target, not tp1: the
	// scorer's baseline geometry pins tp1 and the stop symmetrically around
	// price (+-2%), so tp1 alone caps rr at ~1 regardless of the entry and
	// would fail scanRRFloor unconditionally.
	farTarget := setup.TakeProfits[len(setup.TakeProfits)-1]
	rr := model.RewardToRisk(near.Price, setup.StopLoss, farTarget, setup.Direction)
	entryDistPct := 0.0
	if price > 0 {
		entryDistPct = math.Abs(near.Price-price) / price * 100
	}
	liq := planner.EstimateLiqPrice(near.Price, cfg.Leverage, cfg.Sizing.MaintMarginRate, setup.Direction)
	liqSafe := planner.LiqIsSafe(liq, setup.StopLoss, setup.Direction, cfg.Sizing.Buffers, atrVal)
	freshness := math.Pow(0.5, ageMin/scanFreshnessHalfLife)

	decision := model.GateDecision{
		Setup:            setup,
		RR:               rr,
		EntryDistancePct: entryDistPct,
		SpreadBps:        spreadBps,
		FreshnessWeight:  freshness,
		ConfluenceCount:  alignedCount,
		Score:            setup.Score,
	}
	switch {
	case setup.Score < cfg.MinScore:
		decision.Outcome = model.Rejected
		decision.RejectReason = "score_below_floor"
	case rr < scanRRFloor:
		decision.Outcome = model.Rejected
		decision.RejectReason = "rr_below_floor"
	case !liqSafe:
		decision.Outcome = model.Rejected
		decision.RejectReason = "liquidation_unsafe"
	case spreadBps > scanMaxSpreadBps:
		decision.Outcome = model.Rejected
		decision.RejectReason = "spread_too_wide"
	case !market.Listed:
		decision.Outcome = model.Rejected
		decision.RejectReason = "not_listed_on_venue"
	default:
		decision.Outcome = model.Accepted
		decision.Reasons = setup.Reasons
	}

	return &enriched{
		symbol:   symbol,
		setup:    setup,
		decision: decision,
		near:     near,
		atr:      atrVal,
		price:    price,
		market:   market,
		entries:  entries,
	}
}

func (cfg Config) resolvePrice(ctx context.Context, symbol string, tfCandles map[string][]model.Candle) float64 {
	if p, err := cfg.Exchange.CurrentPrice(ctx, symbol); err == nil && p > 0 {
		return p
	}
	for _, tf := range cfg.Timeframes {
		candles := tfCandles[tf]
		if len(candles) > 0 {
			return candles[len(candles)-1].Close
		}
	}
	return 0
}

func (cfg Config) lookupMarket(ctx context.Context, symbol string) model.MarketInfo {
	markets, err := cfg.Exchange.FetchMarkets(ctx, false)
	if err != nil {
		return model.MarketInfo{Symbol: symbol, TickSize: 0.01, LotSize: 0.001, Listed: true}
	}
	if mi, ok := markets[symbol]; ok {
		return mi
	}
	return model.MarketInfo{Symbol: symbol, TickSize: 0.01, LotSize: 0.001, Listed: false}
}

func (cfg Config) workers() int {
	if cfg.MaxWorkers > 0 {
		return cfg.MaxWorkers
	}
	return 4
}

func (cfg Config) candleLimit() int {
	if cfg.CandleLimit > 0 {
		return cfg.CandleLimit
	}
	return 200
}

func (cfg Config) topSetupsLimit() int {
	if cfg.TopSetupsLimit > 0 {
		return cfg.TopSetupsLimit
	}
	return 5
}

func (cfg Config) now() time.Time {
	if cfg.Now != nil {
		return cfg.Now()
	}
	return time.Now()
}

func (cfg Config) logger() zerolog.Logger {
	return cfg.Log
}

func countAligned(tfConfluence map[string]model.Direction, overall model.Direction) int {
	n := 0
	for _, d := range tfConfluence {
		if d == overall {
			n++
		}
	}
	return n
}

func candleAgeMinutes(candles []model.Candle, now time.Time) float64 {
	if len(candles) == 0 {
		return 0
	}
	last := candles[len(candles)-1]
	ageMs := now.UnixMilli() - last.TsMs
	if ageMs < 0 {
		return 0
	}
	return float64(ageMs) / 60000.0
}

func tickOr(tick float64) float64 {
	if tick > 0 {
		return tick
	}
	return 0.01
}

func directionSign(d model.Direction) float64 {
	if d == model.Short {
		return -1
	}
	return 1
}

func alignedObi(aligned, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(aligned) / float64(total)
}

func sessionFor(now time.Time) planner.Session {
	h := now.UTC().Hour()
	switch {
	case h >= 0 && h < 8:
		return planner.SessionAsia
	case h >= 8 && h < 13:
		return planner.SessionLondon
	default:
		return planner.SessionNY
	}
}
