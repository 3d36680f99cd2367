// Package liquidity supplies liquidation-zone data to the confluence
// scorer and trade-plan builder: a deterministic synthetic provider for
// when no live feed is configured, and a live aggregator fed by the
// exchange's liquidation stream.
package liquidity

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// Seed derives a deterministic int64 seed from symbol||timeframe, the same
// input the scan scheduler's synthetic candle fallback uses, so that a
// liquidation heatmap for an unreachable venue is reproducible across runs.
func Seed(symbol, timeframe string) int64 {
	sum := sha256.Sum256([]byte(symbol + timeframe))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Synthetic generates a deterministic liquidation heatmap around price:
// three to seven levels within +/-5%, with significance scaled by notional
// up to a 5,000,000 quote-currency cap.
func Synthetic(symbol, timeframe string, price float64) []model.LiquidationZone {
	if price <= 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(Seed(symbol, timeframe)))
	levels := 3 + rng.Intn(5) // 3..7 inclusive
	zones := make([]model.LiquidationZone, 0, levels)

	for i := 0; i < levels; i++ {
		offsetPct := (rng.Float64()*2 - 1) * 0.05 // +/-5%
		zonePrice := price * (1 + offsetPct)
		notional := rng.Float64() * 8_000_000

		dir := model.Long
		if offsetPct > 0 {
			dir = model.Short
		}

		zones = append(zones, model.LiquidationZone{
			Price:        zonePrice,
			Notional:     notional,
			Direction:    dir,
			Significance: math.Min(1, notional/5_000_000),
		})
	}
	return zones
}

// NearestZone returns the zone whose price is closest to ref, or false if
// zones is empty.
func NearestZone(zones []model.LiquidationZone, ref float64) (model.LiquidationZone, bool) {
	if len(zones) == 0 {
		return model.LiquidationZone{}, false
	}
	best := zones[0]
	bestDist := math.Abs(best.Price - ref)
	for _, z := range zones[1:] {
		d := math.Abs(z.Price - ref)
		if d < bestDist {
			best, bestDist = z, d
		}
	}
	return best, true
}

// HasSignificantSupport reports whether any zone on the given side of
// price exceeds the significance threshold, used by the planner as a
// liquidation-in-zone flag.
func HasSignificantSupport(zones []model.LiquidationZone, direction model.Direction, threshold float64) bool {
	for _, z := range zones {
		if z.Direction == direction && z.Significance >= threshold {
			return true
		}
	}
	return false
}
