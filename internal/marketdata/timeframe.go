package marketdata

import (
	"strconv"

	"github.com/nightfall-quant/perpscan/internal/model"
)

var unitToMs = map[byte]int64{
	'm': 60_000,
	'h': 3_600_000,
	'd': 86_400_000,
	'w': 604_800_000,
}

// ParseTfToMs parses a timeframe string like "15m", "1h", "4h", "1d", "1w"
// into milliseconds. Empty, negative, or unsupported-unit strings fail.
func ParseTfToMs(tf string) (int64, error) {
	if len(tf) < 2 {
		return 0, model.NewError(model.ErrDataShape, "timeframe string too short: "+tf)
	}
	unit := tf[len(tf)-1]
	numPart := tf[:len(tf)-1]

	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, model.NewError(model.ErrDataShape, "invalid timeframe quantity: "+tf)
	}

	unitMs, ok := unitToMs[unit]
	if !ok {
		return 0, model.NewError(model.ErrDataShape, "unsupported timeframe unit: "+tf)
	}

	return int64(n) * unitMs, nil
}
