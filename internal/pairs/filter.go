// Package pairs filters the raw symbol universe down to tradeable
// perp-futures pairs, dropping stable-to-stable pairs and caller-supplied
// blocklist tokens.
package pairs

import "strings"

// Stablecoins is the fixed set of quote/base tokens treated as stable,
// ported from the reference pair filter's STABLECOINS constant.
var Stablecoins = map[string]bool{
	"USDT": true, "USDC": true, "BUSD": true, "DAI": true, "TUSD": true,
	"USDP": true, "USDD": true, "GUSD": true, "FRAX": true, "LUSD": true,
	"USDK": true, "USDJ": true, "HUSD": true, "CUSD": true, "UST": true,
	"USTC": true, "SUSD": true, "DUSD": true, "OUSD": true, "MUSD": true,
	"RSV": true,
}

// Filter drops any symbol whose base and quote are both stablecoins, plus
// any symbol containing a token from extraExclusions. Order-preserving.
func Filter(symbols []string, excludeStables bool, extraExclusions []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if shouldExclude(s, excludeStables, extraExclusions) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// TopN filters then truncates to at most limit entries, in input order —
// callers are expected to pre-sort by volume before calling this.
func TopN(symbols []string, excludeStables bool, extraExclusions []string, limit int) []string {
	filtered := Filter(symbols, excludeStables, extraExclusions)
	if limit >= 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

func shouldExclude(symbol string, excludeStables bool, extra []string) bool {
	if excludeStables && isStablecoinPair(symbol) {
		return true
	}
	for _, token := range extra {
		if token != "" && strings.Contains(symbol, token) {
			return true
		}
	}
	return false
}

// isStablecoinPair reports whether both the base and quote legs of symbol
// are stablecoins, using the same endswith-scan the reference filter uses
// since the base/quote boundary isn't always separator-delimited.
func isStablecoinPair(symbol string) bool {
	baseQuote := normalizeForSplit(symbol)
	for stable := range Stablecoins {
		if strings.HasSuffix(baseQuote, stable) {
			base := baseQuote[:len(baseQuote)-len(stable)]
			if Stablecoins[base] {
				return true
			}
		}
	}
	return false
}

func normalizeForSplit(symbol string) string {
	s := strings.ReplaceAll(symbol, "/", "")
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
