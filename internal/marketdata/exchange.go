package marketdata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/nightfall-quant/perpscan/internal/cache"
	"github.com/nightfall-quant/perpscan/internal/model"
)

// Exchange is the venue-agnostic contract the scan scheduler and planner
// depend on.
type Exchange interface {
	FetchMarkets(ctx context.Context, forceRefresh bool) (map[string]model.MarketInfo, error)
	FetchCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error)
	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
	TopPairs(ctx context.Context, quote string, n int) ([]string, error)
}

// BinanceFutures adapts the go-binance/v2/futures client to the Exchange
// interface, with per-resource TTL caching and classified retry.
type BinanceFutures struct {
	client      *futures.Client
	marketCache *cache.TTL[string, map[string]model.MarketInfo]
	tickerCache *cache.TTL[string, model.Ticker]
	candleCache *cache.TTL[string, []model.Candle]
	retry       RetryConfig
}

// NewBinanceFutures builds an adapter over an already-constructed client.
func NewBinanceFutures(client *futures.Client) *BinanceFutures {
	return &BinanceFutures{
		client:      client,
		marketCache: cache.New[string, map[string]model.MarketInfo](cache.MarketsTTL),
		tickerCache: cache.New[string, model.Ticker](cache.TickersTTL),
		candleCache: cache.New[string, []model.Candle](cache.OHLCVTTL),
		retry:       DefaultRetryConfig,
	}
}

const marketsCacheKey = "markets"

// FetchMarkets returns the static per-symbol metadata, cached under the
// "markets" resource unless forceRefresh bypasses the cache.
func (b *BinanceFutures) FetchMarkets(ctx context.Context, forceRefresh bool) (map[string]model.MarketInfo, error) {
	if !forceRefresh {
		if v, ok := b.marketCache.Get(marketsCacheKey); ok {
			return v, nil
		}
	}

	var info *futures.ExchangeInfo
	err := WithRetry(ctx, b.retry, classifyBinanceErr, func(ctx context.Context) error {
		var callErr error
		info, callErr = b.client.NewExchangeInfoService().Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	markets := make(map[string]model.MarketInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		mi := model.MarketInfo{
			Symbol: s.Symbol, Base: s.BaseAsset, Quote: s.QuoteAsset,
			Listed: s.Status == "TRADING",
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				mi.TickSize = parseFloatOr(fmt.Sprint(f["tickSize"]), 0)
			case "LOT_SIZE":
				mi.LotSize = parseFloatOr(fmt.Sprint(f["stepSize"]), 0)
			case "MIN_NOTIONAL":
				mi.MinNotional = parseFloatOr(fmt.Sprint(f["notional"]), 0)
			}
		}
		markets[NormalizeSymbol(s.Symbol)] = mi
	}

	b.marketCache.Set(marketsCacheKey, markets)
	return markets, nil
}

// FetchCandles returns up to limit candles for symbol/tf, cached under the
// "ohlcv" resource. Malformed rows are skipped rather than failing the
// whole series.
func (b *BinanceFutures) FetchCandles(ctx context.Context, symbol, tf string, limit int) ([]model.Candle, error) {
	key := cacheKey("ohlcv", symbol, tf, limit)
	if v, ok := b.candleCache.Get(key); ok {
		return v, nil
	}

	venueSymbol := strings.ReplaceAll(NormalizeSymbol(symbol), "/", "")

	var kl []*futures.Kline
	err := WithRetry(ctx, b.retry, classifyBinanceErr, func(ctx context.Context) error {
		var callErr error
		kl, callErr = b.client.NewKlinesService().Symbol(venueSymbol).Interval(tf).Limit(limit).Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(kl))
	for _, k := range kl {
		c, ok := toCandle(k)
		if !ok {
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	b.candleCache.Set(key, candles)
	return candles, nil
}

func toCandle(k *futures.Kline) (model.Candle, bool) {
	o, oErr := strconv.ParseFloat(k.Open, 64)
	h, hErr := strconv.ParseFloat(k.High, 64)
	l, lErr := strconv.ParseFloat(k.Low, 64)
	c, cErr := strconv.ParseFloat(k.Close, 64)
	v, vErr := strconv.ParseFloat(k.Volume, 64)
	if oErr != nil || hErr != nil || lErr != nil || cErr != nil || vErr != nil {
		return model.Candle{}, false
	}
	return model.Candle{TsMs: k.OpenTime, Open: o, High: h, Low: l, Close: c, Volume: v}, true
}

// FetchTicker returns the latest quote for symbol, cached under the
// "tickers" resource.
func (b *BinanceFutures) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	key := NormalizeSymbol(symbol)
	if v, ok := b.tickerCache.Get(key); ok {
		return v, nil
	}

	venueSymbol := strings.ReplaceAll(key, "/", "")

	var stats []*futures.PriceChangeStats
	err := WithRetry(ctx, b.retry, classifyBinanceErr, func(ctx context.Context) error {
		var callErr error
		stats, callErr = b.client.NewListPriceChangeStatsService().Symbol(venueSymbol).Do(ctx)
		return callErr
	})
	if err != nil {
		return model.Ticker{}, err
	}
	if len(stats) == 0 {
		return model.Ticker{}, model.NewError(model.ErrDataShape, "no ticker data for "+symbol)
	}

	s := stats[0]
	t := model.Ticker{
		Symbol:      key,
		Last:        parseFloatOr(s.LastPrice, 0),
		Close:       parseFloatOr(s.LastPrice, 0),
		QuoteVolume: parseFloatOr(s.QuoteVolume, 0),
	}
	b.tickerCache.Set(key, t)
	return t, nil
}

// CurrentPrice returns the ticker's last/close price.
func (b *BinanceFutures) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	t, err := b.FetchTicker(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return t.CurrentPrice(), nil
}

// TopPairs ranks symbols by 24h quote volume descending, falling back to
// static market metadata when tickers are unavailable.
func (b *BinanceFutures) TopPairs(ctx context.Context, quote string, n int) ([]string, error) {
	var stats []*futures.PriceChangeStats
	err := WithRetry(ctx, b.retry, classifyBinanceErr, func(ctx context.Context) error {
		var callErr error
		stats, callErr = b.client.NewListPriceChangeStatsService().Do(ctx)
		return callErr
	})
	if err != nil {
		markets, marketsErr := b.FetchMarkets(ctx, false)
		if marketsErr != nil {
			return nil, err
		}
		return fallbackPairs(markets, quote, n), nil
	}

	type pair struct {
		symbol string
		volume float64
	}
	var ranked []pair
	for _, s := range stats {
		sym := NormalizeSymbol(s.Symbol)
		if quote != "" && !strings.HasSuffix(sym, "/"+quote) {
			continue
		}
		ranked = append(ranked, pair{symbol: sym, volume: parseFloatOr(s.QuoteVolume, 0)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].volume > ranked[j].volume })

	out := make([]string, 0, n)
	for i := 0; i < len(ranked) && i < n; i++ {
		out = append(out, ranked[i].symbol)
	}
	return out, nil
}

func fallbackPairs(markets map[string]model.MarketInfo, quote string, n int) []string {
	var out []string
	for symbol, mi := range markets {
		if !mi.Listed {
			continue
		}
		if quote != "" && mi.Quote != quote {
			continue
		}
		out = append(out, symbol)
		if len(out) >= n {
			break
		}
	}
	sort.Strings(out)
	return out
}

func cacheKey(resource, symbol, tf string, limit int) string {
	return resource + "|" + symbol + "|" + tf + "|" + strconv.Itoa(limit)
}

func parseFloatOr(s string, fallback float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

// classifyBinanceErr maps a go-binance error into the adapter's error
// taxonomy: rate limits and transient network failures are retryable,
// everything else is fatal.
func classifyBinanceErr(err error) model.ErrKind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return model.ErrExchangeRateLimit
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "temporarily unavailable") || strings.Contains(msg, "eof"):
		return model.ErrExchangeTransient
	default:
		return model.ErrExchangeFatal
	}
}
