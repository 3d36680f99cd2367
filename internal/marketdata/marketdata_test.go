package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightfall-quant/perpscan/internal/model"
)

func TestNormalizeSymbol_Idempotent(t *testing.T) {
	cases := []string{"btc-usdt", "ETH:USDT", "BTCUSDT", "sol usdt", "xrpusdtusdt"}
	for _, c := range cases {
		assert.True(t, IdempotentNormalize(c), c)
	}
}

func TestNormalizeSymbol_SplitsKnownQuote(t *testing.T) {
	assert.Equal(t, "BTC/USDT", NormalizeSymbol("BTCUSDT"))
}

func TestParseTfToMs(t *testing.T) {
	ms, err := ParseTfToMs("15m")
	require.NoError(t, err)
	assert.EqualValues(t, 900_000, ms)

	_, err = ParseTfToMs("")
	assert.Error(t, err)

	_, err = ParseTfToMs("15x")
	assert.Error(t, err)

	_, err = ParseTfToMs("-5m")
	assert.Error(t, err)
}

func TestWithRetry_StopsOnFatalImmediately(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryConfig, func(error) model.ErrKind {
		return model.ErrExchangeFatal
	}, func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientUpToBudget(t *testing.T) {
	calls := 0
	cfg := RetryConfig{Base: time.Millisecond, Cap: time.Millisecond, Budget: 3, Jitter: func() float64 { return 1 }}
	err := WithRetry(context.Background(), cfg, func(error) model.ErrKind {
		return model.ErrExchangeTransient
	}, func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_SucceedsEventually(t *testing.T) {
	calls := 0
	cfg := RetryConfig{Base: time.Millisecond, Cap: time.Millisecond, Budget: 5, Jitter: func() float64 { return 1 }}
	err := WithRetry(context.Background(), cfg, func(error) model.ErrKind {
		return model.ErrExchangeTransient
	}, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}
