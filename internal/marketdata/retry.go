package marketdata

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/nightfall-quant/perpscan/internal/model"
)

// RetryConfig configures the jittered exponential backoff every outbound
// exchange call is wrapped in.
type RetryConfig struct {
	Base    time.Duration
	Cap     time.Duration
	Budget  int
	Jitter  func() float64 // returns a value in [0.5, 1.5)
}

// DefaultRetryConfig matches the adapter contract's defaults.
var DefaultRetryConfig = RetryConfig{
	Base:   500 * time.Millisecond,
	Cap:    10 * time.Second,
	Budget: 5,
	Jitter: func() float64 { return 0.5 + rand.Float64() },
}

// ClassifyFunc maps an error from the venue call into an error kind. There
// is no default classifier: every WithRetry caller supplies its own
// venue-specific classification.
type ClassifyFunc func(error) model.ErrKind

// WithRetry runs op, retrying on retryable error kinds with jittered
// exponential backoff up to cfg.Budget attempts. Non-retryable kinds and
// context cancellation stop immediately.
func WithRetry(ctx context.Context, cfg RetryConfig, classify ClassifyFunc, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.Budget; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		kind := classify(err)
		if !model.Retryable(kind) {
			return model.WrapError(kind, "exchange call failed", err)
		}
		if attempt == cfg.Budget-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return model.WrapError(model.ErrExchangeTransient, "retry budget exhausted", lastErr)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	raw := float64(cfg.Base) * math.Pow(2, float64(attempt))
	capped := math.Min(raw, float64(cfg.Cap))
	jitter := 1.0
	if cfg.Jitter != nil {
		jitter = cfg.Jitter()
	}
	return time.Duration(capped * jitter)
}
