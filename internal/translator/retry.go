package translator

import (
	"context"
	"time"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// maxRetryDelay caps the doubling backoff between attempts.
const maxRetryDelay = 30 * time.Second

// retryService retries transient failures with capped exponential backoff.
// Permanent failures and context cancellation return immediately.
type retryService struct {
	inner       Service
	maxAttempts int
	baseDelay   time.Duration
}

// WithRetry wraps a service with bounded retries. maxAttempts counts the
// first call; baseDelay doubles after each failed attempt.
func WithRetry(inner Service, maxAttempts int, baseDelay time.Duration) Service {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &retryService{inner: inner, maxAttempts: maxAttempts, baseDelay: baseDelay}
}

func (r *retryService) Translate(ctx context.Context, text string, tctx *types.TranslationContext) (string, error) {
	var lastErr error
	delay := r.baseDelay

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Warn("retrying translation",
				logger.Int("attempt", attempt),
				logger.String("file", tctx.File),
				logger.Err(lastErr))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay = nextDelay(delay)
		}

		out, err := r.inner.Translate(ctx, text, tctx)
		if err == nil {
			return out, nil
		}
		if !types.IsTransient(err) {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// nextDelay doubles the backoff up to maxRetryDelay.
func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
