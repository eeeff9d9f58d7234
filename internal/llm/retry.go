package llm

import (
	"context"
	"math/rand"
	"time"

	ottoerrors "otto/internal/errors"
	"otto/internal/logging"
)

// retryClient wraps a Client with exponential backoff on transient failures.
type retryClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
	logger     logging.Logger
}

// WithRetry decorates client with bounded retry on transient errors.
// Permanent errors and context cancellation pass through immediately.
func WithRetry(client Client, maxRetries int, logger logging.Logger) Client {
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &retryClient{
		inner:      client,
		maxRetries: maxRetries,
		baseDelay:  500 * time.Millisecond,
		logger:     logging.OrNop(logger),
	}
}

func (r *retryClient) Model() string { return r.inner.Model() }

func (r *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.baseDelay * (1 << (attempt - 1))
			delay += time.Duration(rand.Int63n(int64(delay / 2)))
			r.logger.Warn("retrying completion attempt=%d delay=%s cause=%v", attempt, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.inner.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		if !ottoerrors.IsTransient(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
