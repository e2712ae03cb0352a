package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/mikeboe/autosearch/pkg/autosearch"
)

const (
	DefaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// Retrying retries a provider with bounded exponential backoff.
// Client errors other than 429 are returned immediately.
type Retrying struct {
	Provider autosearch.SearchProvider
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	Logger   *slog.Logger
}

func NewRetrying(provider autosearch.SearchProvider, attempts int) *Retrying {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Retrying{
		Provider: provider,
		Attempts: uint(attempts),
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
		Logger:   slog.Default(),
	}
}

func (r *Retrying) Search(ctx context.Context, query string) (autosearch.ResultBatch, error) {
	attempts := r.Attempts
	if attempts == 0 {
		// retry-go treats zero as unlimited
		attempts = 1
	}

	return retry.DoWithData(
		func() (autosearch.ResultBatch, error) {
			return r.Provider.Search(ctx, query)
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(r.Delay),
		retry.MaxDelay(r.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			if r.Logger != nil {
				r.Logger.Warn("Retrying search", "query", query, "attempt", n+1, "error", err)
			}
		}),
	)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}
