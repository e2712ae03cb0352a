package judge

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// backoffUnit is the linear backoff step between attempts.
var backoffUnit = time.Second

// generateWithRetry calls generate and validates the content with validate.
// It retries up to attempts times if the model fails or the validator returns an error.
func generateWithRetry(ctx context.Context, logger *slog.Logger, attempts int, generate func(context.Context) (string, error), validate func(string) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			if ctx.Err() != nil {
				return fmt.Errorf("retry interrupted: %w (last error: %w)", ctx.Err(), lastErr)
			}
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry interrupted: %w (last error: %w)", ctx.Err(), lastErr)
			case <-time.After(backoffUnit * time.Duration(i)): // Linear backoff
			}
		}

		content, err := generate(ctx)
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			continue
		}

		if err := validate(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return nil
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
