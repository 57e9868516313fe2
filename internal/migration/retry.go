package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
)

// RetryConfig bounds retries of transient storage failures.
type RetryConfig struct {
	Attempts int
	Backoff  time.Duration
}

// retryConfig derives the retry policy from cfg
func (c Config) retryConfig() RetryConfig {
	return RetryConfig{Attempts: max(c.RetryAttempts, 1), Backoff: c.RetryBackoff}
}

// withRetry runs op until it succeeds, fails permanently or the attempts
// are exhausted. Only objectstore.IsTransient errors are retried. Delays
// grow linearly (1x, 2x, 3x backoff) and honour ctx cancellation.
func withRetry(ctx context.Context, cfg RetryConfig, log logger.Logger, op string, fn func() error) error {
	var lastErr error

	for attempt := range cfg.Attempts {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !objectstore.IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == cfg.Attempts-1 {
			break
		}

		delay := cfg.Backoff * time.Duration(attempt+1)
		log.Debug("retrying after transient error",
			logger.String("operation", op),
			logger.Int("attempt", attempt+1),
			logger.Int("max_attempts", cfg.Attempts),
			logger.Duration("delay", delay),
			logger.Error(err))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	return errors.New(fmt.Errorf("%s failed after %d attempts: %w", op, cfg.Attempts, lastErr)).
		Component("migration").
		Category(errors.CategoryRetry).
		Context("operation", op).
		Context("attempts", cfg.Attempts).
		Build()
}
