package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 30 * time.Second
)

// RetryConfig controls the retry behaviour of the network-bound clone call.
// The delay between attempts is fixed, not exponential. Local filesystem
// operations are never retried through this path.
type RetryConfig struct {
	// MaxAttempts is the total number of clone attempts before giving up
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the fixed wait between consecutive attempts
	Delay time.Duration `yaml:"delay"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Delay <= 0 {
		c.Delay = defaultRetryDelay
	}
	return c
}

// retryDo invokes fn up to cfg.MaxAttempts times, sleeping cfg.Delay between
// attempts. The delay is skipped after the final attempt. A successful
// attempt short-circuits immediately. ctx cancellation aborts both the wait
// and any further attempts.
func retryDo(ctx context.Context, cfg RetryConfig, log *slog.Logger, op string, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		log.Error("attempt failed", "op", op, "attempt", attempt, "max-attempts", cfg.MaxAttempts, "err", lastErr)

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s aborted err:%w", op, ctx.Err())
		case <-time.After(cfg.Delay):
		}
	}

	return fmt.Errorf("%s failed after %d attempts err:%w", op, cfg.MaxAttempts, lastErr)
}
