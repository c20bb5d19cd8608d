package client

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Spinkelben/MarketDash/internal/metrics"
)

// MaxAttempts is how many times a query is tried before giving up.
const MaxAttempts = 3

// withRetry runs fn up to MaxAttempts times. Every attempt starts with
// connect, which is a no-op unless an earlier attempt dropped the connection.
// Callers must hold mu.
func (c *Client) withRetry(ctx context.Context, operation string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	var errs error

	for attempt := 1; ; attempt++ {
		value, err := c.attempt(ctx, fn)
		if err == nil {
			metrics.RecordQuery(operation, attempt, nil)
			return value, nil
		}

		errs = multierr.Append(errs, err)

		if attempt >= MaxAttempts || ctx.Err() != nil {
			metrics.RecordQuery(operation, attempt, err)
			c.log.Error("Giving up",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Errors("errors", multierr.Errors(errs)))

			return nil, fmt.Errorf("%s failed after %d attempts: %w", operation, attempt, err)
		}

		c.log.Warn("Attempt failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Stringer("state", c.State()),
			zap.Error(err))
	}
}

func (c *Client) attempt(ctx context.Context, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	return fn()
}
