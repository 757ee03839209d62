// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryPolicy bounds and paces repeated calls against one upstream.
//
// # Thread Safety
//
// Safe for concurrent use. The rate limiter serializes token grants
// across all goroutines sharing the policy.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int

	// InitialDelay is doubled after each failed attempt.
	InitialDelay time.Duration

	// Limiter caps outbound request rate across retries and callers.
	// Nil means unpaced.
	Limiter *rate.Limiter
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		InitialDelay: 100 * time.Millisecond,
		Limiter:      rate.NewLimiter(rate.Limit(10), 10),
	}
}

// Do runs fn until it succeeds, the retry budget is spent, or ctx
// expires. The caller's per-kind deadline stays in force across
// attempts, so a slow upstream cannot stretch the aggregate budget.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	retryDelay := p.InitialDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			slog.Info("Retrying provider call",
				"operation", op,
				"attempt", attempt,
				"delay", retryDelay,
				"lastError", lastErr,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
				// Continue with retry
			}
			retryDelay *= 2 // Exponential backoff
		}

		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxRetries+1, lastErr)
}
