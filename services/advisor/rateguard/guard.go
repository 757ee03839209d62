// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rateguard

import (
	"context"
	"log/slog"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/observability"
)

// Decision is the outcome of one Allow check.
type Decision struct {
	Allowed bool

	// Remaining is the admission budget left in the window after this
	// request.
	Remaining int

	// RetryAfter is how long until the oldest windowed request expires;
	// positive whenever Allowed is false.
	RetryAfter time.Duration
}

// Guard applies a sliding-window limit per client identifier.
//
// # Thread Safety
//
// Safe for concurrent use; atomicity lives in the WindowStore.
type Guard struct {
	store  WindowStore
	limit  int
	window time.Duration
}

func New(store WindowStore, limit int, window time.Duration) *Guard {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Guard{store: store, limit: limit, window: window}
}

// Allow admits or rejects one request for the client.
//
// A store error fails open: limiting exists to protect capacity, and
// refusing all traffic because the limiter itself broke inverts that
// goal. The degradation is logged and counted.
func (g *Guard) Allow(ctx context.Context, clientID string) Decision {
	now := time.Now()
	w, err := g.store.Observe(ctx, clientID, now, g.window, g.limit)
	if err != nil {
		observability.CountDegraded("rateguard")
		slog.Warn("Rate guard store failed, admitting request", "client_id", clientID, "error", err)
		return Decision{Allowed: true, Remaining: 0}
	}

	if w.Allowed {
		return Decision{Allowed: true, Remaining: g.limit - w.Count - 1}
	}

	retryAfter := w.Oldest.Add(g.window).Sub(now)
	if retryAfter <= 0 {
		retryAfter = time.Second
	}
	observability.CountRateLimited()
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
}

// Limit returns the configured per-window admission budget.
func (g *Guard) Limit() int {
	return g.limit
}

// Window returns the configured window length.
func (g *Guard) Window() time.Duration {
	return g.window
}
