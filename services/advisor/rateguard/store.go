// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rateguard implements sliding-window per-client rate limiting
// for the public API surface.
package rateguard

import (
	"context"
	"sync"
	"time"
)

// Window is the result of one atomic window operation.
type Window struct {
	// Count is the number of requests in the window before this one.
	Count int

	// Allowed reports whether this request was admitted and recorded.
	Allowed bool

	// Oldest is the timestamp of the oldest request still in the
	// window; zero when the window was empty.
	Oldest time.Time
}

// WindowStore records request timestamps per client. Observe must be
// atomic per id: prune expired entries, count, compare against limit,
// and append the new timestamp only when admitted.
type WindowStore interface {
	Observe(ctx context.Context, id string, now time.Time, window time.Duration, limit int) (Window, error)
}

// memoryStore keeps windows in process memory. One mutex guards the
// whole map; windows are short and the critical section is cheap.
type memoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryStore returns an empty in-process window store.
func NewMemoryStore() WindowStore {
	return &memoryStore{windows: make(map[string][]time.Time)}
}

var _ WindowStore = (*memoryStore)(nil)

func (s *memoryStore) Observe(_ context.Context, id string, now time.Time,
	window time.Duration, limit int) (Window, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.windows[id][:0]
	for _, ts := range s.windows[id] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	result := Window{Count: len(kept)}
	if len(kept) > 0 {
		result.Oldest = kept[0]
	}

	// Count-then-add: the comparison sees only prior requests, so the
	// Nth request in a window of limit N is still admitted.
	if len(kept) < limit {
		result.Allowed = true
		kept = append(kept, now)
	}

	if len(kept) == 0 {
		delete(s.windows, id)
	} else {
		s.windows[id] = kept
	}
	return result, nil
}
