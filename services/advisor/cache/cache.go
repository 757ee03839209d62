// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// TTLs holds the freshness class per context kind. Profiles change
// rarely, sensor readings drift, advisories expire fast.
type TTLs struct {
	Profile  time.Duration
	Site     time.Duration
	Advisory time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Profile:  30 * time.Minute,
		Site:     10 * time.Minute,
		Advisory: 5 * time.Minute,
	}
}

// Layer is the typed cache-aside facade over a Store.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying Store is atomic per key and
// the counters are atomics.
type Layer struct {
	store Store
	ttls  TTLs

	hits   atomic.Int64
	misses atomic.Int64
}

func NewLayer(store Store, ttls TTLs) *Layer {
	if ttls.Profile <= 0 || ttls.Site <= 0 || ttls.Advisory <= 0 {
		ttls = DefaultTTLs()
	}
	return &Layer{store: store, ttls: ttls}
}

func (l *Layer) ttlFor(kind datatypes.ContextKind) time.Duration {
	switch kind {
	case datatypes.KindProfile:
		return l.ttls.Profile
	case datatypes.KindSite:
		return l.ttls.Site
	default:
		return l.ttls.Advisory
	}
}

func cacheKey(kind datatypes.ContextKind, id string) string {
	return string(kind) + ":" + id
}

// Get unmarshals the cached value for (kind, id) into out. Returns
// ErrNotFound on a miss or an expired entry. Store read errors are
// logged and reported as misses so a broken cache never blocks a fetch.
func (l *Layer) Get(ctx context.Context, kind datatypes.ContextKind, id string, out interface{}) error {
	raw, err := l.store.Get(ctx, cacheKey(kind, id))
	if err != nil {
		l.misses.Add(1)
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("Cache read failed, treating as miss", "kind", kind, "error", err)
			return ErrNotFound
		}
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		l.misses.Add(1)
		slog.Warn("Cache entry was undecodable, treating as miss", "kind", kind, "error", err)
		return ErrNotFound
	}
	l.hits.Add(1)
	return nil
}

// Set stores value under (kind, id) with the kind's TTL class.
func (l *Layer) Set(ctx context.Context, kind datatypes.ContextKind, id string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal the cache value: %w", err)
	}
	if err := l.store.Set(ctx, cacheKey(kind, id), raw, l.ttlFor(kind)); err != nil {
		return fmt.Errorf("failed to store the cache value: %w", err)
	}
	return nil
}

// Invalidate drops the entry for (kind, id).
func (l *Layer) Invalidate(ctx context.Context, kind datatypes.ContextKind, id string) error {
	return l.store.Delete(ctx, cacheKey(kind, id))
}

// Stats returns the hit and miss counts since startup.
func (l *Layer) Stats() (hits, misses int64) {
	return l.hits.Load(), l.misses.Load()
}

func (l *Layer) Close() error {
	return l.store.Close()
}
