// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/observability"
)

// Config controls backend selection at startup.
type Config struct {
	// Dir is the durable badger directory. Empty skips the durable tier.
	Dir string

	// DisableVolatileFallback refuses to serve from the in-process map.
	// With it set, failing to open both badger tiers is fatal.
	DisableVolatileFallback bool

	// VolatileIdleTTL and VolatileSweepInterval tune the last-resort
	// backend's idle expiry.
	VolatileIdleTTL       time.Duration
	VolatileSweepInterval time.Duration
}

// Open selects the checkpoint backend once for the process lifetime.
//
// # Description
//
// The preference order is durable, ephemeral, volatile. Each fallback
// is logged exactly once, here at startup; transient call failures
// later never trigger a backend switch. With every tier unavailable
// (or the volatile tier disabled) Open returns an error and the caller
// should refuse to serve.
func Open(cfg Config) (Store, error) {
	if cfg.Dir != "" {
		store, err := newDurableStore(cfg.Dir)
		if err == nil {
			slog.Info("Checkpoint store using durable backend", "dir", cfg.Dir)
			return store, nil
		}
		observability.CountDegraded("checkpoint")
		slog.Warn("Durable checkpoint backend unavailable, falling back to ephemeral",
			"dir", cfg.Dir, "error", err)
	} else {
		slog.Warn("No checkpoint directory configured, conversation state will not survive restarts")
	}

	store, err := newEphemeralStore()
	if err == nil {
		slog.Info("Checkpoint store using ephemeral backend")
		return store, nil
	}

	if cfg.DisableVolatileFallback {
		return nil, fmt.Errorf("no usable checkpoint backend: %w", err)
	}

	observability.CountDegraded("checkpoint")
	slog.Warn("Ephemeral checkpoint backend unavailable, falling back to volatile", "error", err)
	return newVolatileStore(cfg.VolatileIdleTTL, cfg.VolatileSweepInterval), nil
}
