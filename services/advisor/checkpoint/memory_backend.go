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
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// defaultIdleTTL is how long an untouched thread survives in the
// volatile backend before the sweeper drops it.
const defaultIdleTTL = 2 * time.Hour

const defaultSweepInterval = 5 * time.Minute

type volatileEntry struct {
	raw      []byte
	lastUsed time.Time
}

// volatileStore is the last-resort in-process backend. States are kept
// as JSON copies so callers never share memory with the store, matching
// the serialization semantics of the badger tiers.
type volatileStore struct {
	mu      sync.Mutex
	entries map[string]volatileEntry

	idleTTL time.Duration
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// newVolatileStore creates the store and starts its idle sweeper.
func newVolatileStore(idleTTL, sweepInterval time.Duration) *volatileStore {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	s := &volatileStore{
		entries: make(map[string]volatileEntry),
		idleTTL: idleTTL,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.sweep(sweepInterval)
	return s
}

var _ Store = (*volatileStore)(nil)

func (s *volatileStore) Load(_ context.Context, threadID string) (*datatypes.ConversationState, error) {
	s.mu.Lock()
	entry, ok := s.entries[threadID]
	if ok {
		entry.lastUsed = time.Now()
		s.entries[threadID] = entry
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	var state datatypes.ConversationState
	if err := json.Unmarshal(entry.raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the checkpoint for thread %s: %w", threadID, err)
	}
	return &state, nil
}

func (s *volatileStore) Save(_ context.Context, state *datatypes.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal the checkpoint for thread %s: %w", state.ThreadID, err)
	}
	s.mu.Lock()
	s.entries[state.ThreadID] = volatileEntry{raw: raw, lastUsed: time.Now()}
	s.mu.Unlock()
	return nil
}

func (s *volatileStore) Backend() BackendKind {
	return BackendVolatile
}

func (s *volatileStore) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return nil
}

func (s *volatileStore) sweep(interval time.Duration) {
	defer close(s.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.dropIdle()
		}
	}
}

func (s *volatileStore) dropIdle() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	var dropped int
	for id, entry := range s.entries {
		if entry.lastUsed.Before(cutoff) {
			delete(s.entries, id)
			dropped++
		}
	}
	s.mu.Unlock()

	if dropped > 0 {
		slog.Info("Dropped idle conversation checkpoints", "count", dropped)
	}
}
