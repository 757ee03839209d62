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
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	storage "github.com/AgronovaAI/AgronovaLocal/services/advisor/storage/badger"
)

const threadKeyPrefix = "thread/"

// badgerStore serves both the durable and ephemeral tiers; the two
// differ only in how the underlying DB was opened.
type badgerStore struct {
	db      *badger.DB
	backend BackendKind
	gc      *storage.GCRunner
}

// newDurableStore opens badger on disk at dir.
func newDurableStore(dir string) (*badgerStore, error) {
	cfg := storage.DefaultConfig()
	cfg.Path = dir
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open the durable checkpoint store: %w", err)
	}
	s := &badgerStore{db: db, backend: BackendDurable}
	if cfg.GCInterval > 0 {
		gc, err := storage.NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, nil)
		if err == nil {
			gc.Start()
			s.gc = gc
		}
	}
	return s, nil
}

// newEphemeralStore opens badger in memory.
func newEphemeralStore() (*badgerStore, error) {
	db, err := storage.OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open the ephemeral checkpoint store: %w", err)
	}
	return &badgerStore{db: db, backend: BackendEphemeral}, nil
}

var _ Store = (*badgerStore)(nil)

func (s *badgerStore) Load(_ context.Context, threadID string) (*datatypes.ConversationState, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(threadKeyPrefix + threadID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load the checkpoint for thread %s: %w", threadID, err)
	}

	var state datatypes.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the checkpoint for thread %s: %w", threadID, err)
	}
	return &state, nil
}

func (s *badgerStore) Save(_ context.Context, state *datatypes.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal the checkpoint for thread %s: %w", state.ThreadID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(threadKeyPrefix+state.ThreadID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to save the checkpoint for thread %s: %w", state.ThreadID, err)
	}
	return nil
}

func (s *badgerStore) Backend() BackendKind {
	return s.backend
}

func (s *badgerStore) Close() error {
	if s.gc != nil {
		s.gc.Stop()
	}
	return s.db.Close()
}
