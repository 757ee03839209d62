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
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	storage "github.com/AgronovaAI/AgronovaLocal/services/advisor/storage/badger"
)

// badgerStore persists cache entries in an embedded BadgerDB so warm
// context survives a process restart. TTL handling is delegated to
// badger's native per-entry TTL.
type badgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a persistent store at dir.
func NewBadgerStore(dir string) (Store, error) {
	cfg := storage.DefaultConfig()
	cfg.Path = dir
	cfg.SyncWrites = false // cache entries are re-fetchable
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open the cache store: %w", err)
	}
	return &badgerStore{db: db}, nil
}

var _ Store = (*badgerStore)(nil)

func (s *badgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read the cache entry: %w", err)
	}
	return out, nil
}

func (s *badgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to write the cache entry: %w", err)
	}
	return nil
}

func (s *badgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete the cache entry: %w", err)
	}
	return nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
