// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import "sync"

// threadLocks serializes pipeline passes per thread while letting
// different threads run concurrently. Locks are reference counted and
// dropped from the map once the last holder releases, so idle threads
// cost nothing.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

func (t *threadLocks) acquire(threadID string) {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
}

func (t *threadLocks) release(threadID string) {
	t.mu.Lock()
	l := t.locks[threadID]
	l.refs--
	if l.refs == 0 {
		delete(t.locks, threadID)
	}
	t.mu.Unlock()

	l.mu.Unlock()
}
