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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

func sampleState(threadID string) *datatypes.ConversationState {
	state := datatypes.NewConversationState(threadID)
	state.AppendTurn(datatypes.RoleUser, "when should I irrigate?")
	state.AppendTurn(datatypes.RoleAssistant, "within the next day")
	return state
}

func TestOpen_SelectsDurableBackend(t *testing.T) {
	store, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, BackendDurable, store.Backend())
}

func TestOpen_FallsBackToEphemeralWhenDirUnusable(t *testing.T) {
	// A regular file where the directory should be makes badger fail to open.
	blocked := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0600))

	store, err := Open(Config{Dir: filepath.Join(blocked, "db")})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, BackendEphemeral, store.Backend())
}

func TestOpen_NoDirSkipsDurableTier(t *testing.T) {
	store, err := Open(Config{})
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, BackendEphemeral, store.Backend())
}

func TestDurableStore_RoundTrip(t *testing.T) {
	store, err := Open(Config{Dir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleState("t-1")))

	loaded, err := store.Load(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", loaded.ThreadID)
	require.Len(t, loaded.Turns, 2)
	assert.Equal(t, datatypes.RoleUser, loaded.Turns[0].Role)

	_, err = store.Load(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVolatileStore_RoundTripAndIsolation(t *testing.T) {
	store := newVolatileStore(time.Hour, time.Hour)
	defer store.Close()

	ctx := context.Background()
	state := sampleState("t-2")
	require.NoError(t, store.Save(ctx, state))

	// Mutating the original must not leak into the stored copy.
	state.AppendTurn(datatypes.RoleUser, "extra")

	loaded, err := store.Load(ctx, "t-2")
	require.NoError(t, err)
	assert.Len(t, loaded.Turns, 2)
}

func TestVolatileStore_SweeperDropsIdleThreads(t *testing.T) {
	store := newVolatileStore(10*time.Millisecond, 5*time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleState("t-3")))

	require.Eventually(t, func() bool {
		_, err := store.Load(ctx, "t-3")
		return err == ErrNotFound
	}, time.Second, 5*time.Millisecond)
}

func TestVolatileStore_LoadRefreshesIdleClock(t *testing.T) {
	store := newVolatileStore(50*time.Millisecond, 10*time.Millisecond)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleState("t-4")))

	// Keep the thread warm past one idle TTL.
	for i := 0; i < 5; i++ {
		time.Sleep(20 * time.Millisecond)
		_, err := store.Load(ctx, "t-4")
		require.NoError(t, err)
	}
}
