// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists conversation state between turns.
//
// Backend preference is explicit and ordered: durable badger on disk,
// then ephemeral badger in memory, then a volatile in-process map. The
// choice happens once at startup and is fixed for the process lifetime;
// durability guarantees never change silently mid-conversation.
package checkpoint

import (
	"context"
	"errors"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// ErrNotFound is returned when no state exists for a thread.
var ErrNotFound = errors.New("checkpoint: thread not found")

// BackendKind names the selected backend tier.
type BackendKind string

const (
	// BackendDurable is badger on disk; state survives restarts.
	BackendDurable BackendKind = "durable"

	// BackendEphemeral is badger in memory; state survives within the
	// process only.
	BackendEphemeral BackendKind = "ephemeral"

	// BackendVolatile is an in-process map with idle expiry and no
	// cross-process durability at all.
	BackendVolatile BackendKind = "volatile"
)

// Store loads and saves conversation state for threads.
type Store interface {
	Load(ctx context.Context, threadID string) (*datatypes.ConversationState, error)
	Save(ctx context.Context, state *datatypes.ConversationState) error

	// Backend reports which tier this store runs on.
	Backend() BackendKind

	Close() error
}
