// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model of the advisor core:
// conversation state, routing decisions, context bundles, and the
// observability records attached to them.
package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// Role values used in conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance within a thread.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertSeverity grades an alert attached to a response.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a non-fatal finding attached to a response, typically a rule
// contradiction or a review-gate flag. Alerts never replace the
// response text; the caller decides what to do with them.
type Alert struct {
	Code           string        `json:"code"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	RuleID         string        `json:"rule_id,omitempty"`
	ReviewRequired bool          `json:"review_required,omitempty"`
}

// ExternalCallTrace records one attempted external call during
// aggregation. Cache hits do not create a trace. Traces are written for
// observability only and are never read back into routing logic.
type ExternalCallTrace struct {
	ID        string        `json:"id"`
	Provider  string        `json:"provider"`
	Operation string        `json:"operation"`
	Success   bool          `json:"success"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
}

// NewTrace creates a trace record for one external call attempt.
func NewTrace(provider, operation string, success bool, latency time.Duration, errText string) ExternalCallTrace {
	return ExternalCallTrace{
		ID:        uuid.NewString(),
		Provider:  provider,
		Operation: operation,
		Success:   success,
		Latency:   latency,
		Error:     errText,
	}
}

// ConversationState is the full state of one active thread.
//
// # Description
//
// One instance exists per thread. It is created on the first turn,
// mutated once per pipeline pass, and persisted to the checkpoint store
// after each pass. The volatile checkpoint backend expires idle states
// after a fixed period.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The pipeline serializes passes per
// thread, so at most one pass touches a given state at a time.
type ConversationState struct {
	ThreadID string `json:"thread_id"`

	// FarmID and SiteID key the external context fetches. When empty the
	// thread ID doubles as the key, one farm per conversation.
	FarmID string `json:"farm_id,omitempty"`
	SiteID string `json:"site_id,omitempty"`

	// Turns is the ordered transcript of the thread.
	Turns []Turn `json:"turns"`

	// RawInput and RedactedInput hold the current turn's input before
	// and after redaction.
	RawInput      string `json:"raw_input,omitempty"`
	RedactedInput string `json:"redacted_input,omitempty"`

	// Decision is the current turn's routing decision, nil before routing.
	Decision *RoutingDecision `json:"decision,omitempty"`

	// Context is the assembled context bundle. Populated fields are only
	// replaced by strictly newer fetches of the same kind.
	Context ContextBundle `json:"context"`

	// Alerts accumulates rule alerts across passes, append-only.
	Alerts []Alert `json:"alerts,omitempty"`

	// Traces accumulates external-call traces across passes.
	Traces []ExternalCallTrace `json:"traces,omitempty"`

	// VisitedNodes is the ordered trail of pipeline stages, for diagnostics.
	VisitedNodes []string `json:"visited_nodes,omitempty"`

	// LastError holds the most recent pipeline-level error text, if any.
	LastError string `json:"last_error,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID string) *ConversationState {
	return &ConversationState{
		ThreadID:  threadID,
		UpdatedAt: time.Now(),
	}
}

// AppendTurn adds a turn to the transcript.
func (s *ConversationState) AppendTurn(role, text string) {
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, Timestamp: time.Now()})
}

// Visit appends a stage name to the diagnostic trail.
func (s *ConversationState) Visit(node string) {
	s.VisitedNodes = append(s.VisitedNodes, node)
}

// History returns up to limit most recent turns, oldest first.
func (s *ConversationState) History(limit int) []Turn {
	if limit <= 0 || len(s.Turns) <= limit {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-limit:]
}
