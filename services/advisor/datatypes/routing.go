// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// RoutingDecision is the structured result of classifying one turn.
//
// # Description
//
// Produced once per turn by the router and read by the context
// aggregator to decide what to fetch. Immutable after creation.
type RoutingDecision struct {
	// Specialist is the target specialist identifier (e.g. "agronomist").
	Specialist string `json:"specialist"`

	// Intent is the classified intent label from the closed vocabulary.
	Intent string `json:"intent"`

	// Confidence is the classifier's confidence in the intent (0.0-1.0).
	Confidence float64 `json:"confidence"`

	// Reasoning is the classifier's brief explanation, kept for tracing.
	Reasoning string `json:"reasoning,omitempty"`

	// RequiredKinds is the set of context kinds the specialist needs.
	// Empty for clarification turns so no fetches are wasted.
	RequiredKinds KindSet `json:"required_kinds"`

	// Fallback is true when the decision came from the low-confidence
	// fallback path rather than a trusted classification.
	Fallback bool `json:"fallback,omitempty"`

	// DecidedAt is when the decision was produced.
	DecidedAt time.Time `json:"decided_at"`
}

// IsConfident reports whether the decision met the given threshold.
func (d *RoutingDecision) IsConfident(threshold float64) bool {
	return d.Confidence >= threshold
}
