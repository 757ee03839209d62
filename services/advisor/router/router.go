// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/llm"
)

var routerTracer = otel.Tracer("agronova.advisor.router")

// Router turns a cleaned utterance into a RoutingDecision.
//
// # Thread Safety
//
// Safe for concurrent use; the only mutable state lives in the LLM
// client, which is expected to be concurrency safe.
type Router struct {
	client llm.LLMClient
	cfg    Config
}

func New(client llm.LLMClient, cfg Config) *Router {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = DefaultConfig().ClassifyTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultConfig().HistoryTurns
	}
	return &Router{client: client, cfg: cfg}
}

// classifierReply is the structure the classification call is
// constrained to return.
type classifierReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Route classifies the cleaned input and maps it onto a specialist and
// its required context kinds.
//
// # Description
//
// The external classification call is the only side effect. Every
// failure mode, a classifier error, a timeout, malformed JSON, an
// unknown intent label, or confidence below the threshold, collapses
// into the same fallback: intent "clarification", the default
// specialist, and an empty kind set so the aggregator is skipped
// entirely. Route never returns an error.
func (r *Router) Route(ctx context.Context, cleanedInput string, history []datatypes.Turn) datatypes.RoutingDecision {
	ctx, span := routerTracer.Start(ctx, "Router.Route")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.ClassifyTimeout)
	defer cancel()

	prompt := r.buildPrompt(cleanedInput, history)

	temp := r.cfg.Temperature
	maxTokens := r.cfg.MaxTokens
	raw, err := r.client.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		slog.Warn("Classification call failed, routing to clarification", "error", err)
		span.SetAttributes(attribute.Bool("router.fallback", true))
		return r.fallback("classification call failed")
	}

	reply, err := parseClassifierReply(raw)
	if err != nil {
		slog.Warn("Classifier returned malformed structure, routing to clarification", "error", err)
		span.SetAttributes(attribute.Bool("router.fallback", true))
		return r.fallback("classifier reply was malformed")
	}

	if !KnownIntent(reply.Intent) {
		slog.Warn("Classifier returned unknown intent, routing to clarification", "intent", reply.Intent)
		span.SetAttributes(attribute.Bool("router.fallback", true))
		return r.fallback(fmt.Sprintf("unknown intent %q", reply.Intent))
	}

	if reply.Confidence < r.cfg.ConfidenceThreshold {
		slog.Info("Classifier confidence below threshold, routing to clarification",
			"intent", reply.Intent,
			"confidence", reply.Confidence,
			"threshold", r.cfg.ConfidenceThreshold)
		span.SetAttributes(
			attribute.Bool("router.fallback", true),
			attribute.Float64("router.confidence", reply.Confidence))
		return datatypes.RoutingDecision{
			Specialist:    DefaultSpecialist,
			Intent:        IntentClarification,
			Confidence:    reply.Confidence,
			Reasoning:     reply.Reasoning,
			RequiredKinds: datatypes.NewKindSet(),
			Fallback:      true,
			DecidedAt:     time.Now().UTC(),
		}
	}

	target := intentRoutes[reply.Intent]
	span.SetAttributes(
		attribute.String("router.intent", reply.Intent),
		attribute.String("router.specialist", target.Specialist),
		attribute.Float64("router.confidence", reply.Confidence))
	return datatypes.RoutingDecision{
		Specialist:    target.Specialist,
		Intent:        reply.Intent,
		Confidence:    reply.Confidence,
		Reasoning:     reply.Reasoning,
		RequiredKinds: datatypes.NewKindSet(target.Kinds...),
		DecidedAt:     time.Now().UTC(),
	}
}

func (r *Router) fallback(reason string) datatypes.RoutingDecision {
	return datatypes.RoutingDecision{
		Specialist:    DefaultSpecialist,
		Intent:        IntentClarification,
		Confidence:    0,
		Reasoning:     reason,
		RequiredKinds: datatypes.NewKindSet(),
		Fallback:      true,
		DecidedAt:     time.Now().UTC(),
	}
}

func (r *Router) buildPrompt(cleanedInput string, history []datatypes.Turn) string {
	var b strings.Builder
	b.WriteString("Classify the farmer's latest message into exactly one intent.\n")
	b.WriteString("Allowed intents: irrigation_advice, pest_management, fertilization_advice, weather_query, crop_planning, greeting, clarification.\n")
	b.WriteString("Respond with ONLY a JSON object of the form ")
	b.WriteString(`{"intent": "...", "confidence": 0.0, "reasoning": "..."}`)
	b.WriteString(" where confidence is between 0 and 1.\n")

	if len(history) > 0 {
		start := 0
		if len(history) > r.cfg.HistoryTurns {
			start = len(history) - r.cfg.HistoryTurns
		}
		b.WriteString("\nRecent conversation:\n")
		for _, turn := range history[start:] {
			b.WriteString(string(turn.Role))
			b.WriteString(": ")
			b.WriteString(turn.Text)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nLatest message: ")
	b.WriteString(cleanedInput)
	b.WriteString("\n")
	return b.String()
}

// parseClassifierReply extracts the JSON object from a model reply that
// may be wrapped in markdown fences or surrounding prose.
func parseClassifierReply(raw string) (classifierReply, error) {
	var reply classifierReply

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return reply, fmt.Errorf("no JSON object found in classifier output")
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), &reply); err != nil {
		return reply, fmt.Errorf("failed to unmarshal classifier output: %w", err)
	}
	if reply.Intent == "" {
		return reply, fmt.Errorf("classifier output is missing the intent field")
	}
	if reply.Confidence < 0 || reply.Confidence > 1 {
		return reply, fmt.Errorf("classifier confidence %f is out of range", reply.Confidence)
	}
	return reply, nil
}
