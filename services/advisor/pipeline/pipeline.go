// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline runs one conversation turn end to end: redact,
// route, aggregate context, generate, validate, checkpoint.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/checkpoint"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/contextagg"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/observability"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/router"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rules"
	"github.com/AgronovaAI/AgronovaLocal/services/llm"
	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

var pipeTracer = otel.Tracer("agronova.advisor.pipeline")

// ErrGeneration marks a failed generation call. It is the only error
// ProcessTurn returns; every other problem degrades in place.
var ErrGeneration = errors.New("generation call failed")

// historyTurnsInPrompt bounds how much transcript the generation prompt
// carries.
const historyTurnsInPrompt = 10

// Result is the outcome of one processed turn.
type Result struct {
	ThreadID   string
	Response   string
	Intent     string
	Specialist string
	Alerts     []datatypes.Alert

	// ReviewRequired is set when any triggered rule needs the human
	// review gate before release.
	ReviewRequired bool
}

// Pipeline wires the turn stages together.
//
// # Thread Safety
//
// Safe for concurrent use. Passes for the same thread are serialized
// with a keyed lock; different threads proceed in parallel.
type Pipeline struct {
	redactor    *redaction.Engine
	router      *router.Router
	aggregator  *contextagg.Aggregator
	rules       *rules.Engine
	checkpoints checkpoint.Store
	generator   llm.LLMClient

	locks *threadLocks
}

func New(redactor *redaction.Engine, rt *router.Router, agg *contextagg.Aggregator,
	rulesEngine *rules.Engine, checkpoints checkpoint.Store, generator llm.LLMClient) *Pipeline {

	return &Pipeline{
		redactor:    redactor,
		router:      rt,
		aggregator:  agg,
		rules:       rulesEngine,
		checkpoints: checkpoints,
		generator:   generator,
		locks:       newThreadLocks(),
	}
}

// ProcessTurn runs the full pipeline for one utterance.
//
// # Description
//
// The turn is serialized against other turns on the same thread. State
// is loaded from the checkpoint store (or created), every stage records
// its trail in VisitedNodes, and state is checkpointed even when
// generation fails so the failed turn is not lost from the transcript.
//
// Only a generation failure produces an error, wrapped around
// ErrGeneration; redaction, routing, aggregation, and validation all
// degrade instead of failing.
func (p *Pipeline) ProcessTurn(ctx context.Context, threadID, rawInput, farmID, siteID string) (Result, error) {
	ctx, span := pipeTracer.Start(ctx, "Pipeline.ProcessTurn")
	defer span.End()
	span.SetAttributes(attribute.String("thread_id", threadID))

	p.locks.acquire(threadID)
	defer p.locks.release(threadID)

	state := p.loadState(ctx, threadID)
	if farmID != "" {
		state.FarmID = farmID
	}
	if siteID != "" {
		state.SiteID = siteID
	}

	// Redact before anything else sees the text.
	started := time.Now()
	state.Visit("redact")
	cleaned, detections := p.redactor.Redact(rawInput)
	for _, d := range detections {
		observability.CountRedaction(d.Category)
	}
	state.RawInput = rawInput
	state.RedactedInput = cleaned
	observability.ObserveStage("redact", time.Since(started))

	history := state.History(historyTurnsInPrompt)
	state.AppendTurn(datatypes.RoleUser, cleaned)

	started = time.Now()
	state.Visit("route")
	decision := p.router.Route(ctx, cleaned, history)
	state.Decision = &decision
	observability.ObserveStage("route", time.Since(started))
	span.SetAttributes(
		attribute.String("intent", decision.Intent),
		attribute.String("specialist", decision.Specialist))

	started = time.Now()
	state.Visit("aggregate")
	bundle, traces := p.aggregator.Aggregate(ctx, decision, state)
	state.Traces = append(state.Traces, traces...)
	observability.ObserveStage("aggregate", time.Since(started))

	started = time.Now()
	state.Visit("generate")
	response, err := p.generator.Generate(ctx, p.buildPrompt(decision, bundle, history, cleaned), llm.GenerationParams{})
	observability.ObserveStage("generate", time.Since(started))
	if err != nil {
		state.LastError = err.Error()
		p.saveState(ctx, state)
		observability.CountTurn("generation_failed")
		slog.Error("Generation call failed", "thread_id", threadID, "error", err)
		return Result{ThreadID: threadID, Intent: decision.Intent, Specialist: decision.Specialist},
			fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	started = time.Now()
	state.Visit("validate")
	matched := p.rules.Evaluate(bundle)
	alerts := p.rules.Validate(response, bundle)
	reviewRequired := false
	for _, m := range matched {
		if m.ReviewRequired {
			reviewRequired = true
			alerts = append(alerts, datatypes.Alert{
				Code:           "review_required",
				Severity:       datatypes.SeverityInfo,
				Message:        m.Rule.Recommendation,
				RuleID:         m.Rule.ID,
				ReviewRequired: true,
			})
		}
	}
	state.Alerts = append(state.Alerts, alerts...)
	observability.ObserveStage("validate", time.Since(started))

	state.AppendTurn(datatypes.RoleAssistant, response)
	state.LastError = ""

	started = time.Now()
	state.Visit("checkpoint")
	p.saveState(ctx, state)
	observability.ObserveStage("checkpoint", time.Since(started))

	status := "ok"
	if len(alerts) > 0 || syntheticIn(bundle) {
		status = "degraded"
	}
	observability.CountTurn(status)

	return Result{
		ThreadID:       threadID,
		Response:       response,
		Intent:         decision.Intent,
		Specialist:     decision.Specialist,
		Alerts:         alerts,
		ReviewRequired: reviewRequired,
	}, nil
}

// LoadThread returns the persisted state for a thread.
func (p *Pipeline) LoadThread(ctx context.Context, threadID string) (*datatypes.ConversationState, error) {
	return p.checkpoints.Load(ctx, threadID)
}

func (p *Pipeline) loadState(ctx context.Context, threadID string) *datatypes.ConversationState {
	state, err := p.checkpoints.Load(ctx, threadID)
	if err == nil {
		return state
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		observability.CountDegraded("checkpoint")
		slog.Warn("Failed to load the checkpoint, starting a fresh state",
			"thread_id", threadID, "error", err)
	}
	return datatypes.NewConversationState(threadID)
}

// saveState persists the state; a save failure degrades rather than
// failing the turn, the user already has their answer.
func (p *Pipeline) saveState(ctx context.Context, state *datatypes.ConversationState) {
	state.UpdatedAt = time.Now().UTC()
	if err := p.checkpoints.Save(ctx, state); err != nil {
		observability.CountDegraded("checkpoint")
		slog.Error("Failed to save the checkpoint", "thread_id", state.ThreadID, "error", err)
	}
}

// buildPrompt renders the specialist prompt from the routing decision,
// the context bundle, and recent history.
func (p *Pipeline) buildPrompt(decision datatypes.RoutingDecision,
	bundle *datatypes.ContextBundle, history []datatypes.Turn, input string) string {

	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s specialist. The farmer's intent is %s.\n",
		decision.Specialist, decision.Intent)

	if bundle.Profile != nil {
		fmt.Fprintf(&b, "\nFarm profile: crop=%s, type=%s, region=%s, area=%.1f ha.",
			bundle.Profile.Crop, bundle.Profile.FarmType, bundle.Profile.Region, bundle.Profile.AreaHa)
		if bundle.Profile.Synthetic {
			b.WriteString(" (assumed, live profile unavailable)")
		}
	}
	if bundle.Site != nil {
		fmt.Fprintf(&b, "\nField readings: soil moisture %.0f%%, soil temperature %.1f C, soil %s, irrigation %s.",
			bundle.Site.SoilMoisturePct, bundle.Site.SoilTemperatureC,
			bundle.Site.SoilType, bundle.Site.IrrigationSystem)
		if bundle.Site.Synthetic {
			b.WriteString(" (assumed, sensors unreachable)")
		}
	}
	if bundle.Advisory != nil {
		fmt.Fprintf(&b, "\nRegional advisory (%s, %s): %.1f C, humidity %.0f%%, wind %.0f km/h, precipitation %.0f mm. %s",
			bundle.Advisory.Region, bundle.Advisory.Season, bundle.Advisory.TemperatureC,
			bundle.Advisory.HumidityPct, bundle.Advisory.WindKph,
			bundle.Advisory.PrecipitationMM, bundle.Advisory.Summary)
		if bundle.Advisory.Synthetic {
			b.WriteString(" (seasonal estimate, live advisory unavailable)")
		}
	}

	if len(history) > 0 {
		b.WriteString("\n\nRecent conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		}
	}

	fmt.Fprintf(&b, "\nFarmer: %s\nAnswer concretely and note any assumption you had to make.", input)
	return b.String()
}

func syntheticIn(bundle *datatypes.ContextBundle) bool {
	return (bundle.Profile != nil && bundle.Profile.Synthetic) ||
		(bundle.Site != nil && bundle.Site.Synthetic) ||
		(bundle.Advisory != nil && bundle.Advisory.Synthetic)
}
