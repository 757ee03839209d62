// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package contextagg assembles the context bundle for a turn by fanning
// out to the external providers in parallel under per-kind and
// aggregate deadlines, with cache-aside reads and synthetic fallbacks.
package contextagg

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/cache"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/observability"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/providers"
)

var aggTracer = otel.Tracer("agronova.advisor.contextagg")

// Config holds the timeout profile and fallback defaults.
type Config struct {
	// ProfileTimeout and SiteTimeout bound the registry fetches; the
	// registry is local and fast, so these are tight.
	ProfileTimeout time.Duration
	SiteTimeout    time.Duration

	// AdvisoryTimeout is looser, the advisory upstream is remote.
	AdvisoryTimeout time.Duration

	// AggregateDeadline bounds the whole join regardless of how many
	// kinds are in flight. Must exceed the largest per-kind timeout.
	AggregateDeadline time.Duration

	// ReuseTTLs is the freshness window within which a value already in
	// the conversation state is reused without any fetch.
	ReuseTTLs cache.TTLs

	// DefaultRegion and DefaultCrop key the advisory fetch when no
	// profile is available yet.
	DefaultRegion string
	DefaultCrop   string
}

func DefaultAggregatorConfig() Config {
	return Config{
		ProfileTimeout:    2 * time.Second,
		SiteTimeout:       2 * time.Second,
		AdvisoryTimeout:   5 * time.Second,
		AggregateDeadline: 6 * time.Second,
		ReuseTTLs:         cache.DefaultTTLs(),
		DefaultRegion:     "unknown",
		DefaultCrop:       "unknown",
	}
}

// Aggregator fans out context fetches for the kinds a routing decision
// requires.
//
// # Thread Safety
//
// Safe for concurrent use across threads; per-thread state is owned by
// the caller for the duration of the turn.
type Aggregator struct {
	profiles   providers.ProfileProvider
	sites      providers.SiteProvider
	advisories providers.AdvisoryProvider
	cache      *cache.Layer
	cfg        Config
}

func New(profiles providers.ProfileProvider, sites providers.SiteProvider,
	advisories providers.AdvisoryProvider, cacheLayer *cache.Layer, cfg Config) *Aggregator {

	def := DefaultAggregatorConfig()
	if cfg.ProfileTimeout <= 0 {
		cfg.ProfileTimeout = def.ProfileTimeout
	}
	if cfg.SiteTimeout <= 0 {
		cfg.SiteTimeout = def.SiteTimeout
	}
	if cfg.AdvisoryTimeout <= 0 {
		cfg.AdvisoryTimeout = def.AdvisoryTimeout
	}
	if cfg.AggregateDeadline <= 0 {
		cfg.AggregateDeadline = def.AggregateDeadline
	}
	if cfg.ReuseTTLs.Profile <= 0 {
		cfg.ReuseTTLs = def.ReuseTTLs
	}
	return &Aggregator{
		profiles:   profiles,
		sites:      sites,
		advisories: advisories,
		cache:      cacheLayer,
		cfg:        cfg,
	}
}

// fetched carries one settled fetch back to the join loop.
type fetched struct {
	kind  datatypes.ContextKind
	value interface{}
	trace datatypes.ExternalCallTrace
	ok    bool
}

// Aggregate acquires every kind the decision requires and merges the
// results into the state's bundle.
//
// # Description
//
// Per kind, in order of preference: reuse a still-fresh value already
// in the state, serve from cache, or fetch with the kind's timeout.
// Fetches run concurrently; the join waits at most AggregateDeadline,
// then fills unsettled kinds with synthetic values. A kind outside the
// decision's required set is never fetched, even when cheap.
//
// Exactly one trace is recorded per network fetch attempted (cache hits
// and reuses produce none). Cache writes and merges happen after the
// join, on the caller's goroutine; a fetched value only replaces an
// existing one when strictly newer.
//
// Aggregate never fails: any provider problem degrades to a synthetic
// value with a failed trace.
func (a *Aggregator) Aggregate(ctx context.Context, decision datatypes.RoutingDecision,
	state *datatypes.ConversationState) (*datatypes.ContextBundle, []datatypes.ExternalCallTrace) {

	ctx, span := aggTracer.Start(ctx, "Aggregator.Aggregate")
	defer span.End()

	bundle := &state.Context
	if decision.RequiredKinds.Empty() {
		return bundle, nil
	}

	now := time.Now().UTC()
	var pending []datatypes.ContextKind
	for _, kind := range decision.RequiredKinds.Sorted() {
		if a.reusable(bundle, kind, now) {
			observability.CountContextFetch(string(kind), "reuse")
			continue
		}
		if a.fromCache(ctx, bundle, kind, state) {
			observability.CountContextFetch(string(kind), "hit")
			continue
		}
		pending = append(pending, kind)
	}
	span.SetAttributes(attribute.Int("aggregate.pending", len(pending)))
	if len(pending) == 0 {
		return bundle, nil
	}

	// Buffered so late fetches can settle after the deadline without
	// leaking their goroutines.
	results := make(chan fetched, len(pending))
	for _, kind := range pending {
		go a.fetchKind(ctx, kind, state, results)
	}

	settled := make(map[datatypes.ContextKind]fetched, len(pending))
	deadline := time.NewTimer(a.cfg.AggregateDeadline)
	defer deadline.Stop()

join:
	for len(settled) < len(pending) {
		select {
		case r := <-results:
			settled[r.kind] = r
		case <-deadline.C:
			slog.Warn("Aggregate deadline elapsed with fetches still in flight",
				"thread_id", state.ThreadID,
				"settled", len(settled),
				"pending", len(pending))
			break join
		}
	}

	var traces []datatypes.ExternalCallTrace
	for _, kind := range pending {
		r, ok := settled[kind]
		if !ok {
			r = a.syntheticResult(kind, state, "aggregate deadline exceeded", a.cfg.AggregateDeadline)
		}
		traces = append(traces, r.trace)

		if r.ok {
			observability.CountContextFetch(string(kind), "fetched")
			a.storeInCache(ctx, kind, state, r.value)
		} else {
			observability.CountContextFetch(string(kind), "synthetic")
		}
		a.merge(bundle, kind, r.value)
	}

	return bundle, traces
}

// reusable reports whether the bundle already holds a fresh enough,
// non-synthetic value for kind.
func (a *Aggregator) reusable(bundle *datatypes.ContextBundle, kind datatypes.ContextKind, now time.Time) bool {
	switch kind {
	case datatypes.KindProfile:
		return bundle.Profile != nil && !bundle.Profile.Synthetic &&
			now.Sub(bundle.Profile.FetchedAt) < a.cfg.ReuseTTLs.Profile
	case datatypes.KindSite:
		return bundle.Site != nil && !bundle.Site.Synthetic &&
			now.Sub(bundle.Site.FetchedAt) < a.cfg.ReuseTTLs.Site
	case datatypes.KindAdvisory:
		return bundle.Advisory != nil && !bundle.Advisory.Synthetic &&
			now.Sub(bundle.Advisory.FetchedAt) < a.cfg.ReuseTTLs.Advisory
	}
	return false
}

// fromCache fills the bundle from the cache layer. Returns false on a
// miss or when no cache is configured.
func (a *Aggregator) fromCache(ctx context.Context, bundle *datatypes.ContextBundle,
	kind datatypes.ContextKind, state *datatypes.ConversationState) bool {

	if a.cache == nil {
		return false
	}
	switch kind {
	case datatypes.KindProfile:
		var p datatypes.ProfileContext
		if err := a.cache.Get(ctx, kind, a.farmID(state), &p); err == nil {
			bundle.MergeProfile(&p)
			return true
		}
	case datatypes.KindSite:
		var s datatypes.SiteContext
		if err := a.cache.Get(ctx, kind, a.siteID(state), &s); err == nil {
			bundle.MergeSite(&s)
			return true
		}
	case datatypes.KindAdvisory:
		var adv datatypes.AdvisoryContext
		if err := a.cache.Get(ctx, kind, a.region(state), &adv); err == nil {
			bundle.MergeAdvisory(&adv)
			return true
		}
	}
	return false
}

// fetchKind performs one provider call under the kind's timeout and
// sends exactly one result.
func (a *Aggregator) fetchKind(ctx context.Context, kind datatypes.ContextKind,
	state *datatypes.ConversationState, results chan<- fetched) {

	started := time.Now()
	switch kind {
	case datatypes.KindProfile:
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.ProfileTimeout)
		defer cancel()
		profile, err := a.profiles.FetchProfile(fetchCtx, a.farmID(state))
		latency := time.Since(started)
		if err != nil {
			results <- a.syntheticResult(kind, state, err.Error(), latency)
			return
		}
		results <- fetched{
			kind:  kind,
			value: profile,
			trace: datatypes.NewTrace("registry", "FetchProfile", true, latency, ""),
			ok:    true,
		}

	case datatypes.KindSite:
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.SiteTimeout)
		defer cancel()
		site, err := a.sites.FetchSite(fetchCtx, a.siteID(state))
		latency := time.Since(started)
		if err != nil {
			results <- a.syntheticResult(kind, state, err.Error(), latency)
			return
		}
		results <- fetched{
			kind:  kind,
			value: site,
			trace: datatypes.NewTrace("registry", "FetchSite", true, latency, ""),
			ok:    true,
		}

	case datatypes.KindAdvisory:
		fetchCtx, cancel := context.WithTimeout(ctx, a.cfg.AdvisoryTimeout)
		defer cancel()
		advisory, err := a.advisories.FetchAdvisory(fetchCtx, a.region(state), a.crop(state))
		latency := time.Since(started)
		if err != nil {
			results <- a.syntheticResult(kind, state, err.Error(), latency)
			return
		}
		results <- fetched{
			kind:  kind,
			value: advisory,
			trace: datatypes.NewTrace("advisory", "FetchAdvisory", true, latency, ""),
			ok:    true,
		}
	}
}

// syntheticResult builds the degraded result for a kind, including the
// single failed trace for the attempt.
func (a *Aggregator) syntheticResult(kind datatypes.ContextKind,
	state *datatypes.ConversationState, errText string, latency time.Duration) fetched {

	now := time.Now().UTC()
	var value interface{}
	provider, operation := "registry", ""
	switch kind {
	case datatypes.KindProfile:
		value = SyntheticProfile(a.farmID(state), now)
		operation = "FetchProfile"
	case datatypes.KindSite:
		value = SyntheticSite(a.siteID(state), now)
		operation = "FetchSite"
	case datatypes.KindAdvisory:
		value = SyntheticAdvisory(a.region(state), now)
		provider, operation = "advisory", "FetchAdvisory"
	}
	slog.Warn("Context fetch degraded to synthetic value",
		"thread_id", state.ThreadID,
		"kind", kind,
		"error", errText)
	return fetched{
		kind:  kind,
		value: value,
		trace: datatypes.NewTrace(provider, operation, false, latency, errText),
	}
}

func (a *Aggregator) storeInCache(ctx context.Context, kind datatypes.ContextKind,
	state *datatypes.ConversationState, value interface{}) {

	if a.cache == nil {
		return
	}
	var id string
	switch kind {
	case datatypes.KindProfile:
		id = a.farmID(state)
	case datatypes.KindSite:
		id = a.siteID(state)
	case datatypes.KindAdvisory:
		id = a.region(state)
	}
	if err := a.cache.Set(ctx, kind, id, value); err != nil {
		observability.CountDegraded("cache")
		slog.Warn("Failed to cache a fetched context value", "kind", kind, "error", err)
	}
}

// merge folds a settled value into the bundle. A synthetic value only
// fills a gap; it never displaces a real reading, however stale.
func (a *Aggregator) merge(bundle *datatypes.ContextBundle, kind datatypes.ContextKind, value interface{}) {
	switch kind {
	case datatypes.KindProfile:
		p := value.(*datatypes.ProfileContext)
		if p.Synthetic && bundle.Profile != nil && !bundle.Profile.Synthetic {
			return
		}
		bundle.MergeProfile(p)
	case datatypes.KindSite:
		s := value.(*datatypes.SiteContext)
		if s.Synthetic && bundle.Site != nil && !bundle.Site.Synthetic {
			return
		}
		bundle.MergeSite(s)
	case datatypes.KindAdvisory:
		adv := value.(*datatypes.AdvisoryContext)
		if adv.Synthetic && bundle.Advisory != nil && !bundle.Advisory.Synthetic {
			return
		}
		bundle.MergeAdvisory(adv)
	}
}

func (a *Aggregator) farmID(state *datatypes.ConversationState) string {
	if state.FarmID != "" {
		return state.FarmID
	}
	return state.ThreadID
}

func (a *Aggregator) siteID(state *datatypes.ConversationState) string {
	if state.SiteID != "" {
		return state.SiteID
	}
	return a.farmID(state)
}

func (a *Aggregator) region(state *datatypes.ConversationState) string {
	if state.Context.Profile != nil && state.Context.Profile.Region != "" &&
		state.Context.Profile.Region != "unknown" {
		return state.Context.Profile.Region
	}
	return a.cfg.DefaultRegion
}

func (a *Aggregator) crop(state *datatypes.ConversationState) string {
	if state.Context.Profile != nil && state.Context.Profile.Crop != "" &&
		state.Context.Profile.Crop != "unknown" {
		return state.Context.Profile.Crop
	}
	return a.cfg.DefaultCrop
}
