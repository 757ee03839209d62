// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package contextagg

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/cache"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

type fakeProviders struct {
	profileDelay  time.Duration
	profileErr    error
	siteDelay     time.Duration
	siteErr       error
	advisoryDelay time.Duration
	advisoryErr   error

	profileCalls  int
	siteCalls     int
	advisoryCalls int
}

func (f *fakeProviders) FetchProfile(ctx context.Context, farmID string) (*datatypes.ProfileContext, error) {
	f.profileCalls++
	if err := wait(ctx, f.profileDelay); err != nil {
		return nil, err
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &datatypes.ProfileContext{
		FarmID: farmID, Crop: "wheat", FarmType: "irrigated", Region: "ganja",
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeProviders) FetchSite(ctx context.Context, siteID string) (*datatypes.SiteContext, error) {
	f.siteCalls++
	if err := wait(ctx, f.siteDelay); err != nil {
		return nil, err
	}
	if f.siteErr != nil {
		return nil, f.siteErr
	}
	return &datatypes.SiteContext{
		SiteID: siteID, SoilMoisturePct: 22, SoilType: "loam",
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeProviders) FetchAdvisory(ctx context.Context, region, crop string) (*datatypes.AdvisoryContext, error) {
	f.advisoryCalls++
	if err := wait(ctx, f.advisoryDelay); err != nil {
		return nil, err
	}
	if f.advisoryErr != nil {
		return nil, f.advisoryErr
	}
	return &datatypes.AdvisoryContext{
		Region: region, Season: "summer", TemperatureC: 30, Summary: "dry spell",
		FetchedAt: time.Now().UTC(),
	}, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func testConfig() Config {
	return Config{
		ProfileTimeout:    50 * time.Millisecond,
		SiteTimeout:       50 * time.Millisecond,
		AdvisoryTimeout:   100 * time.Millisecond,
		AggregateDeadline: 150 * time.Millisecond,
		ReuseTTLs:         cache.DefaultTTLs(),
		DefaultRegion:     "ganja",
		DefaultCrop:       "wheat",
	}
}

func allKinds() datatypes.RoutingDecision {
	return datatypes.RoutingDecision{
		RequiredKinds: datatypes.NewKindSet(datatypes.KindProfile, datatypes.KindSite, datatypes.KindAdvisory),
	}
}

func TestAggregate_AllProvidersHealthy(t *testing.T) {
	fakes := &fakeProviders{}
	agg := New(fakes, fakes, fakes, cache.NewLayer(cache.NewMemoryStore(), cache.DefaultTTLs()), testConfig())
	state := datatypes.NewConversationState("t-1")

	bundle, traces := agg.Aggregate(context.Background(), allKinds(), state)

	require.NotNil(t, bundle.Profile)
	require.NotNil(t, bundle.Site)
	require.NotNil(t, bundle.Advisory)
	assert.False(t, bundle.Profile.Synthetic)
	assert.Len(t, traces, 3, "one trace per network fetch")
	for _, tr := range traces {
		assert.True(t, tr.Success)
		assert.NotEmpty(t, tr.ID)
	}
}

func TestAggregate_EmptyKindSetFetchesNothing(t *testing.T) {
	fakes := &fakeProviders{}
	agg := New(fakes, fakes, fakes, nil, testConfig())
	state := datatypes.NewConversationState("t-2")

	bundle, traces := agg.Aggregate(context.Background(), datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet()}, state)

	assert.Nil(t, bundle.Profile)
	assert.Empty(t, traces)
	assert.Zero(t, fakes.profileCalls)
	assert.Zero(t, fakes.siteCalls)
	assert.Zero(t, fakes.advisoryCalls)
}

func TestAggregate_UnrequiredKindNeverFetched(t *testing.T) {
	fakes := &fakeProviders{}
	agg := New(fakes, fakes, fakes, nil, testConfig())
	state := datatypes.NewConversationState("t-3")

	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindAdvisory)}
	bundle, traces := agg.Aggregate(context.Background(), decision, state)

	assert.Nil(t, bundle.Profile)
	assert.Nil(t, bundle.Site)
	require.NotNil(t, bundle.Advisory)
	assert.Len(t, traces, 1)
	assert.Zero(t, fakes.profileCalls)
	assert.Zero(t, fakes.siteCalls)
}

func TestAggregate_TimeoutYieldsSyntheticAndOneFailedTrace(t *testing.T) {
	fakes := &fakeProviders{advisoryDelay: 500 * time.Millisecond}
	agg := New(fakes, fakes, fakes, nil, testConfig())
	state := datatypes.NewConversationState("t-4")

	started := time.Now()
	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindAdvisory)}
	bundle, traces := agg.Aggregate(context.Background(), decision, state)
	elapsed := time.Since(started)

	require.NotNil(t, bundle.Advisory)
	assert.True(t, bundle.Advisory.Synthetic)
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Success)
	assert.NotEmpty(t, traces[0].Error)
	assert.Less(t, elapsed, 300*time.Millisecond, "must return well before the provider finishes")
}

func TestAggregate_ProviderErrorYieldsSynthetic(t *testing.T) {
	fakes := &fakeProviders{siteErr: fmt.Errorf("sensor gateway down")}
	agg := New(fakes, fakes, fakes, nil, testConfig())
	state := datatypes.NewConversationState("t-5")

	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindSite)}
	bundle, traces := agg.Aggregate(context.Background(), decision, state)

	require.NotNil(t, bundle.Site)
	assert.True(t, bundle.Site.Synthetic)
	require.Len(t, traces, 1)
	assert.False(t, traces[0].Success)
	assert.Contains(t, traces[0].Error, "sensor gateway down")
}

func TestAggregate_CacheHitSkipsFetchAndTrace(t *testing.T) {
	fakes := &fakeProviders{}
	layer := cache.NewLayer(cache.NewMemoryStore(), cache.DefaultTTLs())
	agg := New(fakes, fakes, fakes, layer, testConfig())

	state := datatypes.NewConversationState("t-6")
	cached := datatypes.ProfileContext{FarmID: "t-6", Crop: "barley", Region: "ganja", FetchedAt: time.Now().UTC()}
	require.NoError(t, layer.Set(context.Background(), datatypes.KindProfile, "t-6", cached))

	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindProfile)}
	bundle, traces := agg.Aggregate(context.Background(), decision, state)

	require.NotNil(t, bundle.Profile)
	assert.Equal(t, "barley", bundle.Profile.Crop)
	assert.Empty(t, traces, "cache hits must not create traces")
	assert.Zero(t, fakes.profileCalls)
}

func TestAggregate_SameTurnReuseSkipsEverything(t *testing.T) {
	fakes := &fakeProviders{}
	agg := New(fakes, fakes, fakes, nil, testConfig())

	state := datatypes.NewConversationState("t-7")
	state.Context.Profile = &datatypes.ProfileContext{FarmID: "t-7", Crop: "wheat", FetchedAt: time.Now().UTC()}

	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindProfile)}
	_, traces := agg.Aggregate(context.Background(), decision, state)

	assert.Empty(t, traces)
	assert.Zero(t, fakes.profileCalls)
}

func TestAggregate_SyntheticNeverDisplacesRealValue(t *testing.T) {
	fakes := &fakeProviders{siteErr: fmt.Errorf("down")}
	agg := New(fakes, fakes, fakes, nil, testConfig())

	state := datatypes.NewConversationState("t-8")
	stale := time.Now().UTC().Add(-time.Hour)
	state.Context.Site = &datatypes.SiteContext{SiteID: "t-8", SoilMoisturePct: 33, FetchedAt: stale}

	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindSite)}
	bundle, traces := agg.Aggregate(context.Background(), decision, state)

	require.Len(t, traces, 1, "the failed fetch still records its trace")
	require.NotNil(t, bundle.Site)
	assert.False(t, bundle.Site.Synthetic)
	assert.InDelta(t, 33, bundle.Site.SoilMoisturePct, 1e-9)
}

func TestAggregate_SuccessfulFetchPopulatesCache(t *testing.T) {
	fakes := &fakeProviders{}
	layer := cache.NewLayer(cache.NewMemoryStore(), cache.DefaultTTLs())
	agg := New(fakes, fakes, fakes, layer, testConfig())

	state := datatypes.NewConversationState("t-9")
	decision := datatypes.RoutingDecision{RequiredKinds: datatypes.NewKindSet(datatypes.KindProfile)}
	agg.Aggregate(context.Background(), decision, state)

	var cached datatypes.ProfileContext
	require.NoError(t, layer.Get(context.Background(), datatypes.KindProfile, "t-9", &cached))
	assert.Equal(t, "wheat", cached.Crop)
}

func TestAggregate_StaleFetchDoesNotOverwriteNewerValue(t *testing.T) {
	bundle := &datatypes.ContextBundle{}
	newer := time.Now().UTC()
	bundle.MergeAdvisory(&datatypes.AdvisoryContext{Region: "ganja", Summary: "new", FetchedAt: newer})

	replaced := bundle.MergeAdvisory(&datatypes.AdvisoryContext{Region: "ganja", Summary: "old", FetchedAt: newer.Add(-time.Minute)})

	assert.False(t, replaced)
	assert.Equal(t, "new", bundle.Advisory.Summary)
}
