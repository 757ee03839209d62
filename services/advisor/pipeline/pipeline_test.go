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

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/cache"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/checkpoint"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/contextagg"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/router"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rules"
	"github.com/AgronovaAI/AgronovaLocal/services/llm"
	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

// scriptedLLM answers the classification prompt with a canned decision
// and every other prompt with a canned response.
type scriptedLLM struct {
	classification string
	response       string
	generateErr    error

	mu      sync.Mutex
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if strings.Contains(prompt, "Allowed intents") {
		return s.classification, nil
	}
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return s.response, nil
}

type stubProviders struct{}

func (stubProviders) FetchProfile(_ context.Context, farmID string) (*datatypes.ProfileContext, error) {
	return &datatypes.ProfileContext{
		FarmID: farmID, Crop: "wheat", FarmType: "irrigated", Region: "ganja", AreaHa: 10,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (stubProviders) FetchSite(_ context.Context, siteID string) (*datatypes.SiteContext, error) {
	return &datatypes.SiteContext{
		SiteID: siteID, SoilMoisturePct: 18, SoilTemperatureC: 22, SoilType: "loam",
		IrrigationSystem: "drip", FetchedAt: time.Now().UTC(),
	}, nil
}

func (stubProviders) FetchAdvisory(_ context.Context, region, _ string) (*datatypes.AdvisoryContext, error) {
	return &datatypes.AdvisoryContext{
		Region: region, Season: "summer", TemperatureC: 31, HumidityPct: 40, WindKph: 9,
		Summary: "dry spell continues", FetchedAt: time.Now().UTC(),
	}, nil
}

func newTestPipeline(t *testing.T, model *scriptedLLM) *Pipeline {
	t.Helper()

	redactor, err := redaction.NewEngine()
	require.NoError(t, err)

	rulesEngine, err := rules.NewEngine()
	require.NoError(t, err)

	store, err := checkpoint.Open(checkpoint.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	agg := contextagg.New(stubProviders{}, stubProviders{}, stubProviders{},
		cache.NewLayer(cache.NewMemoryStore(), cache.DefaultTTLs()),
		contextagg.Config{
			ProfileTimeout:    100 * time.Millisecond,
			SiteTimeout:       100 * time.Millisecond,
			AdvisoryTimeout:   100 * time.Millisecond,
			AggregateDeadline: 200 * time.Millisecond,
			ReuseTTLs:         cache.DefaultTTLs(),
			DefaultRegion:     "ganja",
			DefaultCrop:       "wheat",
		})

	return New(redactor, router.New(model, router.DefaultConfig()), agg, rulesEngine, store, model)
}

func irrigationClassification() string {
	return `{"intent": "irrigation_advice", "confidence": 0.9, "reasoning": "asks about watering"}`
}

func TestProcessTurn_FullPass(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		response:       "Soil moisture is low, irrigate tomorrow morning.",
	}
	p := newTestPipeline(t, model)

	result, err := p.ProcessTurn(context.Background(), "t-1", "when should I water my wheat?", "", "")
	require.NoError(t, err)

	assert.Equal(t, "irrigation_advice", result.Intent)
	assert.Equal(t, "irrigation", result.Specialist)
	assert.Equal(t, "Soil moisture is low, irrigate tomorrow morning.", result.Response)
	assert.Empty(t, result.Alerts)

	state, err := p.LoadThread(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, state.Turns, 2)
	assert.Equal(t, datatypes.RoleAssistant, state.Turns[1].Role)
	assert.Contains(t, state.VisitedNodes, "redact")
	assert.Contains(t, state.VisitedNodes, "checkpoint")
	assert.Len(t, state.Traces, 3, "three fetches, three traces")
}

func TestProcessTurn_RedactsBeforeClassificationAndGeneration(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		response:       "ok",
	}
	p := newTestPipeline(t, model)

	_, err := p.ProcessTurn(context.Background(), "t-2",
		"call me at +994 50 123 45 67 about watering", "", "")
	require.NoError(t, err)

	model.mu.Lock()
	defer model.mu.Unlock()
	for _, prompt := range model.prompts {
		assert.NotContains(t, prompt, "994", "raw phone number must never reach the model")
	}

	state, err := p.LoadThread(context.Background(), "t-2")
	require.NoError(t, err)
	assert.Contains(t, state.RedactedInput, "[PHONE]")
	assert.Equal(t, state.Turns[0].Text, state.RedactedInput)
}

func TestProcessTurn_GenerationFailureReturnsErrGeneration(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		generateErr:    fmt.Errorf("model backend down"),
	}
	p := newTestPipeline(t, model)

	_, err := p.ProcessTurn(context.Background(), "t-3", "water?", "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)

	// The failed turn is still checkpointed.
	state, err := p.LoadThread(context.Background(), "t-3")
	require.NoError(t, err)
	assert.NotEmpty(t, state.LastError)
	require.Len(t, state.Turns, 1)
}

func TestProcessTurn_ContradictionProducesAlert(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		response:       "I suggest you skip watering this week entirely.",
	}
	p := newTestPipeline(t, model)

	result, err := p.ProcessTurn(context.Background(), "t-4", "should I irrigate?", "", "")
	require.NoError(t, err)

	require.NotEmpty(t, result.Alerts)
	assert.Equal(t, "rule_contradiction", result.Alerts[0].Code)
	assert.Equal(t, result.Response, "I suggest you skip watering this week entirely.",
		"alerts never rewrite the response")
}

func TestProcessTurn_ClarificationSkipsAggregation(t *testing.T) {
	model := &scriptedLLM{
		classification: `{"intent": "pest_management", "confidence": 0.2, "reasoning": "unclear"}`,
		response:       "Could you tell me more about what you are seeing?",
	}
	p := newTestPipeline(t, model)

	result, err := p.ProcessTurn(context.Background(), "t-5", "something is off", "", "")
	require.NoError(t, err)

	assert.Equal(t, "clarification", result.Intent)

	state, err := p.LoadThread(context.Background(), "t-5")
	require.NoError(t, err)
	assert.Empty(t, state.Traces, "no context kinds, no fetches, no traces")
}

func TestProcessTurn_SameThreadTurnsAreSerialized(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		response:       "irrigate tomorrow",
	}
	p := newTestPipeline(t, model)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := p.ProcessTurn(context.Background(), "t-6", fmt.Sprintf("turn %d", n), "", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := p.LoadThread(context.Background(), "t-6")
	require.NoError(t, err)
	assert.Len(t, state.Turns, 16, "8 user turns and 8 assistant turns, none lost")
}

func TestProcessTurn_SecondTurnReusesContext(t *testing.T) {
	model := &scriptedLLM{
		classification: irrigationClassification(),
		response:       "irrigate tomorrow",
	}
	p := newTestPipeline(t, model)

	_, err := p.ProcessTurn(context.Background(), "t-7", "water my field?", "", "")
	require.NoError(t, err)

	_, err = p.ProcessTurn(context.Background(), "t-7", "and how much water?", "", "")
	require.NoError(t, err)

	state, err := p.LoadThread(context.Background(), "t-7")
	require.NoError(t, err)
	assert.Len(t, state.Traces, 3, "the second turn reuses fresh context without new fetches")
}
