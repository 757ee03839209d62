// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/cache"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/checkpoint"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/contextagg"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/pipeline"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/router"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rules"
	"github.com/AgronovaAI/AgronovaLocal/services/llm"
	"github.com/AgronovaAI/AgronovaLocal/services/redaction"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// cannedLLM answers the classification prompt with a fixed decision and
// everything else with a fixed response.
type cannedLLM struct {
	classification string
	response       string
	generateErr    error
}

func (s *cannedLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	if strings.Contains(prompt, "Allowed intents") {
		return s.classification, nil
	}
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return s.response, nil
}

type cannedProviders struct{}

func (cannedProviders) FetchProfile(_ context.Context, farmID string) (*datatypes.ProfileContext, error) {
	return &datatypes.ProfileContext{
		FarmID: farmID, Crop: "wheat", FarmType: "irrigated", Region: "ganja", AreaHa: 10,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (cannedProviders) FetchSite(_ context.Context, siteID string) (*datatypes.SiteContext, error) {
	return &datatypes.SiteContext{
		SiteID: siteID, SoilMoisturePct: 45, SoilTemperatureC: 20, SoilType: "loam",
		IrrigationSystem: "drip", FetchedAt: time.Now().UTC(),
	}, nil
}

func (cannedProviders) FetchAdvisory(_ context.Context, region, _ string) (*datatypes.AdvisoryContext, error) {
	return &datatypes.AdvisoryContext{
		Region: region, Season: "summer", TemperatureC: 28, HumidityPct: 40, WindKph: 8,
		Summary: "mild week ahead", FetchedAt: time.Now().UTC(),
	}, nil
}

func newTestPipeline(t *testing.T, model *cannedLLM) *pipeline.Pipeline {
	t.Helper()

	redactor, err := redaction.NewEngine()
	require.NoError(t, err)

	rulesEngine, err := rules.NewEngine()
	require.NoError(t, err)

	store, err := checkpoint.Open(checkpoint.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	agg := contextagg.New(cannedProviders{}, cannedProviders{}, cannedProviders{},
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

	return pipeline.New(redactor, router.New(model, router.DefaultConfig()),
		agg, rulesEngine, store, model)
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HealthCheck Tests
// =============================================================================

func TestHealthCheck_ReturnsOK(t *testing.T) {
	r := gin.New()
	r.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "ok", response["status"])
}

// =============================================================================
// HandleTurn Tests
// =============================================================================

func TestHandleTurn_FullTurn(t *testing.T) {
	model := &cannedLLM{
		classification: `{"intent": "irrigation_advice", "confidence": 0.9, "reasoning": "asks about watering"}`,
		response:       "No irrigation needed this week.",
	}
	r := gin.New()
	r.POST("/v1/turn", HandleTurn(newTestPipeline(t, model)))

	w := postJSON(r, "/v1/turn", `{"thread_id": "t-1", "message": "should I water my wheat?"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "t-1", resp.ThreadID)
	assert.Equal(t, "No irrigation needed this week.", resp.Response)
	assert.Equal(t, "irrigation_advice", resp.Intent)
	assert.Equal(t, "irrigation", resp.Specialist)
	assert.Empty(t, resp.Error)
}

func TestHandleTurn_AssignsThreadID(t *testing.T) {
	model := &cannedLLM{
		classification: `{"intent": "greeting", "confidence": 0.95, "reasoning": "greeting"}`,
		response:       "Hello! How can I help with your farm today?",
	}
	r := gin.New()
	r.POST("/v1/turn", HandleTurn(newTestPipeline(t, model)))

	w := postJSON(r, "/v1/turn", `{"message": "salam"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ThreadID)
}

func TestHandleTurn_MissingMessage(t *testing.T) {
	r := gin.New()
	r.POST("/v1/turn", HandleTurn(nil))

	w := postJSON(r, "/v1/turn", `{"thread_id": "t-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTurn_GenerationFailureIsStillOK(t *testing.T) {
	model := &cannedLLM{
		classification: `{"intent": "irrigation_advice", "confidence": 0.9, "reasoning": "asks about watering"}`,
		generateErr:    errors.New("model unavailable"),
	}
	r := gin.New()
	r.POST("/v1/turn", HandleTurn(newTestPipeline(t, model)))

	w := postJSON(r, "/v1/turn", `{"thread_id": "t-err", "message": "should I water?"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "generation_failed", resp.Error)
	assert.Equal(t, retryMessage, resp.Response)
	assert.NotContains(t, resp.Response, "model unavailable")
}

// =============================================================================
// HandleScan Tests
// =============================================================================

func TestHandleScan_DetectsAndRedacts(t *testing.T) {
	engine, err := redaction.NewEngine()
	require.NoError(t, err)

	r := gin.New()
	r.POST("/v1/redaction/scan", HandleScan(engine))

	w := postJSON(r, "/v1/redaction/scan", `{"text": "call me at +994 50 123 45 67"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Detections)
	assert.Contains(t, resp.Redacted, "[PHONE]")
	assert.NotContains(t, resp.Redacted, "123 45 67")
}

func TestHandleScan_MissingText(t *testing.T) {
	engine, err := redaction.NewEngine()
	require.NoError(t, err)

	r := gin.New()
	r.POST("/v1/redaction/scan", HandleScan(engine))

	w := postJSON(r, "/v1/redaction/scan", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// GetThread Tests
// =============================================================================

func TestGetThread_NotFound(t *testing.T) {
	store, err := checkpoint.Open(checkpoint.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p := pipeline.New(nil, nil, nil, nil, store, nil)

	r := gin.New()
	r.GET("/v1/threads/:id", GetThread(p))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/threads/no-such-thread", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetThread_ReturnsStoredState(t *testing.T) {
	store, err := checkpoint.Open(checkpoint.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	state := datatypes.NewConversationState("t-9")
	state.AppendTurn(datatypes.RoleUser, "is it too windy to spray?")
	require.NoError(t, store.Save(context.Background(), state))

	p := pipeline.New(nil, nil, nil, nil, store, nil)

	r := gin.New()
	r.GET("/v1/threads/:id", GetThread(p))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/threads/t-9", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var loaded datatypes.ConversationState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loaded))
	assert.Equal(t, "t-9", loaded.ThreadID)
	require.Len(t, loaded.Turns, 1)
	assert.Equal(t, "is it too windy to spray?", loaded.Turns[0].Text)
}
