// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine()
	require.NoError(t, err)
	require.NotEmpty(t, eng.rules)
	return eng
}

func drySummerBundle() *datatypes.ContextBundle {
	now := time.Now().UTC()
	return &datatypes.ContextBundle{
		Profile: &datatypes.ProfileContext{
			FarmID: "farm-1", Crop: "wheat", FarmType: "irrigated", Region: "ganja", FetchedAt: now,
		},
		Site: &datatypes.SiteContext{
			SiteID: "site-1", SoilMoisturePct: 18, SoilTemperatureC: 24, FetchedAt: now,
		},
		Advisory: &datatypes.AdvisoryContext{
			Region: "ganja", Season: "summer", TemperatureC: 30, HumidityPct: 40, WindKph: 8, FetchedAt: now,
		},
	}
}

func TestEvaluate_LowMoistureTriggersIrrigation(t *testing.T) {
	eng := newTestEngine(t)

	matched := eng.Evaluate(drySummerBundle())

	require.NotEmpty(t, matched)
	assert.Equal(t, "IRR-001", matched[0].Rule.ID)
	assert.False(t, matched[0].ReviewRequired)
}

func TestEvaluate_OrderIsWeightDescThenID(t *testing.T) {
	eng := newTestEngine(t)

	bundle := drySummerBundle()
	bundle.Advisory.TemperatureC = 38 // also triggers the heat rule
	bundle.Advisory.WindKph = 25     // and the spraying rule

	matched := eng.Evaluate(bundle)
	require.GreaterOrEqual(t, len(matched), 3)

	for i := 1; i < len(matched); i++ {
		prev, cur := matched[i-1].Rule, matched[i].Rule
		if prev.Weight == cur.Weight {
			assert.Less(t, prev.ID, cur.ID)
		} else {
			assert.Greater(t, prev.Weight, cur.Weight)
		}
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	eng := newTestEngine(t)
	bundle := drySummerBundle()

	first := eng.Evaluate(bundle)
	second := eng.Evaluate(bundle)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Rule.ID, second[i].Rule.ID)
	}
}

func TestEvaluate_SeasonFilterSkipsRule(t *testing.T) {
	eng := newTestEngine(t)

	bundle := drySummerBundle()
	bundle.Advisory.Season = "winter"
	bundle.Advisory.TemperatureC = 38

	for _, m := range eng.Evaluate(bundle) {
		assert.NotEqual(t, "WTH-001", m.Rule.ID, "summer-only heat rule must not trigger in winter")
		assert.NotEqual(t, "IRR-001", m.Rule.ID, "irrigation rule excludes winter")
	}
}

func TestEvaluate_MissingPartFailsClosed(t *testing.T) {
	eng := newTestEngine(t)

	bundle := &datatypes.ContextBundle{} // nothing fetched

	matched := eng.Evaluate(bundle)
	assert.Empty(t, matched)
}

func TestEvaluate_PreApprovedFalseIsFlagged(t *testing.T) {
	eng := newTestEngine(t)

	bundle := drySummerBundle()
	bundle.Advisory.PrecipitationMM = 30

	var found bool
	for _, m := range eng.Evaluate(bundle) {
		if m.Rule.ID == "FRT-001" {
			found = true
			assert.True(t, m.ReviewRequired)
		}
	}
	assert.True(t, found)
}

func TestEvaluate_SyntheticContextValidator(t *testing.T) {
	eng := newTestEngine(t)

	bundle := drySummerBundle()
	bundle.Site.Synthetic = true

	var found bool
	for _, m := range eng.Evaluate(bundle) {
		if m.Rule.ID == "CTX-001" {
			found = true
			assert.True(t, m.ReviewRequired)
		}
	}
	assert.True(t, found)
}

func TestEvaluate_StaleSiteReadingValidator(t *testing.T) {
	eng := newTestEngine(t)

	bundle := drySummerBundle()
	bundle.Site.FetchedAt = time.Now().UTC().Add(-48 * time.Hour)

	var found bool
	for _, m := range eng.Evaluate(bundle) {
		if m.Rule.ID == "CTX-002" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_ContradictionProducesAlert(t *testing.T) {
	eng := newTestEngine(t)

	candidate := "Given the dry spell you should skip watering for now and wait a week."
	alerts := eng.Validate(candidate, drySummerBundle())

	require.NotEmpty(t, alerts)
	assert.Equal(t, "rule_contradiction", alerts[0].Code)
	assert.Equal(t, "IRR-001", alerts[0].RuleID)
	assert.Equal(t, datatypes.SeverityWarning, alerts[0].Severity)
}

func TestValidate_ConsistentAdviceProducesNoAlert(t *testing.T) {
	eng := newTestEngine(t)

	candidate := "Soil moisture is low, irrigate within the next day, ideally in the evening."
	alerts := eng.Validate(candidate, drySummerBundle())

	assert.Empty(t, alerts)
}

func TestValidate_NeverRewritesText(t *testing.T) {
	eng := newTestEngine(t)

	candidate := "You should stop irrigating entirely."
	alerts := eng.Validate(candidate, drySummerBundle())

	require.NotEmpty(t, alerts)
	for _, a := range alerts {
		assert.NotEmpty(t, a.Message)
	}
}
