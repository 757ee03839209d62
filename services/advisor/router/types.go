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
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// Intent labels the classifier is constrained to. Anything outside this
// vocabulary is treated as a parse failure and routed to clarification.
const (
	IntentIrrigation    = "irrigation_advice"
	IntentPest          = "pest_management"
	IntentFertilization = "fertilization_advice"
	IntentWeather       = "weather_query"
	IntentCropPlanning  = "crop_planning"
	IntentGreeting      = "greeting"
	IntentClarification = "clarification"
)

// DefaultSpecialist handles greetings, clarification turns, and every
// fallback path.
const DefaultSpecialist = "conversational"

// route binds an intent to its specialist and the context kinds that
// specialist needs. The table is static so routing stays deterministic
// once the classifier has spoken.
type route struct {
	Specialist string
	Kinds      []datatypes.ContextKind
}

var intentRoutes = map[string]route{
	IntentIrrigation: {
		Specialist: "irrigation",
		Kinds:      []datatypes.ContextKind{datatypes.KindProfile, datatypes.KindSite, datatypes.KindAdvisory},
	},
	IntentPest: {
		Specialist: "pest",
		Kinds:      []datatypes.ContextKind{datatypes.KindProfile, datatypes.KindAdvisory},
	},
	IntentFertilization: {
		Specialist: "fertilization",
		Kinds:      []datatypes.ContextKind{datatypes.KindProfile, datatypes.KindSite},
	},
	IntentWeather: {
		Specialist: "weather",
		Kinds:      []datatypes.ContextKind{datatypes.KindAdvisory},
	},
	IntentCropPlanning: {
		Specialist: "planning",
		Kinds:      []datatypes.ContextKind{datatypes.KindProfile, datatypes.KindAdvisory},
	},
	IntentGreeting: {
		Specialist: DefaultSpecialist,
		Kinds:      nil,
	},
	IntentClarification: {
		Specialist: DefaultSpecialist,
		Kinds:      nil,
	},
}

// KnownIntent reports whether the classifier returned a label from the
// allowed vocabulary.
func KnownIntent(intent string) bool {
	_, ok := intentRoutes[intent]
	return ok
}

// Config holds the tunables for one Router instance.
type Config struct {
	// ConfidenceThreshold is the minimum classifier confidence required
	// to act on an intent. Below it the turn is routed to clarification.
	ConfidenceThreshold float64

	// ClassifyTimeout bounds the single external classification call.
	ClassifyTimeout time.Duration

	MaxTokens   int
	Temperature float32

	// HistoryTurns is how many recent turns are included in the
	// classification prompt for disambiguation.
	HistoryTurns int
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.6,
		ClassifyTimeout:     10 * time.Second,
		MaxTokens:           256,
		Temperature:         0.0,
		HistoryTurns:        6,
	}
}
