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
	"time"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
)

// Synthetic fallbacks stand in when a provider fails or times out.
// Values are deliberately conservative regional climatology, never
// presented as measurements; every record carries Synthetic=true so
// the rules engine and the prompt builder can hedge accordingly.

type regionClimate struct {
	TemperatureC    float64
	HumidityPct     float64
	WindKph         float64
	PrecipitationMM float64
	Summary         string
}

// seasonClimate holds fallback climatology per season for regions we
// have no table entry for.
var seasonClimate = map[string]regionClimate{
	"spring": {TemperatureC: 16, HumidityPct: 60, WindKph: 12, PrecipitationMM: 2, Summary: "mild spring conditions assumed"},
	"summer": {TemperatureC: 29, HumidityPct: 45, WindKph: 10, PrecipitationMM: 0, Summary: "warm dry summer conditions assumed"},
	"autumn": {TemperatureC: 15, HumidityPct: 65, WindKph: 14, PrecipitationMM: 3, Summary: "cool autumn conditions assumed"},
	"winter": {TemperatureC: 4, HumidityPct: 75, WindKph: 16, PrecipitationMM: 2, Summary: "cold winter conditions assumed"},
}

// regionClimates overrides the seasonal table for regions with known
// distinct climate.
var regionClimates = map[string]map[string]regionClimate{
	"ganja": {
		"summer": {TemperatureC: 32, HumidityPct: 35, WindKph: 8, PrecipitationMM: 0, Summary: "hot dry lowland summer assumed"},
	},
	"lankaran": {
		"summer": {TemperatureC: 27, HumidityPct: 70, WindKph: 12, PrecipitationMM: 4, Summary: "humid subtropical summer assumed"},
	},
}

// currentSeason maps a timestamp to a northern-hemisphere season label.
func currentSeason(now time.Time) string {
	switch now.Month() {
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	case time.September, time.October, time.November:
		return "autumn"
	default:
		return "winter"
	}
}

// SyntheticProfile returns a placeholder profile for a farm we could
// not load.
func SyntheticProfile(farmID string, now time.Time) *datatypes.ProfileContext {
	return &datatypes.ProfileContext{
		FarmID:    farmID,
		Crop:      "unknown",
		FarmType:  "unknown",
		Region:    "unknown",
		FetchedAt: now,
		Synthetic: true,
	}
}

// SyntheticSite returns placeholder soil readings. Moisture sits in the
// no-action band so threshold rules neither trigger irrigation nor
// withholding off invented numbers.
func SyntheticSite(siteID string, now time.Time) *datatypes.SiteContext {
	return &datatypes.SiteContext{
		SiteID:           siteID,
		SoilMoisturePct:  50,
		SoilTemperatureC: 18,
		SoilType:         "unknown",
		IrrigationSystem: "unknown",
		FetchedAt:        now,
		Synthetic:        true,
	}
}

// SyntheticAdvisory returns seasonal climatology for the region.
func SyntheticAdvisory(region string, now time.Time) *datatypes.AdvisoryContext {
	season := currentSeason(now)
	climate, ok := seasonClimate[season]
	if regional, found := regionClimates[region]; found {
		if c, foundSeason := regional[season]; foundSeason {
			climate, ok = c, true
		}
	}
	if !ok {
		climate = regionClimate{TemperatureC: 18, HumidityPct: 55, WindKph: 10, Summary: "typical conditions assumed"}
	}
	return &datatypes.AdvisoryContext{
		Region:          region,
		Season:          season,
		TemperatureC:    climate.TemperatureC,
		HumidityPct:     climate.HumidityPct,
		WindKph:         climate.WindKph,
		PrecipitationMM: climate.PrecipitationMM,
		Summary:         climate.Summary,
		FetchedAt:       now,
		Synthetic:       true,
	}
}
