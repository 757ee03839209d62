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

import (
	"sort"
	"time"
)

// =============================================================================
// Context Kinds
// =============================================================================

// ContextKind identifies a category of situational data the router may
// request for a turn.
//
// # Description
//
// The set of kinds is closed: the aggregator switches exhaustively over
// AllContextKinds, so adding a kind is a compile-visible change rather
// than a new string flowing through the pipeline at runtime.
type ContextKind string

const (
	// KindProfile is the farmer/farm profile record.
	KindProfile ContextKind = "profile"

	// KindSite is the field site record (soil, irrigation system).
	KindSite ContextKind = "site"

	// KindAdvisory is the weather/agronomic advisory record.
	KindAdvisory ContextKind = "advisory"
)

// AllContextKinds lists every kind the aggregator knows how to fetch.
var AllContextKinds = []ContextKind{KindProfile, KindSite, KindAdvisory}

// Valid reports whether k is a known context kind.
func (k ContextKind) Valid() bool {
	switch k {
	case KindProfile, KindSite, KindAdvisory:
		return true
	}
	return false
}

// KindSet is a set of context kinds required for a turn.
type KindSet map[ContextKind]bool

// NewKindSet builds a set from the given kinds. Unknown kinds are
// dropped so a corrupted label can never widen the fetch plan.
func NewKindSet(kinds ...ContextKind) KindSet {
	s := make(KindSet, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			continue
		}
		s[k] = true
	}
	return s
}

// Has reports whether the set contains k.
func (s KindSet) Has(k ContextKind) bool {
	return s[k]
}

// Empty reports whether no kinds are required.
func (s KindSet) Empty() bool {
	return len(s) == 0
}

// Sorted returns the kinds in stable lexical order.
func (s KindSet) Sorted() []ContextKind {
	out := make([]ContextKind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// =============================================================================
// Context Records
// =============================================================================

// ProfileContext is the farm profile slice of the context bundle.
type ProfileContext struct {
	FarmID   string `json:"farm_id"`
	Crop     string `json:"crop"`
	FarmType string `json:"farm_type"`
	Region   string `json:"region"`
	AreaHa   float64 `json:"area_ha"`

	// FetchedAt is when this record was obtained from its source.
	FetchedAt time.Time `json:"fetched_at"`

	// Synthetic marks a locally computed fallback value.
	Synthetic bool `json:"synthetic,omitempty"`
}

// SiteContext is the field-site slice of the context bundle.
type SiteContext struct {
	SiteID           string  `json:"site_id"`
	SoilMoisturePct  float64 `json:"soil_moisture_pct"`
	SoilTemperatureC float64 `json:"soil_temperature_c"`
	SoilType         string  `json:"soil_type"`
	IrrigationSystem string  `json:"irrigation_system"`

	FetchedAt time.Time `json:"fetched_at"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// AdvisoryContext is the weather/advisory slice of the context bundle.
type AdvisoryContext struct {
	Region          string  `json:"region"`
	Season          string  `json:"season"`
	TemperatureC    float64 `json:"temperature_c"`
	HumidityPct     float64 `json:"humidity_pct"`
	WindKph         float64 `json:"wind_kph"`
	PrecipitationMM float64 `json:"precipitation_mm"`
	Summary         string  `json:"summary"`

	FetchedAt time.Time `json:"fetched_at"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// ContextBundle holds the assembled context for a turn, one entry per
// kind, each independently nullable and independently timestamped.
type ContextBundle struct {
	Profile  *ProfileContext  `json:"profile,omitempty"`
	Site     *SiteContext     `json:"site,omitempty"`
	Advisory *AdvisoryContext `json:"advisory,omitempty"`
}

// FetchedAt returns the fetch timestamp for the given kind, and whether
// that kind is populated at all.
func (b *ContextBundle) FetchedAt(kind ContextKind) (time.Time, bool) {
	switch kind {
	case KindProfile:
		if b.Profile != nil {
			return b.Profile.FetchedAt, true
		}
	case KindSite:
		if b.Site != nil {
			return b.Site.FetchedAt, true
		}
	case KindAdvisory:
		if b.Advisory != nil {
			return b.Advisory.FetchedAt, true
		}
	}
	return time.Time{}, false
}

// MergeProfile installs p unless an equally fresh or fresher profile is
// already present. A populated field is only ever replaced by a strictly
// newer fetch of the same kind.
func (b *ContextBundle) MergeProfile(p *ProfileContext) bool {
	if p == nil {
		return false
	}
	if b.Profile != nil && !p.FetchedAt.After(b.Profile.FetchedAt) {
		return false
	}
	b.Profile = p
	return true
}

// MergeSite installs s under the same recency rule as MergeProfile.
func (b *ContextBundle) MergeSite(s *SiteContext) bool {
	if s == nil {
		return false
	}
	if b.Site != nil && !s.FetchedAt.After(b.Site.FetchedAt) {
		return false
	}
	b.Site = s
	return true
}

// MergeAdvisory installs a under the same recency rule as MergeProfile.
func (b *ContextBundle) MergeAdvisory(a *AdvisoryContext) bool {
	if a == nil {
		return false
	}
	if b.Advisory != nil && !a.FetchedAt.After(b.Advisory.FetchedAt) {
		return false
	}
	b.Advisory = a
	return true
}
