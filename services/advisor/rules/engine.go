// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rules is the deterministic validation engine that grounds
// generated advice against the assembled farm context.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AgronovaAI/AgronovaLocal/services/advisor/datatypes"
	"github.com/AgronovaAI/AgronovaLocal/services/advisor/rules/enforcement"
)

// highConfidenceWeight is the floor above which a triggered rule's
// contradiction pattern participates in Validate.
const highConfidenceWeight = 0.7

// staleSiteReadingAge is when a sensor reading is old enough to warrant
// a data-quality flag.
const staleSiteReadingAge = 24 * time.Hour

// ValidatorFunc is a custom rule check. It sees the whole bundle and
// reports whether the rule triggers.
type ValidatorFunc func(bundle *datatypes.ContextBundle) bool

// Engine evaluates the immutable rule set against a context bundle.
//
// # Thread Safety
//
// Safe for concurrent use after construction; rules and validators are
// read-only.
type Engine struct {
	rules      []Rule
	validators map[string]ValidatorFunc
}

// NewEngine loads the embedded rule definitions, compiles contradiction
// patterns, and registers the built-in custom validators.
func NewEngine() (*Engine, error) {
	var file RuleFile
	if err := yaml.Unmarshal(enforcement.AgronomyRules, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded rule file: %w", err)
	}

	validators := map[string]ValidatorFunc{
		"synthetic_context":  syntheticContext,
		"stale_site_reading": staleSiteReading,
	}

	for i := range file.Rules {
		r := &file.Rules[i]
		if (r.Condition == nil) == (r.Validator == "") {
			return nil, fmt.Errorf("rule %s must set exactly one of condition or validator", r.ID)
		}
		if r.Validator != "" {
			if _, ok := validators[r.Validator]; !ok {
				return nil, fmt.Errorf("rule %s names unknown validator %q", r.ID, r.Validator)
			}
		}
		if r.Contradiction != "" {
			re, err := regexp.Compile(r.Contradiction)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the contradiction pattern for rule %s: %w", r.ID, err)
			}
			r.compiledContradiction = re
		}
	}

	return &Engine{rules: file.Rules, validators: validators}, nil
}

// Evaluate returns every triggered rule, ordered by weight descending
// with ties broken by rule ID so identical context always yields the
// identical list.
func (e *Engine) Evaluate(bundle *datatypes.ContextBundle) []MatchedRule {
	var matched []MatchedRule
	for _, r := range e.rules {
		if !e.applies(r, bundle) {
			continue
		}
		if !e.triggered(r, bundle) {
			continue
		}
		matched = append(matched, MatchedRule{Rule: r, ReviewRequired: !r.PreApproved})
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Rule.Weight != matched[j].Rule.Weight {
			return matched[i].Rule.Weight > matched[j].Rule.Weight
		}
		return matched[i].Rule.ID < matched[j].Rule.ID
	})
	return matched
}

// Validate scans candidate response text for direct contradiction of
// any triggered high-confidence rule. It emits alerts only; rewriting
// or regenerating is the caller's decision.
func (e *Engine) Validate(candidateText string, bundle *datatypes.ContextBundle) []datatypes.Alert {
	var alerts []datatypes.Alert
	for _, m := range e.Evaluate(bundle) {
		r := m.Rule
		if r.Weight < highConfidenceWeight || r.compiledContradiction == nil {
			continue
		}
		if r.compiledContradiction.MatchString(candidateText) {
			alerts = append(alerts, datatypes.Alert{
				Code:     "rule_contradiction",
				Severity: datatypes.SeverityWarning,
				Message: fmt.Sprintf("response contradicts rule %s (%s): %s",
					r.ID, r.Category, r.Recommendation),
				RuleID:         r.ID,
				ReviewRequired: m.ReviewRequired,
			})
		}
	}
	return alerts
}

// applies checks the rule's applicability filters against the bundle.
// A filter on a context part that is absent fails closed: the rule is
// skipped rather than applied blind.
func (e *Engine) applies(r Rule, bundle *datatypes.ContextBundle) bool {
	if len(r.AppliesTo.Crops) > 0 {
		if bundle.Profile == nil || !contains(r.AppliesTo.Crops, bundle.Profile.Crop) {
			return false
		}
	}
	if len(r.AppliesTo.FarmTypes) > 0 {
		if bundle.Profile == nil || !contains(r.AppliesTo.FarmTypes, bundle.Profile.FarmType) {
			return false
		}
	}
	if len(r.AppliesTo.Regions) > 0 {
		if bundle.Profile == nil || !contains(r.AppliesTo.Regions, bundle.Profile.Region) {
			return false
		}
	}
	if len(r.AppliesTo.Seasons) > 0 {
		if bundle.Advisory == nil || !contains(r.AppliesTo.Seasons, bundle.Advisory.Season) {
			return false
		}
	}
	return true
}

func (e *Engine) triggered(r Rule, bundle *datatypes.ContextBundle) bool {
	if r.Validator != "" {
		return e.validators[r.Validator](bundle)
	}
	value, ok := resolveField(r.Condition.Field, bundle)
	if !ok {
		return false
	}
	switch r.Condition.Op {
	case OpLT:
		return value < r.Condition.Value
	case OpLTE:
		return value <= r.Condition.Value
	case OpGT:
		return value > r.Condition.Value
	case OpGTE:
		return value >= r.Condition.Value
	case OpEQ:
		return value == r.Condition.Value
	}
	return false
}

// resolveField maps a "<part>.<field>" address to a numeric context
// value. Unknown addresses and absent parts report ok=false.
func resolveField(field string, bundle *datatypes.ContextBundle) (float64, bool) {
	switch field {
	case "site.soil_moisture_pct":
		if bundle.Site == nil {
			return 0, false
		}
		return bundle.Site.SoilMoisturePct, true
	case "site.soil_temperature_c":
		if bundle.Site == nil {
			return 0, false
		}
		return bundle.Site.SoilTemperatureC, true
	case "advisory.temperature_c":
		if bundle.Advisory == nil {
			return 0, false
		}
		return bundle.Advisory.TemperatureC, true
	case "advisory.humidity_pct":
		if bundle.Advisory == nil {
			return 0, false
		}
		return bundle.Advisory.HumidityPct, true
	case "advisory.wind_kph":
		if bundle.Advisory == nil {
			return 0, false
		}
		return bundle.Advisory.WindKph, true
	case "advisory.precipitation_mm":
		if bundle.Advisory == nil {
			return 0, false
		}
		return bundle.Advisory.PrecipitationMM, true
	case "profile.area_ha":
		if bundle.Profile == nil {
			return 0, false
		}
		return bundle.Profile.AreaHa, true
	}
	return 0, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// syntheticContext triggers when any present part of the bundle is a
// synthetic fallback rather than live data.
func syntheticContext(bundle *datatypes.ContextBundle) bool {
	if bundle.Profile != nil && bundle.Profile.Synthetic {
		return true
	}
	if bundle.Site != nil && bundle.Site.Synthetic {
		return true
	}
	if bundle.Advisory != nil && bundle.Advisory.Synthetic {
		return true
	}
	return false
}

// staleSiteReading triggers when the soil reading is real but old.
func staleSiteReading(bundle *datatypes.ContextBundle) bool {
	if bundle.Site == nil || bundle.Site.Synthetic {
		return false
	}
	return time.Since(bundle.Site.FetchedAt) > staleSiteReadingAge
}
