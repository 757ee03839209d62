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
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// RuleFile is the top-level structure of the embedded rule definitions.
type RuleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Applicability filters a rule to a subset of farms. An empty list
// matches everything for that dimension.
type Applicability struct {
	Crops     []string `yaml:"crops"`
	Seasons   []string `yaml:"seasons"`
	FarmTypes []string `yaml:"farm_types"`
	Regions   []string `yaml:"regions"`
}

// Op is a comparison operator in a threshold condition.
type Op string

const (
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpEQ  Op = "eq"
)

func (o *Op) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Op(s)
	switch incoming {
	case OpLT, OpLTE, OpGT, OpGTE, OpEQ:
		*o = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Op: %q", incoming)
	}
}

// Condition is a declarative numeric threshold check against one
// context field, addressed as "<part>.<field>", e.g.
// "site.soil_moisture_pct" or "advisory.temperature_c".
type Condition struct {
	Field string  `yaml:"field"`
	Op    Op      `yaml:"op"`
	Value float64 `yaml:"value"`
}

// Rule is one immutable validation rule loaded at startup.
//
// Exactly one of Condition or Validator is set. Validator names a
// registered custom check for anything a threshold cannot express.
type Rule struct {
	ID             string        `yaml:"id"`
	Category       string        `yaml:"category"`
	AppliesTo      Applicability `yaml:"applies_to"`
	Condition      *Condition    `yaml:"condition"`
	Validator      string        `yaml:"validator"`
	Weight         float64       `yaml:"weight"`
	PreApproved    bool          `yaml:"pre_approved"`
	Recommendation string        `yaml:"recommendation"`
	Contradiction  string        `yaml:"contradiction"`

	compiledContradiction *regexp.Regexp `yaml:"-"`
}

// MatchedRule is one triggered rule in an Evaluate result.
type MatchedRule struct {
	Rule Rule

	// ReviewRequired marks rules with pre_approved=false so the human
	// review gate can intercept them before release.
	ReviewRequired bool
}
