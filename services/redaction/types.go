// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package redaction

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// RedactionPatternFile is the top-level structure of the embedded
// pattern definitions.
type RedactionPatternFile struct {
	Categories []Category `yaml:"categories"`
}

// Category groups patterns that share a placeholder token.
//
// Categories are applied in descending priority order so that a more
// specific matcher (full name, international phone) always runs before
// a more generic one (bare surname, bare digit sequence) and a substring
// is never double-replaced.
type Category struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Placeholder string    `yaml:"placeholder"`
	Priority    int       `yaml:"priority"`
	Patterns    []Pattern `yaml:"patterns"`
}

type Pattern struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

// Detection records one redacted span for audit. Only the category and
// span are kept; the matched substring itself is never retained.
//
// Start/End index into the text as it stood when the category's matcher
// ran, so spans from later categories refer to partially cleaned text.
type Detection struct {
	Category   string          `json:"category"`
	PatternId  string          `json:"pattern_id"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
	Confidence ConfidenceLevel `json:"confidence"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

// CompileRegexes compiles every pattern in the file.
func (f *RedactionPatternFile) CompileRegexes() error {
	for i := range f.Categories {
		for j := range f.Categories[i].Patterns {
			p := &f.Categories[i].Patterns[j]
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", p.Regex, err)
			}
			p.compiledPattern = re
		}
	}
	return nil
}

// SortByPriority orders categories from highest to lowest priority.
func (f *RedactionPatternFile) SortByPriority() {
	sort.SliceStable(f.Categories, func(i, j int) bool {
		return f.Categories[i].Priority > f.Categories[j].Priority
	})
}
