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
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/AgronovaAI/AgronovaLocal/services/redaction/enforcement"
)

// Engine is the entry point for sensitive-data redaction. It holds the
// compiled pattern categories and applies them in priority order.
//
// # Thread Safety
//
// Safe for concurrent use after construction; all state is read-only.
type Engine struct {
	Categories []Category
}

// NewEngine initializes a redaction engine from the pattern definitions
// embedded in the binary.
//
// It performs the following operations:
// 1. Unmarshals the embedded YAML data.
// 2. Compiles all regex patterns.
// 3. Sorts categories by priority, most specific first.
//
// Returns an error if the embedded YAML is malformed or contains an
// invalid regex.
func NewEngine() (*Engine, error) {
	var file RedactionPatternFile
	if err := yaml.Unmarshal(enforcement.RedactionPatterns, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded pattern file: %w", err)
	}

	if err := file.CompileRegexes(); err != nil {
		return nil, fmt.Errorf("failed to compile a regex: %w", err)
	}

	file.SortByPriority()

	return &Engine{Categories: file.Categories}, nil
}

// Redact replaces every recognized sensitive substring in text with the
// matching category's placeholder token.
//
// # Description
//
// Categories run in descending priority order, each rewriting the text
// before the next runs, so a substring replaced by a specific matcher
// is never re-replaced by a more generic one. The returned detections
// carry category and span only; the matched substrings are not kept.
//
// Redaction fails open: if pattern application panics, the original
// text is returned unmodified with no detections, and the event is
// logged as a non-fatal warning.
func (e *Engine) Redact(text string) (cleaned string, detections []Detection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("redaction failed open, returning input unmodified", "panic", r)
			cleaned = text
			detections = nil
		}
	}()

	cleaned = text
	for _, cat := range e.Categories {
		for _, p := range cat.Patterns {
			matches := p.compiledPattern.FindAllStringIndex(cleaned, -1)
			if len(matches) == 0 {
				continue
			}
			for _, m := range matches {
				detections = append(detections, Detection{
					Category:   cat.Name,
					PatternId:  p.Id,
					Start:      m[0],
					End:        m[1],
					Confidence: p.Confidence,
				})
			}
			cleaned = p.compiledPattern.ReplaceAllLiteralString(cleaned, cat.Placeholder)
		}
	}
	return cleaned, detections
}

// Scan audits text without rewriting it, returning every detection.
// Intended for the transcript-audit endpoint; Redact is the pipeline path.
func (e *Engine) Scan(text string) []Detection {
	var detections []Detection
	for _, cat := range e.Categories {
		for _, p := range cat.Patterns {
			for _, m := range p.compiledPattern.FindAllStringIndex(text, -1) {
				detections = append(detections, Detection{
					Category:   cat.Name,
					PatternId:  p.Id,
					Start:      m[0],
					End:        m[1],
					Confidence: p.Confidence,
				})
			}
		}
	}
	return detections
}
