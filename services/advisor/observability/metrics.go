// Copyright (C) 2026 Agronova AI (dev@agronova.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the advisor.
//
// # Description
//
// Metrics cover the turn pipeline end to end:
//   - Turn counters by final status
//   - Per-stage latency histograms
//   - Context fetch outcomes by kind
//   - Redaction hit counters by category
//   - Rate limiting and degradation counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "agronova"

// Subsystem for advisor pipeline metrics
const advisorSubsystem = "advisor"

// AdvisorMetrics holds all Prometheus metrics for the turn pipeline.
//
// Initialize once at startup via InitMetrics(); the increment helpers
// below are no-ops before that, so library code and tests never need a
// registry.
type AdvisorMetrics struct {
	// TurnsTotal counts processed turns by final status.
	// Labels: status (ok, degraded, generation_failed, rejected)
	TurnsTotal *prometheus.CounterVec

	// StageDurationSeconds measures per-stage pipeline latency.
	// Labels: stage (redact, route, aggregate, generate, validate, checkpoint)
	StageDurationSeconds *prometheus.HistogramVec

	// ContextFetchesTotal counts provider fetch outcomes.
	// Labels: kind (profile, site, advisory), outcome (hit, reuse, fetched, synthetic)
	ContextFetchesTotal *prometheus.CounterVec

	// RedactionsTotal counts redacted spans by category.
	RedactionsTotal *prometheus.CounterVec

	// RateLimitedTotal counts requests rejected by the rate guard.
	RateLimitedTotal prometheus.Counter

	// DegradedTotal counts degradations by component.
	// Labels: component (checkpoint, cache, rateguard, classifier)
	DegradedTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of AdvisorMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *AdvisorMetrics

// InitMetrics initializes and registers the default metrics instance.
// Call once at startup; calling twice panics on duplicate registration.
func InitMetrics() *AdvisorMetrics {
	DefaultMetrics = &AdvisorMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "turns_total",
				Help:      "Total processed conversation turns by final status",
			},
			[]string{"status"},
		),

		StageDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "stage_duration_seconds",
				Help:      "Pipeline stage latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		ContextFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "context_fetches_total",
				Help:      "Context acquisition outcomes by kind",
			},
			[]string{"kind", "outcome"},
		),

		RedactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "redactions_total",
				Help:      "Redacted spans by pattern category",
			},
			[]string{"category"},
		),

		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate guard",
			},
		),

		DegradedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: advisorSubsystem,
				Name:      "degraded_total",
				Help:      "Degraded operations by component",
			},
			[]string{"component"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Nil-safe increment helpers
// =============================================================================

// CountTurn records a finished turn with its final status.
func CountTurn(status string) {
	if DefaultMetrics != nil {
		DefaultMetrics.TurnsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveStage records one pipeline stage duration.
func ObserveStage(stage string, d time.Duration) {
	if DefaultMetrics != nil {
		DefaultMetrics.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// CountContextFetch records one context acquisition outcome.
func CountContextFetch(kind, outcome string) {
	if DefaultMetrics != nil {
		DefaultMetrics.ContextFetchesTotal.WithLabelValues(kind, outcome).Inc()
	}
}

// CountRedaction records one redacted span.
func CountRedaction(category string) {
	if DefaultMetrics != nil {
		DefaultMetrics.RedactionsTotal.WithLabelValues(category).Inc()
	}
}

// CountRateLimited records one rejected request.
func CountRateLimited() {
	if DefaultMetrics != nil {
		DefaultMetrics.RateLimitedTotal.Inc()
	}
}

// CountDegraded records one degraded operation for a component.
func CountDegraded(component string) {
	if DefaultMetrics != nil {
		DefaultMetrics.DegradedTotal.WithLabelValues(component).Inc()
	}
}
