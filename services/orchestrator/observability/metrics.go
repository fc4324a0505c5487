// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for the chat pipeline and the
// open-data gateway. Metrics include:
//   - Chat request counters (by mode and status)
//   - Gateway fetch outcomes (by source and outcome)
//   - LLM enhancement counters
//   - Pipeline latency histograms
//   - Active session gauge
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Every metric is registered
// against the Registerer passed to NewMetrics, so tests use isolated
// registries.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Methods on a nil *Metrics are no-ops.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianProteo/services/opendata"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "proteo"

const (
	chatSubsystem     = "chat"
	opendataSubsystem = "opendata"
	llmSubsystem      = "llm"
)

// Metrics holds all Prometheus metrics of the service.
//
// # Fields
//
//   - ChatRequestsTotal: Chat requests by mode and status
//   - PipelineDurationSeconds: Time from user message to assistant message
//   - ActiveSessions: Sessions currently held by the orchestrator
//   - FetchesTotal: Gateway fetch outcomes by source
//   - EnhancementsTotal: LLM enhancement attempts by status
type Metrics struct {
	// ChatRequestsTotal counts chat requests.
	// Labels: mode (rag, mock), status (see ChatStatus)
	ChatRequestsTotal *prometheus.CounterVec

	// PipelineDurationSeconds measures the full send pipeline.
	// Labels: mode
	PipelineDurationSeconds *prometheus.HistogramVec

	// ActiveSessions tracks live orchestrator sessions.
	ActiveSessions prometheus.Gauge

	// FetchesTotal counts gateway fetches.
	// Labels: source, outcome (success, cache_hit, degraded, rate_limited, error)
	FetchesTotal *prometheus.CounterVec

	// EnhancementsTotal counts LLM rewrite attempts.
	// Labels: status (success, error)
	EnhancementsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg.
//
// # Inputs
//
//   - reg: Registry to register on. prometheus.DefaultRegisterer in
//     production, prometheus.NewRegistry() in tests.
//
// # Outputs
//
//   - *Metrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice against the same registry (duplicate
//     registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ChatRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by mode and status",
			},
			[]string{"mode", "status"},
		),

		PipelineDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "pipeline_duration_seconds",
				Help:      "Time from user message to assistant message in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"mode"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_sessions",
				Help:      "Number of chat sessions held in memory",
			},
		),

		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: opendataSubsystem,
				Name:      "fetches_total",
				Help:      "Total open data fetches by source and outcome",
			},
			[]string{"source", "outcome"},
		),

		EnhancementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: llmSubsystem,
				Name:      "enhancements_total",
				Help:      "Total LLM answer enhancements by status",
			},
			[]string{"status"},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// ChatStatus labels the end state of a chat request.
type ChatStatus string

const (
	// ChatStatusSuccess indicates a composed or mock answer was returned.
	ChatStatusSuccess ChatStatus = "success"

	// ChatStatusFallback indicates the pipeline failed and the apology was
	// returned.
	ChatStatusFallback ChatStatus = "fallback"

	// ChatStatusBusy indicates the session was already processing.
	ChatStatusBusy ChatStatus = "busy"

	// ChatStatusEmpty indicates whitespace-only input.
	ChatStatusEmpty ChatStatus = "empty"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordChat records a finished chat request and, for answered requests,
// its pipeline duration.
func (m *Metrics) RecordChat(mode string, status ChatStatus, seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(mode, string(status)).Inc()
	if status == ChatStatusSuccess || status == ChatStatusFallback {
		m.PipelineDurationSeconds.WithLabelValues(mode).Observe(seconds)
	}
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// RecordEnhancement records one LLM rewrite attempt.
func (m *Metrics) RecordEnhancement(success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.EnhancementsTotal.WithLabelValues(status).Inc()
}

// RecordFetch implements opendata.Recorder.
func (m *Metrics) RecordFetch(source string, outcome opendata.Outcome) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(source, string(outcome)).Inc()
}

var _ opendata.Recorder = (*Metrics)(nil)
