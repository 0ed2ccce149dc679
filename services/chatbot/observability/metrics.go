// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the chatbot service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat
// operations. Metrics include:
//   - Request counters (by endpoint and status)
//   - Rejection counters (by reason: validation, rate_limit)
//   - Generation latency histograms (blocking and streaming)
//   - Stream fragment counters and active stream gauges
//   - Session lifecycle counters
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "mindcare"

// Subsystem for chat pipeline metrics
const chatSubsystem = "chat"

// ChatMetrics holds all Prometheus metrics for the chat pipeline.
//
// Initialize once at startup via InitMetrics(). All operations are
// thread-safe.
type ChatMetrics struct {
	// RequestsTotal counts chat requests by endpoint and status.
	// Labels: endpoint (chat, ai_chat), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RejectionsTotal counts requests rejected before generation.
	// Labels: endpoint, reason (validation, rate_limit)
	RejectionsTotal *prometheus.CounterVec

	// GenerationDurationSeconds measures end-to-end generation latency.
	// Labels: endpoint, mode (blocking, streaming)
	GenerationDurationSeconds *prometheus.HistogramVec

	// StreamFragmentsTotal counts fragments relayed to SSE clients.
	StreamFragmentsTotal prometheus.Counter

	// ActiveStreams tracks currently open SSE connections.
	ActiveStreams prometheus.Gauge

	// ClientDisconnectsTotal counts clients that dropped mid-stream.
	ClientDisconnectsTotal prometheus.Counter

	// SessionsCreatedTotal counts sessions registered, split by how.
	// Labels: origin (explicit, auto)
	SessionsCreatedTotal *prometheus.CounterVec

	// SessionsEvictedTotal counts sessions removed by the idle sweeper.
	SessionsEvictedTotal prometheus.Counter

	// ActiveSessions tracks the number of live sessions in the store.
	ActiveSessions prometheus.Gauge
}

// DefaultMetrics is the singleton instance of ChatMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *ChatMetrics

// InitMetrics creates and registers all chat metrics on the default
// Prometheus registry and stores them in DefaultMetrics. Call once at
// application startup; a second call panics on duplicate registration.
func InitMetrics() *ChatMetrics {
	DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewMetrics creates all chat metrics registered on reg.
func NewMetrics(reg prometheus.Registerer) *ChatMetrics {
	factory := promauto.With(reg)
	return &ChatMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "requests_total",
				Help:      "Total number of chat requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "rejections_total",
				Help:      "Requests rejected before generation by endpoint and reason",
			},
			[]string{"endpoint", "reason"},
		),

		GenerationDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "generation_duration_seconds",
				Help:      "End-to-end generation latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"endpoint", "mode"},
		),

		StreamFragmentsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "stream_fragments_total",
				Help:      "Total fragments relayed to live stream clients",
			},
		),

		ActiveStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_streams",
				Help:      "Number of currently open live stream connections",
			},
		),

		ClientDisconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total clients that disconnected during streaming",
			},
		),

		SessionsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sessions_created_total",
				Help:      "Sessions registered, by origin (explicit, auto)",
			},
			[]string{"origin"},
		),

		SessionsEvictedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "sessions_evicted_total",
				Help:      "Sessions removed by the idle sweeper",
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: chatSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live sessions in the store",
			},
		),
	}
}

// =============================================================================
// Label Values
// =============================================================================

// Endpoint label values for request and rejection counters.
const (
	EndpointChat   = "chat"
	EndpointAIChat = "ai_chat"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Rejection reason label values.
const (
	ReasonValidation = "validation"
	ReasonRateLimit  = "rate_limit"
)

// Generation mode label values.
const (
	ModeBlocking  = "blocking"
	ModeStreaming = "streaming"
)

// Session origin label values.
const (
	OriginExplicit = "explicit"
	OriginAuto     = "auto"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed chat request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *ChatMetrics) RecordRequest(endpoint string, success bool) {
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
}

// RecordRejection records a request rejected before generation ran.
//
// # Inputs
//
//   - endpoint: The endpoint that rejected the request.
//   - reason: Why it was rejected (validation, rate_limit).
func (m *ChatMetrics) RecordRejection(endpoint, reason string) {
	m.RejectionsTotal.WithLabelValues(endpoint, reason).Inc()
}

// ObserveGeneration records an end-to-end generation latency sample.
func (m *ChatMetrics) ObserveGeneration(endpoint, mode string, seconds float64) {
	m.GenerationDurationSeconds.WithLabelValues(endpoint, mode).Observe(seconds)
}

// StreamStarted increments the active streams gauge.
func (m *ChatMetrics) StreamStarted() {
	m.ActiveStreams.Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *ChatMetrics) StreamEnded() {
	m.ActiveStreams.Dec()
}

// RecordFragment counts one fragment relayed to a live stream client.
func (m *ChatMetrics) RecordFragment() {
	m.StreamFragmentsTotal.Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *ChatMetrics) RecordClientDisconnect() {
	m.ClientDisconnectsTotal.Inc()
}

// RecordSessionCreated records a new session registration.
//
// # Inputs
//
//   - origin: How the session came to exist (explicit, auto).
func (m *ChatMetrics) RecordSessionCreated(origin string) {
	m.SessionsCreatedTotal.WithLabelValues(origin).Inc()
}

// RecordEvictions adds to the evicted session counter and refreshes the
// live session gauge.
func (m *ChatMetrics) RecordEvictions(evicted, remaining int) {
	m.SessionsEvictedTotal.Add(float64(evicted))
	m.ActiveSessions.Set(float64(remaining))
}

// SetActiveSessions refreshes the live session gauge.
func (m *ChatMetrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}
