// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ Recorder = (*Metrics)(nil)

// Metrics holds the Prometheus collectors.
type Metrics struct {
	GrantsTotal                *prometheus.CounterVec
	CallbackVerificationsTotal *prometheus.CounterVec
	TokenAcquisitionsTotal     *prometheus.CounterVec
	SubscribeSendsTotal        *prometheus.CounterVec
	EventDeliveriesTotal       *prometheus.CounterVec
	UpstreamCallDuration       *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns the process-wide Prometheus recorder when enabled, or a
// no-op recorder otherwise. Collectors are registered at most once.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		GrantsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbridge_grants_total",
				Help: "Credential exchange attempts by grant type and result",
			},
			[]string{"grant_type", "result", "reason"},
		),
		CallbackVerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbridge_callback_verifications_total",
				Help: "Inbound callback signature checks by result",
			},
			[]string{"result"}, // success, mismatch
		),
		TokenAcquisitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbridge_token_acquisitions_total",
				Help: "Platform access token lookups by result",
			},
			[]string{"result"}, // hit, miss, error
		),
		SubscribeSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbridge_subscribe_sends_total",
				Help: "Subscribe message dispatches by result",
			},
			[]string{"result"}, // success, soft_fail, error, skipped
		),
		EventDeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wxbridge_event_deliveries_total",
				Help: "Login event notifications by sink and result",
			},
			[]string{"sink", "result"}, // success, failure
		),
		UpstreamCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wxbridge_upstream_call_duration_seconds",
				Help:    "Duration of platform API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "result"},
		),
	}
}

// RecordGrant implements Recorder.
func (m *Metrics) RecordGrant(grantType, result, reason string) {
	m.GrantsTotal.WithLabelValues(grantType, result, reason).Inc()
}

// RecordCallbackVerification implements Recorder.
func (m *Metrics) RecordCallbackVerification(result string) {
	m.CallbackVerificationsTotal.WithLabelValues(result).Inc()
}

// RecordTokenAcquisition implements Recorder.
func (m *Metrics) RecordTokenAcquisition(result string) {
	m.TokenAcquisitionsTotal.WithLabelValues(result).Inc()
}

// RecordSubscribeSend implements Recorder.
func (m *Metrics) RecordSubscribeSend(result string) {
	m.SubscribeSendsTotal.WithLabelValues(result).Inc()
}

// RecordEventDelivery implements Recorder.
func (m *Metrics) RecordEventDelivery(sink, result string) {
	m.EventDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

// RecordUpstreamCall implements Recorder.
func (m *Metrics) RecordUpstreamCall(endpoint, result string, duration time.Duration) {
	m.UpstreamCallDuration.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}
