// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package metrics records bridge outcomes as Prometheus series.
package metrics

import "time"

// Result labels shared across series.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultError    = "error"
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultSkipped  = "skipped"
	ResultSoftFail = "soft_fail"
	ResultMismatch = "mismatch"
)

// Recorder is implemented by Prometheus-backed and no-op recorders.
type Recorder interface {
	// RecordGrant counts credential exchange outcomes. reason is empty on success.
	RecordGrant(grantType, result, reason string)
	// RecordCallbackVerification counts callback signature checks.
	RecordCallbackVerification(result string)
	// RecordTokenAcquisition counts platform access token lookups.
	RecordTokenAcquisition(result string)
	// RecordSubscribeSend counts subscribe message dispatches.
	RecordSubscribeSend(result string)
	// RecordEventDelivery counts login event notifications per sink.
	RecordEventDelivery(sink, result string)
	// RecordUpstreamCall observes one platform API round trip.
	RecordUpstreamCall(endpoint, result string, duration time.Duration)
}
