// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package metrics

import "time"

// NoopMetrics discards every observation.
type NoopMetrics struct{}

var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (*NoopMetrics) RecordGrant(string, string, string)               {}
func (*NoopMetrics) RecordCallbackVerification(string)                {}
func (*NoopMetrics) RecordTokenAcquisition(string)                    {}
func (*NoopMetrics) RecordSubscribeSend(string)                       {}
func (*NoopMetrics) RecordEventDelivery(string, string)               {}
func (*NoopMetrics) RecordUpstreamCall(string, string, time.Duration) {}

// OrNoop returns r, or a no-op recorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NewNoopMetrics()
	}
	return r
}
