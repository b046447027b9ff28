// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/metrics"
)

// Notifier delivers events without ever reporting failure to the caller.
type Notifier struct {
	sink     Sink
	name     string
	logger   *slog.Logger
	recorder metrics.Recorder
	async    bool
	timeout  time.Duration

	mu      sync.Mutex
	drained bool
	wg      sync.WaitGroup
}

// SafeOption configures a Notifier.
type SafeOption func(*Notifier)

// WithSafeLogger sets the logger that receives swallowed failures.
func WithSafeLogger(l *slog.Logger) SafeOption {
	return func(n *Notifier) {
		n.logger = l
	}
}

// WithSafeRecorder sets the metrics recorder.
func WithSafeRecorder(r metrics.Recorder) SafeOption {
	return func(n *Notifier) {
		n.recorder = r
	}
}

// WithAsync delivers each event on its own goroutine, detached from the
// caller's cancellation and bounded by timeout. Call Wait to drain.
func WithAsync(timeout time.Duration) SafeOption {
	return func(n *Notifier) {
		n.async = true
		n.timeout = timeout
	}
}

// Safe wraps sink so that delivery errors and panics are logged and dropped.
// A nil sink discards events.
func Safe(sink Sink, opts ...SafeOption) *Notifier {
	if sink == nil {
		sink = Discard{}
	}
	n := &Notifier{sink: sink, name: sinkName(sink)}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = logger.OrDefault(n.logger)
	n.recorder = metrics.OrNoop(n.recorder)
	return n
}

// Notify hands ev to the sink. Once Wait has been called, asynchronous
// notifiers deliver on the caller's goroutine.
func (n *Notifier) Notify(ctx context.Context, ev LoginSucceeded) {
	if !n.async {
		n.deliver(ctx, ev)
		return
	}

	n.mu.Lock()
	if n.drained {
		n.mu.Unlock()
		n.detached(ctx, ev)
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		n.detached(ctx, ev)
	}()
}

// Wait stops spawning delivery goroutines and blocks until the running ones
// have finished. It may be called concurrently with Notify.
func (n *Notifier) Wait() {
	n.mu.Lock()
	n.drained = true
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) detached(ctx context.Context, ev LoginSucceeded) {
	dctx := context.WithoutCancel(ctx)
	if n.timeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(dctx, n.timeout)
		defer cancel()
	}
	n.deliver(dctx, ev)
}

func (n *Notifier) deliver(ctx context.Context, ev LoginSucceeded) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.ErrorContext(ctx, "event sink panicked",
				"sink", n.name, "event_id", ev.ID, "panic", r)
			n.recorder.RecordEventDelivery(n.name, metrics.ResultFailure)
		}
	}()

	if err := n.sink.Notify(ctx, ev); err != nil {
		n.logger.WarnContext(ctx, "failed to deliver login event",
			"sink", n.name, "event_id", ev.ID, "account_id", ev.AccountID, "error", err)
		n.recorder.RecordEventDelivery(n.name, metrics.ResultFailure)
		return
	}
	n.recorder.RecordEventDelivery(n.name, metrics.ResultSuccess)
}
