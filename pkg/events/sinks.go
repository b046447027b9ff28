// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/webhook"
)

type namedSink interface {
	Name() string
}

func sinkName(s Sink) string {
	if n, ok := s.(namedSink); ok {
		return n.Name()
	}
	return "custom"
}

// LogSink writes each event to a structured logger at info level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger uses the process logger.
func NewLogSink(l *slog.Logger) *LogSink {
	return &LogSink{logger: logger.OrDefault(l)}
}

// Name implements namedSink.
func (*LogSink) Name() string { return "log" }

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, ev LoginSucceeded) error {
	s.logger.InfoContext(ctx, "login succeeded",
		"event_id", ev.ID,
		"grant_type", ev.GrantType,
		"provider", ev.Provider,
		"account_id", ev.AccountID,
		"tenant_id", ev.TenantID,
		"client_id", ev.ClientID,
	)
	return nil
}

// WebhookSender is the part of webhook.Client the sink needs.
type WebhookSender interface {
	Name() string
	Send(ctx context.Context, req *webhook.Request) error
}

// WebhookSink posts each event as a signed webhook envelope.
type WebhookSink struct {
	sender WebhookSender
}

// NewWebhookSink returns a sink delivering through sender.
func NewWebhookSink(sender WebhookSender) *WebhookSink {
	return &WebhookSink{sender: sender}
}

// Name implements namedSink.
func (s *WebhookSink) Name() string { return "webhook:" + s.sender.Name() }

// Notify implements Sink.
func (s *WebhookSink) Notify(ctx context.Context, ev LoginSucceeded) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.sender.Send(ctx, &webhook.Request{
		Version:   webhook.APIVersion,
		UID:       ev.ID,
		Timestamp: ev.OccurredAt,
		Type:      TypeLoginSucceeded,
		Data:      data,
	})
}

// Multi fans an event out to every sink in order. All sinks run even when
// one fails; the failures are joined.
type Multi []Sink

// Name implements namedSink.
func (Multi) Name() string { return "multi" }

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, ev LoginSucceeded) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sinkName(s), err))
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

// Name implements namedSink.
func (Discard) Name() string { return "discard" }

// Notify implements Sink.
func (Discard) Notify(context.Context, LoginSucceeded) error { return nil }
