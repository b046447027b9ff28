// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events publishes login notifications to operator-configured sinks.
//
// Sinks report errors. Callers on the token path wrap them with [Safe], which
// logs and counts failures but never returns them.
package events

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks -source=events.go Sink

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TypeLoginSucceeded is the envelope type of LoginSucceeded.
const TypeLoginSucceeded = "login.succeeded"

// LoginSucceeded is raised after a credential exchange binds a platform
// identity to a local account.
type LoginSucceeded struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	GrantType  string    `json:"grant_type"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	AccountID  string    `json:"account_id"`
	Username   string    `json:"username,omitempty"`
	TenantID   string    `json:"tenant_id,omitempty"`
	ClientID   string    `json:"client_id,omitempty"`
}

// NewLoginSucceeded stamps a fresh event ID and time onto ev.
func NewLoginSucceeded(ev LoginSucceeded) LoginSucceeded {
	ev.ID = uuid.NewString()
	ev.OccurredAt = time.Now().UTC()
	return ev
}

// Sink receives login events.
type Sink interface {
	Notify(ctx context.Context, event LoginSucceeded) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event LoginSucceeded) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, event LoginSucceeded) error {
	return f(ctx, event)
}
