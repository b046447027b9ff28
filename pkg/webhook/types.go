// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers HMAC-signed JSON envelopes to an operator-owned
// HTTP endpoint. wxbridge uses it to publish login events.
package webhook

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// APIVersion is the version of the delivery envelope.
const APIVersion = "wxbridge.v1"

// DefaultTimeout is the default timeout for webhook HTTP calls.
const DefaultTimeout = 10 * time.Second

// MaxTimeout is the maximum allowed timeout for webhook HTTP calls.
const MaxTimeout = 30 * time.Second

// MaxResponseSize is the maximum number of response bytes read from a receiver (1 MB).
const MaxResponseSize = 1 << 20

// Config holds the configuration for a single webhook receiver.
type Config struct {
	// Name identifies the receiver in logs.
	Name string `json:"name" yaml:"name"`
	// URL is the endpoint to POST to.
	URL string `json:"url" yaml:"url"`
	// Timeout bounds one delivery. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// CABundlePath is an optional CA bundle for verifying the receiver.
	CABundlePath string `json:"ca_bundle_path,omitempty" yaml:"ca_bundle_path,omitempty"`
	// AllowPrivateIPs permits receivers on private networks.
	AllowPrivateIPs bool `json:"allow_private_ips,omitempty" yaml:"allow_private_ips,omitempty"`
}

// Validate checks that the Config has valid required fields.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("webhook name is required")
	}
	if c.URL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.ParseRequestURI(c.URL)
	if err != nil {
		return fmt.Errorf("webhook URL is invalid: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("webhook URL scheme must be http or https, got %q", u.Scheme)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("webhook timeout must be non-negative")
	}
	if c.Timeout > MaxTimeout {
		return fmt.Errorf("webhook timeout %v exceeds maximum %v", c.Timeout, MaxTimeout)
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.Timeout == 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// Request is the envelope POSTed to a receiver.
type Request struct {
	// Version is the envelope version.
	Version string `json:"version"`
	// UID uniquely identifies the delivery so receivers can deduplicate.
	UID string `json:"uid"`
	// Timestamp is when the underlying event happened.
	Timestamp time.Time `json:"timestamp"`
	// Type names the event carried in Data.
	Type string `json:"type"`
	// Data is the event body.
	Data json.RawMessage `json:"data"`
}
