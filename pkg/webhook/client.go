// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stacklok/wxbridge/pkg/networking"
)

// maxErrorBody is how much of a rejected response body is kept in errors.
const maxErrorBody = 256

// Client posts signed envelopes to one receiver.
type Client struct {
	httpClient networking.HTTPClient
	config     Config
	hmacSecret []byte
	now        func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the transport built from Config.
func WithHTTPClient(c networking.HTTPClient) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithClock overrides the time source used for the signature timestamp.
func WithClock(now func() time.Time) ClientOption {
	return func(cl *Client) {
		cl.now = now
	}
}

// NewClient validates cfg and builds a Client. A nil or empty hmacSecret
// disables signing.
func NewClient(cfg Config, hmacSecret []byte, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}

	c := &Client{
		config:     cfg,
		hmacSecret: hmacSecret,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		u, _ := url.Parse(cfg.URL)
		httpClient, err := networking.NewHttpClientBuilder().
			WithTimeout(cfg.timeout()).
			WithCABundle(cfg.CABundlePath).
			WithPrivateIPs(cfg.AllowPrivateIPs).
			WithInsecureHTTP(u.Scheme == "http").
			Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build webhook HTTP client: %w", err)
		}
		c.httpClient = httpClient
	}

	return c, nil
}

// Name returns the configured receiver name.
func (c *Client) Name() string {
	return c.config.Name
}

// Send delivers req. Any 2xx answer is success and the body is ignored.
func (c *Client) Send(ctx context.Context, req *Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("webhook %q: failed to marshal request: %w", c.config.Name, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.timeout())
	defer cancel()

	opts := []networking.FetchOption{
		networking.WithMethod(http.MethodPost),
		networking.WithBody(bytes.NewReader(payload)),
		networking.WithHeader("Content-Type", networking.ContentTypeJSON),
		networking.WithMaxResponseSize(MaxResponseSize),
	}
	if len(c.hmacSecret) > 0 {
		ts := c.now().Unix()
		opts = append(opts,
			networking.WithHeader(SignatureHeader, SignPayload(c.hmacSecret, ts, payload)),
			networking.WithHeader(TimestampHeader, strconv.FormatInt(ts, 10)),
		)
	}

	if _, err := networking.Fetch(ctx, c.httpClient, c.config.URL, opts...); err != nil {
		return classifyError(c.config.Name, err)
	}
	return nil
}

// classifyError maps a delivery failure onto NetworkError or InvalidResponseError.
func classifyError(name string, err error) error {
	var httpErr *networking.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError {
			return &NetworkError{
				WebhookName: name,
				Err:         fmt.Errorf("status %d: %s", httpErr.StatusCode, truncateBody([]byte(httpErr.Body))),
			}
		}
		return &InvalidResponseError{
			WebhookName: name,
			StatusCode:  httpErr.StatusCode,
			Body:        truncateBody([]byte(httpErr.Body)),
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &NetworkError{WebhookName: name, Err: fmt.Errorf("timeout: %w", err)}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NetworkError{WebhookName: name, Err: fmt.Errorf("timeout: %w", err)}
	}
	return &NetworkError{WebhookName: name, Err: err}
}

func truncateBody(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	return string(body[:maxErrorBody]) + "..."
}
