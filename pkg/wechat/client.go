// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wechat talks to the WeChat platform API: it resolves login codes to
// openids, caches application access tokens, verifies inbound callback
// signatures and sends subscribe messages.
package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/networking"
)

// DefaultBaseURL is the public platform API host.
const DefaultBaseURL = "https://api.weixin.qq.com"

const tracerName = "github.com/stacklok/wxbridge/pkg/wechat"

// Client performs platform API calls. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient networking.HTTPClient
	logger     *slog.Logger
	recorder   metrics.Recorder
	tracer     trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the platform API host, mainly for tests.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the outbound HTTP client.
func WithHTTPClient(client networking.HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// NewClient creates a Client. Without WithHTTPClient it builds the shared
// networking client with default settings.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		httpClient, err := networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("failed to build HTTP client: %w", err)
		}
		c.httpClient = httpClient
	}
	c.logger = logger.OrDefault(c.logger).With("component", "wechat")
	c.recorder = metrics.OrNoop(c.recorder)
	c.tracer = otel.Tracer(tracerName)
	return c, nil
}

// Logger returns the client's logger for collaborating components.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// Recorder returns the client's metrics recorder.
func (c *Client) Recorder() metrics.Recorder {
	return c.recorder
}

// call issues one API request and returns the raw body. A non-2xx status is
// returned as an *networking.HTTPError. A payload with a non-zero errcode is
// returned as an *APIError alongside the body.
func (c *Client) call(ctx context.Context, endpoint string, query url.Values, opts ...networking.FetchOption) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "wechat."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("wechat.endpoint", endpoint)),
	)
	defer span.End()

	target := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	start := time.Now()
	resp, err := networking.Fetch(ctx, c.httpClient, target, opts...)
	if err != nil {
		c.recorder.RecordUpstreamCall(endpoint, metrics.ResultError, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, err
	}

	if apiErr := parseAPIError(resp.Body); apiErr != nil {
		c.recorder.RecordUpstreamCall(endpoint, metrics.ResultFailure, time.Since(start))
		span.SetAttributes(attribute.Int64("wechat.errcode", apiErr.ErrCode))
		span.SetStatus(codes.Error, apiErr.ErrMsg)
		return resp.Body, apiErr
	}

	c.recorder.RecordUpstreamCall(endpoint, metrics.ResultSuccess, time.Since(start))
	return resp.Body, nil
}

// parseAPIError reports the errcode/errmsg pair when errcode is present and non-zero.
func parseAPIError(body []byte) *APIError {
	if !gjson.ValidBytes(body) {
		return nil
	}
	result := gjson.GetManyBytes(body, "errcode", "errmsg")
	if !result[0].Exists() || result[0].Int() == 0 {
		return nil
	}
	return &APIError{ErrCode: result[0].Int(), ErrMsg: result[1].String()}
}

