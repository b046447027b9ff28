// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package networking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	// DefaultMaxResponseSize is the default maximum response body size (1MB).
	DefaultMaxResponseSize = 1024 * 1024

	// DefaultErrorPreviewSize is the maximum size of error body preview in HTTPError.
	DefaultErrorPreviewSize = 1024

	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Response is a fully read, size-limited HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// FetchResult holds a decoded JSON response.
type FetchResult[T any] struct {
	Data       T
	StatusCode int
}

// HTTPError is a non-2xx response with a body preview.
type HTTPError struct {
	StatusCode int
	Body       string
	URL        string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP request to %s failed with status %d", e.URL, e.StatusCode)
}

// FetchOption configures a fetch request.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	method          string
	headers         http.Header
	body            io.Reader
	maxResponseSize int64
	bodyErr         error
}

func newFetchOptions() *fetchOptions {
	return &fetchOptions{
		method:          http.MethodGet,
		headers:         make(http.Header),
		maxResponseSize: DefaultMaxResponseSize,
	}
}

// WithMethod sets the HTTP method for the request.
func WithMethod(method string) FetchOption {
	return func(opts *fetchOptions) {
		opts.method = method
	}
}

// WithHeader sets a single header on the request.
func WithHeader(key, value string) FetchOption {
	return func(opts *fetchOptions) {
		opts.headers.Set(key, value)
	}
}

// WithBody sets the request body.
func WithBody(body io.Reader) FetchOption {
	return func(opts *fetchOptions) {
		opts.body = body
	}
}

// WithJSONBody marshals v as the request body and sets the Content-Type.
func WithJSONBody(v any) FetchOption {
	return func(opts *fetchOptions) {
		data, err := json.Marshal(v)
		if err != nil {
			opts.bodyErr = fmt.Errorf("failed to marshal request body: %w", err)
			return
		}
		opts.body = bytes.NewReader(data)
		opts.headers.Set("Content-Type", ContentTypeJSON)
	}
}

// WithMaxResponseSize sets the maximum response body size.
func WithMaxResponseSize(size int64) FetchOption {
	return func(opts *fetchOptions) {
		opts.maxResponseSize = size
	}
}

// Fetch performs an HTTP request and reads the body with a size limit.
// Any status outside 2xx yields an *HTTPError.
func Fetch(ctx context.Context, client HTTPClient, requestURL string, opts ...FetchOption) (*Response, error) {
	options := newFetchOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.bodyErr != nil {
		return nil, options.bodyErr
	}

	if options.headers.Get("Accept") == "" {
		options.headers.Set("Accept", ContentTypeJSON)
	}

	req, err := http.NewRequestWithContext(ctx, options.method, requestURL, options.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range options.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		// url.Error embeds the full request URL, query credentials included.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redact(req)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, options.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview := string(body)
		if len(preview) > DefaultErrorPreviewSize {
			preview = preview[:DefaultErrorPreviewSize]
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       preview,
			URL:        redact(req),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// FetchJSON is Fetch followed by decoding the body into T.
func FetchJSON[T any](ctx context.Context, client HTTPClient, requestURL string, opts ...FetchOption) (*FetchResult[T], error) {
	resp, err := Fetch(ctx, client, requestURL, opts...)
	if err != nil {
		return nil, err
	}

	var data T
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	return &FetchResult[T]{Data: data, StatusCode: resp.StatusCode}, nil
}

// redact strips the query string, which carries platform secrets and tokens.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
