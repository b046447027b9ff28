// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs an ordered list of request interceptors in front of
// an http.Handler. Each interceptor either lets the request continue or
// reports that it handled the request, which stops the pipeline.
package pipeline

import (
	"log/slog"
	"net/http"

	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
	"github.com/stacklok/wxbridge/pkg/logger"
)

// Outcome is what an interceptor decided about a request.
type Outcome int

const (
	// Continue passes the request to the next interceptor or the handler.
	Continue Outcome = iota
	// Handled means the interceptor wrote the response; nothing else runs.
	Handled
)

// Interceptor inspects a request before routing. A non-nil error aborts the
// request regardless of the outcome.
type Interceptor interface {
	Intercept(w http.ResponseWriter, r *http.Request) (Outcome, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(w http.ResponseWriter, r *http.Request) (Outcome, error)

// Intercept implements Interceptor.
func (f InterceptorFunc) Intercept(w http.ResponseWriter, r *http.Request) (Outcome, error) {
	return f(w, r)
}

// Pipeline is an ordered, immutable list of interceptors.
type Pipeline struct {
	interceptors []Interceptor
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for aborted requests.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline running interceptors in order.
func New(interceptors []Interceptor, opts ...Option) *Pipeline {
	p := &Pipeline{interceptors: append([]Interceptor(nil), interceptors...)}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrDefault(p.logger)
	return p
}

// Then wraps next so every request passes through the interceptors first.
func (p *Pipeline) Then(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, interceptor := range p.interceptors {
			outcome, err := interceptor.Intercept(w, r)
			if err != nil {
				p.abort(w, r, err)
				return
			}
			if outcome == Handled {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware returns Then as a chi-compatible middleware function.
func (p *Pipeline) Middleware() func(http.Handler) http.Handler {
	return p.Then
}

// abort ends a request whose interceptor failed. The client only sees a bare
// 500; the detail goes to the log.
func (p *Pipeline) abort(w http.ResponseWriter, r *http.Request, err error) {
	level := slog.LevelWarn
	if wxerrors.IsSecurityViolation(err) {
		level = slog.LevelError
	}
	p.logger.Log(r.Context(), level, "request aborted by interceptor",
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
		"error_type", wxerrors.TypeOf(err),
		"error", err,
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
