// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"io"
	"log/slog"
	"net/http"

	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/pipeline"
)

// CallbackParams are the query parameters the platform sends to the callback URL.
type CallbackParams struct {
	Timestamp string
	Nonce     string
	Signature string
	EchoStr   string
}

// CallbackParamsFromRequest reads CallbackParams from r's query string.
func CallbackParamsFromRequest(r *http.Request) CallbackParams {
	q := r.URL.Query()
	return CallbackParams{
		Timestamp: q.Get("timestamp"),
		Nonce:     q.Get("nonce"),
		Signature: q.Get("signature"),
		EchoStr:   q.Get("echostr"),
	}
}

// CallbackVerifier answers the platform's callback URL ownership check.
//
// It only acts on requests whose path equals the configured path. A request
// with a valid signature gets echostr written back and the pipeline stops.
// Any other request on that path fails with a security violation.
type CallbackVerifier struct {
	path     string
	token    string
	logger   *slog.Logger
	recorder metrics.Recorder
}

var _ pipeline.Interceptor = (*CallbackVerifier)(nil)

// CallbackVerifierOption configures a CallbackVerifier.
type CallbackVerifierOption func(*CallbackVerifier)

// WithCallbackLogger sets the logger.
func WithCallbackLogger(l *slog.Logger) CallbackVerifierOption {
	return func(v *CallbackVerifier) {
		v.logger = l
	}
}

// WithCallbackRecorder sets the metrics recorder.
func WithCallbackRecorder(r metrics.Recorder) CallbackVerifierOption {
	return func(v *CallbackVerifier) {
		v.recorder = r
	}
}

// NewCallbackVerifier creates a verifier for the shared token on path.
func NewCallbackVerifier(path, token string, opts ...CallbackVerifierOption) *CallbackVerifier {
	v := &CallbackVerifier{path: path, token: token}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logger.OrDefault(v.logger)
	v.recorder = metrics.OrNoop(v.recorder)
	return v
}

// Intercept implements pipeline.Interceptor.
func (v *CallbackVerifier) Intercept(w http.ResponseWriter, r *http.Request) (pipeline.Outcome, error) {
	if r.URL.Path != v.path {
		return pipeline.Continue, nil
	}

	params := CallbackParamsFromRequest(r)
	if !VerifySignature(v.token, params.Timestamp, params.Nonce, params.Signature) {
		v.recorder.RecordCallbackVerification(metrics.ResultMismatch)
		return pipeline.Handled, wxerrors.NewSecurityViolationError("callback signature mismatch", nil)
	}

	v.recorder.RecordCallbackVerification(metrics.ResultSuccess)
	v.logger.DebugContext(r.Context(), "callback signature verified", "path", r.URL.Path)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, params.EchoStr); err != nil {
		v.logger.WarnContext(r.Context(), "failed to write echostr", "error", err)
	}
	return pipeline.Handled, nil
}
