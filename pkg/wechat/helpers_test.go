// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhive-core/logging"
)

// fakePlatform is an httptest server standing in for the platform API.
type fakePlatform struct {
	server *httptest.Server
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]*atomic.Int32
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]*atomic.Int32),
	}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		handler, ok := p.routes[r.URL.Path]
		counter := p.hits[r.URL.Path]
		p.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		counter.Add(1)
		handler(w, r)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePlatform) handle(path string, handler http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[path] = handler
	if _, ok := p.hits[path]; !ok {
		p.hits[path] = &atomic.Int32{}
	}
}

func (p *fakePlatform) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.hits[path]; ok {
		return int(c.Load())
	}
	return 0
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

// dropConnection closes the connection without answering, so the client
// sees a transport error instead of a status.
func dropConnection(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return logging.New(logging.WithOutput(buf), logging.WithLevel(slog.LevelDebug)), buf
}

func newTestClient(t *testing.T, p *fakePlatform, opts ...ClientOption) (*Client, *syncBuffer) {
	t.Helper()
	l, logs := newTestLogger()
	all := append([]ClientOption{
		WithBaseURL(p.server.URL),
		WithHTTPClient(p.server.Client()),
		WithLogger(l),
	}, opts...)
	c, err := NewClient(all...)
	require.NoError(t, err)
	return c, logs
}
