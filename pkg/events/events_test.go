// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package events_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-core/logging"

	"github.com/stacklok/wxbridge/pkg/events"
	"github.com/stacklok/wxbridge/pkg/events/mocks"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/webhook"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return logging.New(logging.WithOutput(buf), logging.WithLevel(slog.LevelDebug)), buf
}

func sampleEvent() events.LoginSucceeded {
	return events.NewLoginSucceeded(events.LoginSucceeded{
		GrantType:  "wechat_official",
		Provider:   "WeChat.Official",
		ExternalID: "o6_bmjrPTlm6_2sgVt7hMZOPfL2M",
		AccountID:  "acct-42",
		Username:   "alice",
		TenantID:   "tenant-a",
		ClientID:   "mobile-app",
	})
}

func TestNewLoginSucceeded(t *testing.T) {
	t.Parallel()

	before := time.Now().UTC()
	ev := sampleEvent()

	_, err := uuid.Parse(ev.ID)
	require.NoError(t, err)
	assert.False(t, ev.OccurredAt.Before(before.Add(-time.Second)))
	assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	assert.NotEqual(t, ev.ID, sampleEvent().ID)
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	l, logs := testLogger()
	ev := sampleEvent()

	require.NoError(t, events.NewLogSink(l).Notify(context.Background(), ev))
	out := logs.String()
	assert.Contains(t, out, "login succeeded")
	assert.Contains(t, out, "acct-42")
	assert.Contains(t, out, ev.ID)
}

func TestWebhookSink(t *testing.T) {
	t.Parallel()

	secret := []byte("hook-secret")
	var (
		body    []byte
		headers http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client, err := webhook.NewClient(webhook.Config{
		Name: "audit",
		URL:  server.URL,
	}, secret, webhook.WithHTTPClient(server.Client()))
	require.NoError(t, err)

	sink := events.NewWebhookSink(client)
	assert.Equal(t, "webhook:audit", sink.Name())

	ev := sampleEvent()
	require.NoError(t, sink.Notify(context.Background(), ev))

	ts, err := strconv.ParseInt(headers.Get(webhook.TimestampHeader), 10, 64)
	require.NoError(t, err)
	assert.True(t, webhook.VerifySignature(secret, ts, body, headers.Get(webhook.SignatureHeader)))

	var env webhook.Request
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, events.TypeLoginSucceeded, env.Type)
	assert.Equal(t, ev.ID, env.UID)

	var got events.LoginSucceeded
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, ev.AccountID, got.AccountID)
	assert.Equal(t, ev.TenantID, got.TenantID)
	assert.Equal(t, ev.ExternalID, got.ExternalID)
}

func TestMulti(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	third := mocks.NewMockSink(ctrl)

	ev := sampleEvent()
	boom := errors.New("boom")
	gomock.InOrder(
		first.EXPECT().Notify(gomock.Any(), ev).Return(nil),
		second.EXPECT().Notify(gomock.Any(), ev).Return(boom),
		third.EXPECT().Notify(gomock.Any(), ev).Return(nil),
	)

	err := events.Multi{first, second, third}.Notify(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "custom: boom")
}

func TestSafe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		sink       func(ctrl *gomock.Controller) events.Sink
		wantResult string
		wantLog    string
	}{
		{
			name: "delivered",
			sink: func(ctrl *gomock.Controller) events.Sink {
				m := mocks.NewMockSink(ctrl)
				m.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
				return m
			},
			wantResult: metrics.ResultSuccess,
		},
		{
			name: "sink error is swallowed",
			sink: func(ctrl *gomock.Controller) events.Sink {
				m := mocks.NewMockSink(ctrl)
				m.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("receiver down"))
				return m
			},
			wantResult: metrics.ResultFailure,
			wantLog:    "receiver down",
		},
		{
			name: "sink panic is swallowed",
			sink: func(_ *gomock.Controller) events.Sink {
				return events.SinkFunc(func(context.Context, events.LoginSucceeded) error {
					panic("nil map write")
				})
			},
			wantResult: metrics.ResultFailure,
			wantLog:    "event sink panicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			l, logs := testLogger()
			m := metrics.New(prometheus.NewRegistry())

			n := events.Safe(tt.sink(ctrl), events.WithSafeLogger(l), events.WithSafeRecorder(m))
			assert.NotPanics(t, func() {
				n.Notify(context.Background(), sampleEvent())
			})

			assert.InDelta(t, 1, testutil.ToFloat64(m.EventDeliveriesTotal.WithLabelValues("custom", tt.wantResult)), 0)
			if tt.wantLog != "" {
				assert.Contains(t, logs.String(), tt.wantLog)
			}
		})
	}
}

func TestSafeNilSink(t *testing.T) {
	t.Parallel()

	n := events.Safe(nil)
	assert.NotPanics(t, func() {
		n.Notify(context.Background(), sampleEvent())
	})
}

func TestSafeAsyncDetachesFromCaller(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)

	delivered := make(chan error, 1)
	sink.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ events.LoginSucceeded) error {
			_, hasDeadline := ctx.Deadline()
			if !hasDeadline {
				delivered <- errors.New("missing deadline")
				return nil
			}
			delivered <- ctx.Err()
			return nil
		})

	l, _ := testLogger()
	n := events.Safe(sink, events.WithSafeLogger(l), events.WithAsync(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, sampleEvent())
	cancel()
	n.Wait()

	assert.NoError(t, <-delivered)
}

func TestSafeAsyncWaitDuringNotify(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	delivered := 0
	sink := events.SinkFunc(func(context.Context, events.LoginSucceeded) error {
		mu.Lock()
		delivered++
		mu.Unlock()
		return nil
	})

	l, _ := testLogger()
	n := events.Safe(sink, events.WithSafeLogger(l), events.WithAsync(time.Second))

	const senders = 50
	var wg sync.WaitGroup
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Notify(context.Background(), sampleEvent())
		}()
	}
	n.Wait()
	wg.Wait()

	// Notifications after draining are delivered inline.
	n.Notify(context.Background(), sampleEvent())
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, senders+1, delivered)
}
