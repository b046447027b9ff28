// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/wxbridge/pkg/accounts"
	"github.com/stacklok/wxbridge/pkg/config"
	"github.com/stacklok/wxbridge/pkg/events"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/webhook"
	"github.com/stacklok/wxbridge/pkg/wechat"
	"github.com/stacklok/wxbridge/pkg/wechatgrant"
)

const (
	testClientID     = "backend"
	testClientSecret = "backend-secret"
	testCallbackTok  = "cb-token"
	testWebhookKey   = "webhook-key"
)

// fakePlatform stands in for the WeChat API.
type fakePlatform struct {
	server *httptest.Server
	sends  atomic.Int32
	tokens atomic.Int32
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sns/oauth2/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("code") {
		case "good-code":
			_, _ = io.WriteString(w, `{"openid":"o-1","unionid":"u-1"}`)
		case "stranger-code":
			_, _ = io.WriteString(w, `{"openid":"o-unknown"}`)
		default:
			_, _ = io.WriteString(w, `{"errcode":40029,"errmsg":"invalid code"}`)
		}
	})
	mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, _ *http.Request) {
		p.tokens.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"platform-token","expires_in":7200}`)
	})
	mux.HandleFunc("/cgi-bin/message/subscribe/send", func(w http.ResponseWriter, r *http.Request) {
		p.sends.Add(1)
		if r.URL.Query().Get("access_token") != "platform-token" {
			_, _ = io.WriteString(w, `{"errcode":40001,"errmsg":"invalid credential"}`)
			return
		}
		_, _ = io.WriteString(w, `{"errcode":0,"errmsg":"ok"}`)
	})
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// eventReceiver collects verified webhook deliveries.
type eventReceiver struct {
	server *httptest.Server
	mu     sync.Mutex
	events []events.LoginSucceeded
}

func newEventReceiver(t *testing.T) *eventReceiver {
	t.Helper()
	rcv := &eventReceiver{}
	rcv.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		ts, err := strconv.ParseInt(r.Header.Get(webhook.TimestampHeader), 10, 64)
		require.NoError(t, err)
		if !webhook.VerifySignature([]byte(testWebhookKey), ts, body, r.Header.Get(webhook.SignatureHeader)) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req webhook.Request
		require.NoError(t, json.Unmarshal(body, &req))
		var ev events.LoginSucceeded
		require.NoError(t, json.Unmarshal(req.Data, &ev))

		rcv.mu.Lock()
		rcv.events = append(rcv.events, ev)
		rcv.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(rcv.server.Close)
	return rcv
}

func (r *eventReceiver) received() []events.LoginSucceeded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.LoginSucceeded(nil), r.events...)
}

func writeTestConfig(t *testing.T, issuer, platformURL, extra string) string {
	t.Helper()
	content := fmt.Sprintf(`
issuer:
  url: %s
  hmac_secret: 0123456789abcdef0123456789abcdef
  clients:
    - id: %s
      secret: %s
wechat:
  app_id: wx-app
  app_secret: wx-secret
  api_base_url: %s
  callback:
    token: %s
metrics:
  enabled: true
%s`, issuer, testClientID, testClientSecret, platformURL, testCallbackTok, extra)

	path := filepath.Join(t.TempDir(), "wxbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type testBridge struct {
	*bridge
	server   *httptest.Server
	platform *fakePlatform
	receiver *eventReceiver
	metrics  *metrics.Metrics
}

func startTestBridge(t *testing.T, extra string) *testBridge {
	t.Helper()

	platform := newFakePlatform(t)
	receiver := newEventReceiver(t)

	server := httptest.NewUnstartedServer(nil)
	issuer := "http://" + server.Listener.Addr().String()

	extra = fmt.Sprintf(`events:
  async: true
  log: false
  webhooks:
    - name: audit
      url: %s
      secret: %s
      allow_private_ips: true
%s`, receiver.server.URL, testWebhookKey, extra)

	cfg, err := config.Load(writeTestConfig(t, issuer, platform.server.URL, extra))
	require.NoError(t, err)

	store := accounts.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateAccount(ctx, accounts.Account{ID: "acct-1", Username: "alice", TenantID: "t-1"}))
	require.NoError(t, store.Link(ctx, accounts.Login{
		Provider:   wechatgrant.DefaultProviderKey,
		ExternalID: "o-1",
		AccountID:  "acct-1",
	}))

	m := metrics.New(prometheus.NewRegistry())
	b, err := newBridge(ctx, cfg, slog.New(slog.DiscardHandler), withAccountStore(store), withRecorder(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	server.Config.Handler = b.handler()
	server.Start()
	t.Cleanup(server.Close)

	return &testBridge{bridge: b, server: server, platform: platform, receiver: receiver, metrics: m}
}

func (tb *testBridge) exchange(t *testing.T, code string) (*exchangeResult, error) {
	t.Helper()
	opts := exchangeOptions{
		issuer:       tb.server.URL,
		clientID:     testClientID,
		clientSecret: testClientSecret,
		code:         code,
		grantType:    wechatgrant.DefaultGrantType,
		codeParam:    wechatgrant.DefaultCodeParam,
		verify:       true,
	}
	return exchangeCode(context.Background(), tb.server.Client(), opts)
}

func TestBridge_CodeExchange(t *testing.T) {
	t.Parallel()
	tb := startTestBridge(t, "")

	res, err := tb.exchange(t, "good-code")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "acct-1", res.Claims["sub"])
	assert.Equal(t, "o-1", res.Claims[wechatgrant.ClaimOpenID])
	assert.Equal(t, "u-1", res.Claims[wechatgrant.ClaimUnionID])
	assert.Equal(t, "t-1", res.Claims[wechatgrant.ClaimTenantID])
	assert.Equal(t, []any{wechatgrant.AuthMethod}, res.Claims["amr"])

	tb.notifier.Wait()
	got := tb.receiver.received()
	require.Len(t, got, 1)
	assert.Equal(t, "acct-1", got[0].AccountID)
	assert.Equal(t, "o-1", got[0].ExternalID)
	assert.Equal(t, testClientID, got[0].ClientID)
	assert.Equal(t, 1.0, testutil.ToFloat64(
		tb.metrics.EventDeliveriesTotal.WithLabelValues("webhook:audit", metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		tb.metrics.GrantsTotal.WithLabelValues(wechatgrant.DefaultGrantType, metrics.ResultSuccess, "")))
}

func TestBridge_CodeExchangeRejected(t *testing.T) {
	t.Parallel()
	tb := startTestBridge(t, "")

	tests := []struct {
		name string
		code string
	}{
		{name: "invalid code", code: "bad-code"},
		{name: "unlinked openid", code: "stranger-code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tb.exchange(t, tt.code)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid_grant")
		})
	}

	tb.notifier.Wait()
	assert.Empty(t, tb.receiver.received())
}

func TestBridge_Callback(t *testing.T) {
	t.Parallel()
	tb := startTestBridge(t, "")

	query := url.Values{
		"signature": {wechat.Sign(testCallbackTok, "1700000000", "n-1")},
		"timestamp": {"1700000000"},
		"nonce":     {"n-1"},
		"echostr":   {"echo-me"},
	}

	resp, err := tb.server.Client().Get(tb.server.URL + config.DefaultCallbackPath + "?" + query.Encode())
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "echo-me", string(body))

	query.Set("signature", "deadbeef")
	resp, err = tb.server.Client().Get(tb.server.URL + config.DefaultCallbackPath + "?" + query.Encode())
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.NotContains(t, string(body), "echo-me")

	assert.Equal(t, 1.0, testutil.ToFloat64(
		tb.metrics.CallbackVerificationsTotal.WithLabelValues(metrics.ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(
		tb.metrics.CallbackVerificationsTotal.WithLabelValues(metrics.ResultMismatch)))
}

func TestBridge_Routes(t *testing.T) {
	t.Parallel()
	tb := startTestBridge(t, "")

	tests := []struct {
		path string
		want int
	}{
		{path: "/healthz", want: http.StatusNoContent},
		{path: config.DefaultMetricsPath, want: http.StatusOK},
		{path: "/.well-known/openid-configuration", want: http.StatusOK},
		{path: "/.well-known/jwks.json", want: http.StatusOK},
		{path: "/connect/authorize", want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			resp, err := tb.server.Client().Get(tb.server.URL + tt.path)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestBridge_SubscribeWithRedisTokenCache(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	tb := startTestBridge(t, fmt.Sprintf(`token_cache:
  backend: redis
  redis:
    addrs: [%s]
`, mr.Addr()))
	require.NotNil(t, tb.redis)

	ctx := context.Background()
	for range 2 {
		require.NoError(t, tb.messenger.Send(ctx, wechat.SendRequest{
			AccountID:  "acct-1",
			TemplateID: "tmpl",
			Data:       map[string]wechat.DataValue{"thing1": {Value: "hi"}},
		}))
	}
	// Unlinked accounts are skipped without a platform call.
	require.NoError(t, tb.messenger.Send(ctx, wechat.SendRequest{AccountID: "nobody", TemplateID: "tmpl"}))

	assert.Equal(t, int32(2), tb.platform.sends.Load())
	assert.Equal(t, int32(1), tb.platform.tokens.Load())
	assert.NotEmpty(t, mr.Keys())
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "wx-secret")
	}
}

func TestNewBridge_RedisUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	path := writeTestConfig(t, "https://id.example.com", "https://api.example.com", fmt.Sprintf(`token_cache:
  backend: redis
  redis:
    addrs: [%s]
`, addr))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	_, err = newBridge(context.Background(), cfg, slog.New(slog.DiscardHandler),
		withRecorder(metrics.NewNoopMetrics()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}
