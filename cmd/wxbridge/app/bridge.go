// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/wxbridge/pkg/accounts"
	"github.com/stacklok/wxbridge/pkg/accounts/sqlite"
	"github.com/stacklok/wxbridge/pkg/authserver"
	"github.com/stacklok/wxbridge/pkg/config"
	"github.com/stacklok/wxbridge/pkg/events"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/networking"
	"github.com/stacklok/wxbridge/pkg/pipeline"
	"github.com/stacklok/wxbridge/pkg/webhook"
	"github.com/stacklok/wxbridge/pkg/wechat"
	"github.com/stacklok/wxbridge/pkg/wechatgrant"
)

const serverRequestTimeout = 30 * time.Second

// bridge holds every long-lived component built from the configuration.
type bridge struct {
	cfg       *config.Config
	logger    *slog.Logger
	recorder  metrics.Recorder
	accounts  accounts.Store
	redis     redis.UniversalClient
	client    *wechat.Client
	tokens    *wechat.TokenProvider
	messenger *wechat.SubscribeMessenger
	notifier  *events.Notifier
	auth      *authserver.Server
}

// bridgeOption adjusts a bridge under construction, mainly for tests.
type bridgeOption func(*bridgeDeps)

type bridgeDeps struct {
	recorder metrics.Recorder
	store    accounts.Store
}

func withRecorder(r metrics.Recorder) bridgeOption {
	return func(d *bridgeDeps) { d.recorder = r }
}

func withAccountStore(s accounts.Store) bridgeOption {
	return func(d *bridgeDeps) { d.store = s }
}

// newBridge wires the platform client, caches, stores, event sinks and the
// token endpoint. Callers must Close the result.
func newBridge(ctx context.Context, cfg *config.Config, l *slog.Logger, opts ...bridgeOption) (_ *bridge, err error) {
	deps := &bridgeDeps{}
	for _, opt := range opts {
		opt(deps)
	}

	b := &bridge{cfg: cfg, logger: l}
	defer func() {
		if err != nil {
			_ = b.Close()
		}
	}()

	b.recorder = deps.recorder
	if b.recorder == nil {
		b.recorder = metrics.Init(cfg.Metrics.Enabled)
	}

	if deps.store != nil {
		b.accounts = deps.store
	} else if b.accounts, err = openAccountStore(ctx, cfg.Accounts); err != nil {
		return nil, err
	}

	if b.client, err = newWeChatClient(cfg.WeChat, l, b.recorder); err != nil {
		return nil, err
	}

	var store wechat.TokenStore
	if store, b.redis, err = openTokenStore(ctx, cfg.TokenCache); err != nil {
		return nil, err
	}
	b.tokens = wechat.NewTokenProvider(b.client, wechat.WithTokenStore(store))
	b.messenger = wechat.NewSubscribeMessenger(b.client, b.tokens, b.accounts, cfg.SubscribeConfig())

	if b.notifier, err = newNotifier(cfg, l, b.recorder); err != nil {
		return nil, err
	}

	resolver, err := wechat.NewResolver(wechat.AppType(cfg.WeChat.AppType), b.client)
	if err != nil {
		return nil, err
	}
	grant, err := wechatgrant.New(cfg.GrantConfig(), resolver, b.accounts,
		wechatgrant.WithNotifier(b.notifier),
		wechatgrant.WithRecorder(b.recorder),
		wechatgrant.WithLogger(l.With("component", "wechatgrant")),
	)
	if err != nil {
		return nil, err
	}

	if b.auth, err = authserver.New(ctx, cfg.AuthServerConfig(),
		authserver.WithGrant(grant),
		authserver.WithLogger(l.With("component", "authserver")),
	); err != nil {
		return nil, fmt.Errorf("failed to create token endpoint: %w", err)
	}
	return b, nil
}

func openAccountStore(ctx context.Context, cfg config.AccountsConfig) (accounts.Store, error) {
	switch cfg.Driver {
	case config.AccountsDriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open account store: %w", err)
		}
		return store, nil
	default:
		return accounts.NewMemoryStore(), nil
	}
}

// openTokenStore returns the platform token cache. The redis client is nil
// for the memory backend.
func openTokenStore(ctx context.Context, cfg config.TokenCacheConfig) (wechat.TokenStore, redis.UniversalClient, error) {
	if cfg.Backend != config.TokenCacheRedis {
		return wechat.NewMemoryTokenStore(), nil, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return wechat.NewRedisTokenStore(client, cfg.Redis.KeyPrefix), client, nil
}

func newWeChatClient(cfg config.WeChatConfig, l *slog.Logger, r metrics.Recorder) (*wechat.Client, error) {
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid wechat.api_base_url: %w", err)
	}
	plainHTTP := u.Scheme == "http"
	if plainHTTP {
		l.Warn("platform API base URL is not HTTPS, allowing plain HTTP and private addresses",
			"api_base_url", cfg.APIBaseURL)
	}

	httpClient, err := networking.NewHttpClientBuilder().
		WithTimeout(cfg.HTTP.Timeout).
		WithCABundle(cfg.HTTP.CABundlePath).
		WithInsecureHTTP(plainHTTP).
		WithPrivateIPs(plainHTTP).
		WithTracing(cfg.HTTP.Tracing).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build platform HTTP client: %w", err)
	}

	return wechat.NewClient(
		wechat.WithBaseURL(cfg.APIBaseURL),
		wechat.WithHTTPClient(httpClient),
		wechat.WithLogger(l),
		wechat.WithRecorder(r),
	)
}

func newNotifier(cfg *config.Config, l *slog.Logger, r metrics.Recorder) (*events.Notifier, error) {
	var sinks events.Multi
	if cfg.Events.Log {
		sinks = append(sinks, events.NewLogSink(l.With("component", "events")))
	}
	for i, wc := range cfg.WebhookConfigs() {
		client, err := webhook.NewClient(wc, []byte(cfg.Events.Webhooks[i].Secret))
		if err != nil {
			return nil, fmt.Errorf("events.webhooks[%d]: %w", i, err)
		}
		sinks = append(sinks, events.NewWebhookSink(client))
	}

	opts := []events.SafeOption{
		events.WithSafeLogger(l.With("component", "events")),
		events.WithSafeRecorder(r),
	}
	if cfg.Events.Async {
		opts = append(opts, events.WithAsync(cfg.Events.Timeout))
	}

	var sink events.Sink = events.Discard{}
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = sinks
	}
	return events.Safe(sink, opts...), nil
}

// handler builds the HTTP surface: the callback handshake runs ahead of
// routing, then the token endpoint, metrics and health routes.
func (b *bridge) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
	)

	b.auth.Routes(r)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if b.cfg.Metrics.Enabled {
		r.Handle(b.cfg.Metrics.Path, promhttp.Handler())
	}

	var interceptors []pipeline.Interceptor
	if cb := b.cfg.WeChat.Callback; cb.Token != "" {
		interceptors = append(interceptors, wechat.NewCallbackVerifier(cb.Path, cb.Token,
			wechat.WithCallbackLogger(b.logger.With("component", "callback")),
			wechat.WithCallbackRecorder(b.recorder),
		))
	}
	return pipeline.New(interceptors, pipeline.WithLogger(b.logger)).Then(r)
}

// Close waits for pending event deliveries and releases stores.
func (b *bridge) Close() error {
	if b.notifier != nil {
		b.notifier.Wait()
	}

	var errs []error
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis client: %w", err))
		}
	}
	if b.accounts != nil {
		if err := b.accounts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close account store: %w", err))
		}
	}
	return errors.Join(errs...)
}
