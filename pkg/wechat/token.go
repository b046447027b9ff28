// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"golang.org/x/sync/singleflight"

	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
	"github.com/stacklok/wxbridge/pkg/metrics"
)

const tokenEndpoint = "cgi-bin/token"

// maxExpirySkew is subtracted from the platform-reported lifetime so a token
// is retired before the platform stops accepting it.
const maxExpirySkew = 60 * time.Second

// AccessToken is an application access token and the instant it stops being served.
type AccessToken struct {
	Value     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the token may be handed out at now.
func (t *AccessToken) Valid(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenSource hands out application access tokens.
type TokenSource interface {
	Token(ctx context.Context, appID, appSecret string) (*AccessToken, error)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenProvider caches application access tokens per (appID, appSecret).
//
// A cached token is returned until its expiry instant. The first request
// after expiry fetches a new one; concurrent misses for the same key share a
// single fetch. No lock is held while talking to the platform.
type TokenProvider struct {
	client *Client
	store  TokenStore
	group  singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

var _ TokenSource = (*TokenProvider)(nil)

// TokenProviderOption configures a TokenProvider.
type TokenProviderOption func(*TokenProvider)

// WithTokenStore sets the cache backend. The default is a MemoryTokenStore.
func WithTokenStore(store TokenStore) TokenProviderOption {
	return func(p *TokenProvider) {
		p.store = store
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenProviderOption {
	return func(p *TokenProvider) {
		p.now = now
	}
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(client *Client, opts ...TokenProviderOption) *TokenProvider {
	p := &TokenProvider{
		client: client,
		now:    time.Now,
		logger: client.logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = NewMemoryTokenStore()
	}
	return p
}

// Token returns a valid access token, fetching one from the platform when the
// cache has none. Fetch failures are returned as is; an expired cache entry
// is never used as a fallback.
func (p *TokenProvider) Token(ctx context.Context, appID, appSecret string) (*AccessToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if tok := p.cached(ctx, appID, appSecret); tok != nil {
		p.client.recorder.RecordTokenAcquisition(metrics.ResultHit)
		return tok, nil
	}

	key := cacheKey(appID, appSecret)
	// The shared fetch is detached from the first caller so its cancellation
	// does not fail the others. The HTTP client timeout bounds it.
	detached := context.WithoutCancel(ctx)
	ch := p.group.DoChan(key, func() (any, error) {
		// Another caller may have filled the cache while this one waited.
		if tok := p.cached(detached, appID, appSecret); tok != nil {
			return tok, nil
		}
		return p.fetch(detached, appID, appSecret)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			p.client.recorder.RecordTokenAcquisition(metrics.ResultError)
			return nil, res.Err
		}
		p.client.recorder.RecordTokenAcquisition(metrics.ResultMiss)
		return res.Val.(*AccessToken), nil
	}
}

// Invalidate drops the cached token for the credential pair.
func (p *TokenProvider) Invalidate(ctx context.Context, appID, appSecret string) error {
	if err := p.store.Delete(ctx, appID, appSecret); err != nil {
		return fmt.Errorf("failed to invalidate access token: %w", err)
	}
	return nil
}

func (p *TokenProvider) cached(ctx context.Context, appID, appSecret string) *AccessToken {
	tok, err := p.store.Get(ctx, appID, appSecret)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			p.logger.WarnContext(ctx, "access token cache read failed", "app_id", appID, "error", err)
		}
		return nil
	}
	if !tok.Valid(p.now()) {
		return nil
	}
	return tok
}

func (p *TokenProvider) fetch(ctx context.Context, appID, appSecret string) (*AccessToken, error) {
	query := url.Values{
		"grant_type": {"client_credential"},
		"appid":      {appID},
		"secret":     {appSecret},
	}

	requestedAt := p.now()
	body, err := p.client.call(ctx, tokenEndpoint, query)
	if err != nil {
		return nil, wxerrors.NewUpstreamError("access token acquisition failed", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wxerrors.NewUpstreamError("access token response is malformed", err)
	}
	if resp.AccessToken == "" || resp.ExpiresIn <= 0 {
		return nil, wxerrors.NewUpstreamError("access token response has no token or lifetime", nil)
	}

	tok := &AccessToken{
		Value:     resp.AccessToken,
		ExpiresAt: requestedAt.Add(effectiveLifetime(time.Duration(resp.ExpiresIn) * time.Second)),
	}

	if err := p.store.Set(ctx, appID, appSecret, tok, tok.ExpiresAt.Sub(p.now())); err != nil {
		p.logger.WarnContext(ctx, "access token cache write failed", "app_id", appID, "error", err)
	}
	p.logger.DebugContext(ctx, "acquired access token", "app_id", appID, "expires_at", tok.ExpiresAt)
	return tok, nil
}

// effectiveLifetime shortens lifetime by min(maxExpirySkew, lifetime/2).
func effectiveLifetime(lifetime time.Duration) time.Duration {
	skew := min(maxExpirySkew, lifetime/2)
	return lifetime - skew
}
