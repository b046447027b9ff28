// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
)

const tokenPath = "/cgi-bin/token"

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialTokens serves tok-1, tok-2, ... with the given lifetime.
func sequentialTokens(t *testing.T, expiresIn int) http.HandlerFunc {
	t.Helper()
	var n atomic.Int32
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "client_credential", q.Get("grant_type"))
		assert.Equal(t, "app", q.Get("appid"))
		assert.Equal(t, "secret", q.Get("secret"))
		jsonHandler(http.StatusOK, fmt.Sprintf(`{"access_token":"tok-%d","expires_in":%d}`, n.Add(1), expiresIn))(w, r)
	}
}

func TestTokenProvider_CachesWithinValidity(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	platform.handle(tokenPath, sequentialTokens(t, 7200))
	client, _ := newTestClient(t, platform)
	clock := newFakeClock()
	provider := NewTokenProvider(client, WithClock(clock.Now))
	ctx := context.Background()

	first, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.Value)
	assert.Equal(t, clock.Now().Add(7200*time.Second-maxExpirySkew), first.ExpiresAt)

	clock.Advance(time.Hour)
	second, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, 1, platform.count(tokenPath))
}

func TestTokenProvider_RefreshesAfterExpiry(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	platform.handle(tokenPath, sequentialTokens(t, 7200))
	client, _ := newTestClient(t, platform)
	clock := newFakeClock()
	provider := NewTokenProvider(client, WithClock(clock.Now))
	ctx := context.Background()

	first, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)

	// exactly at the expiry instant the token is no longer served
	clock.Advance(first.ExpiresAt.Sub(clock.Now()))
	second, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", second.Value)
	assert.Equal(t, 2, platform.count(tokenPath))

	third, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", third.Value)
	assert.Equal(t, 2, platform.count(tokenPath))
}

func TestTokenProvider_KeyedByCredentialPair(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	var n atomic.Int32
	platform.handle(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, fmt.Sprintf(`{"access_token":"%s-%d","expires_in":7200}`,
			r.URL.Query().Get("appid"), n.Add(1)))(w, r)
	})
	client, _ := newTestClient(t, platform)
	provider := NewTokenProvider(client)
	ctx := context.Background()

	a, err := provider.Token(ctx, "app-a", "s")
	require.NoError(t, err)
	b, err := provider.Token(ctx, "app-b", "s")
	require.NoError(t, err)
	a2, err := provider.Token(ctx, "app-a", "other-secret")
	require.NoError(t, err)

	assert.NotEqual(t, a.Value, b.Value)
	assert.NotEqual(t, a.Value, a2.Value)
	assert.Equal(t, 3, platform.count(tokenPath))
}

func TestTokenProvider_FailuresPropagate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", jsonHandler(http.StatusServiceUnavailable, `busy`)},
		{"errcode", jsonHandler(http.StatusOK, `{"errcode":40125,"errmsg":"invalid appsecret"}`)},
		{"no token", jsonHandler(http.StatusOK, `{"expires_in":7200}`)},
		{"no lifetime", jsonHandler(http.StatusOK, `{"access_token":"x"}`)},
		{"malformed", jsonHandler(http.StatusOK, `{`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			platform := newFakePlatform(t)
			platform.handle(tokenPath, tt.handler)
			client, _ := newTestClient(t, platform)
			provider := NewTokenProvider(client)

			tok, err := provider.Token(context.Background(), "app", "secret")
			require.Error(t, err)
			assert.Nil(t, tok)
			assert.True(t, wxerrors.IsUpstream(err))
			assert.Equal(t, 1, platform.count(tokenPath))
		})
	}
}

func TestTokenProvider_NoStaleFallback(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	platform.handle(tokenPath, sequentialTokens(t, 7200))
	client, _ := newTestClient(t, platform)
	clock := newFakeClock()
	provider := NewTokenProvider(client, WithClock(clock.Now))
	ctx := context.Background()

	_, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)

	platform.handle(tokenPath, jsonHandler(http.StatusInternalServerError, `down`))
	clock.Advance(3 * time.Hour)

	tok, err := provider.Token(ctx, "app", "secret")
	require.Error(t, err)
	assert.Nil(t, tok)
}

func TestTokenProvider_ConcurrentMissesShareFetch(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	release := make(chan struct{})
	inner := sequentialTokens(t, 7200)
	platform.handle(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		<-release
		inner(w, r)
	})
	client, _ := newTestClient(t, platform)
	provider := NewTokenProvider(client)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := provider.Token(context.Background(), "app", "secret")
			if assert.NoError(t, err) {
				results[i] = tok.Value
			}
		}()
	}

	require.Eventually(t, func() bool { return platform.count(tokenPath) >= 1 }, 5*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	// Callers that arrived after the shared fetch finished hit the cache,
	// so every caller sees the same token.
	for _, v := range results {
		assert.Equal(t, "tok-1", v)
	}
	assert.Equal(t, 1, platform.count(tokenPath))
}

func TestTokenProvider_CallerCancellation(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	release := make(chan struct{})
	platform.handle(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		<-release
		jsonHandler(http.StatusOK, `{"access_token":"late","expires_in":7200}`)(w, r)
	})
	client, _ := newTestClient(t, platform)
	provider := NewTokenProvider(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := provider.Token(ctx, "app", "secret")
		done <- err
	}()

	require.Eventually(t, func() bool { return platform.count(tokenPath) == 1 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Token did not return after cancellation")
	}

	// The detached fetch still completes and fills the cache.
	close(release)
	require.Eventually(t, func() bool {
		tok, err := provider.Token(context.Background(), "app", "secret")
		return err == nil && tok.Value == "late"
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, platform.count(tokenPath))
}

func TestTokenProvider_Invalidate(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	platform.handle(tokenPath, sequentialTokens(t, 7200))
	client, _ := newTestClient(t, platform)
	provider := NewTokenProvider(client)
	ctx := context.Background()

	_, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	require.NoError(t, provider.Invalidate(ctx, "app", "secret"))

	tok, err := provider.Token(ctx, "app", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok.Value)
}

func TestTokenProvider_RedisStoreSharedAcrossProviders(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	platform := newFakePlatform(t)
	platform.handle(tokenPath, sequentialTokens(t, 7200))
	client, _ := newTestClient(t, platform)
	ctx := context.Background()

	replicaA := NewTokenProvider(client, WithTokenStore(NewRedisTokenStore(rdb, "test:")))
	replicaB := NewTokenProvider(client, WithTokenStore(NewRedisTokenStore(rdb, "test:")))

	a, err := replicaA.Token(ctx, "app", "secret")
	require.NoError(t, err)
	b, err := replicaB.Token(ctx, "app", "secret")
	require.NoError(t, err)

	assert.Equal(t, a.Value, b.Value)
	assert.Equal(t, 1, platform.count(tokenPath))
}

func TestEffectiveLifetime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lifetime time.Duration
		want     time.Duration
	}{
		{7200 * time.Second, 7200*time.Second - maxExpirySkew},
		{120 * time.Second, 60 * time.Second},
		{60 * time.Second, 30 * time.Second},
		{1 * time.Second, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, effectiveLifetime(tt.lifetime), "lifetime %s", tt.lifetime)
	}
}

func TestAccessToken_Valid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var nilTok *AccessToken
	assert.False(t, nilTok.Valid(now))
	assert.False(t, (&AccessToken{ExpiresAt: now.Add(time.Hour)}).Valid(now))
	assert.False(t, (&AccessToken{Value: "x", ExpiresAt: now}).Valid(now))
	assert.True(t, (&AccessToken{Value: "x", ExpiresAt: now.Add(time.Nanosecond)}).Valid(now))
}
