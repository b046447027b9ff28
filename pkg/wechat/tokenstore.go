// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned by a TokenStore that holds no entry for a key.
var ErrTokenNotFound = errors.New("access token not found")

// TokenStore persists access tokens per credential pair. Writes replace the
// whole entry for a key; concurrent writers race and the last one wins.
type TokenStore interface {
	Get(ctx context.Context, appID, appSecret string) (*AccessToken, error)
	Set(ctx context.Context, appID, appSecret string, tok *AccessToken, ttl time.Duration) error
	Delete(ctx context.Context, appID, appSecret string) error
}

// cacheKey identifies a credential pair without embedding the secret.
func cacheKey(appID, appSecret string) string {
	sum := sha256.Sum256([]byte(appID + ":" + appSecret))
	return appID + ":" + hex.EncodeToString(sum[:])[:16]
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]AccessToken
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]AccessToken)}
}

// Get returns a copy of the stored token.
func (s *MemoryTokenStore) Get(_ context.Context, appID, appSecret string) (*AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[cacheKey(appID, appSecret)]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &tok, nil
}

// Set stores a copy of tok. The ttl is ignored; expiry is checked on read.
func (s *MemoryTokenStore) Set(_ context.Context, appID, appSecret string, tok *AccessToken, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[cacheKey(appID, appSecret)] = *tok
	return nil
}

// Delete removes the entry.
func (s *MemoryTokenStore) Delete(_ context.Context, appID, appSecret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, cacheKey(appID, appSecret))
	return nil
}

// DefaultRedisKeyPrefix namespaces token keys.
const DefaultRedisKeyPrefix = "wxbridge:"

// RedisTokenStore shares tokens between bridge replicas.
type RedisTokenStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ TokenStore = (*RedisTokenStore)(nil)

// NewRedisTokenStore wraps an existing client. An empty prefix uses DefaultRedisKeyPrefix.
func NewRedisTokenStore(client redis.UniversalClient, keyPrefix string) *RedisTokenStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisTokenStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisTokenStore) key(appID, appSecret string) string {
	return s.keyPrefix + "token:" + cacheKey(appID, appSecret)
}

// Get loads the token.
func (s *RedisTokenStore) Get(ctx context.Context, appID, appSecret string) (*AccessToken, error) {
	data, err := s.client.Get(ctx, s.key(appID, appSecret)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read access token: %w", err)
	}

	var tok AccessToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode access token: %w", err)
	}
	return &tok, nil
}

// Set stores the token with ttl. A non-positive ttl is rejected because Redis
// would keep the key forever.
func (s *RedisTokenStore) Set(ctx context.Context, appID, appSecret string, tok *AccessToken, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("refusing to cache access token with non-positive ttl %s", ttl)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode access token: %w", err)
	}
	if err := s.client.Set(ctx, s.key(appID, appSecret), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write access token: %w", err)
	}
	return nil
}

// Delete removes the token.
func (s *RedisTokenStore) Delete(ctx context.Context, appID, appSecret string) error {
	if err := s.client.Del(ctx, s.key(appID, appSecret)).Err(); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}
