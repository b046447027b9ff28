// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertError(t *testing.T, err error, wantErr bool, errMsg string) {
	t.Helper()
	if !wantErr {
		assert.NoError(t, err)
		return
	}
	require.Error(t, err)
	if errMsg != "" {
		assert.Contains(t, err.Error(), errMsg)
	}
}

func TestClientConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		client  ClientConfig
		wantErr bool
		errMsg  string
	}{
		{name: "missing client ID", client: ClientConfig{Secret: "s"}, wantErr: true, errMsg: "client id is required"},
		{name: "confidential without secret", client: ClientConfig{ID: "c"}, wantErr: true, errMsg: "secret is required"},
		{name: "public with secret", client: ClientConfig{ID: "c", Public: true, Secret: "s"}, wantErr: true, errMsg: "must not have a secret"},

		{name: "valid confidential", client: ClientConfig{ID: "c", Secret: "s"}},
		{name: "valid public", client: ClientConfig{ID: "c", Public: true}},
		{name: "valid with grant restriction", client: ClientConfig{ID: "c", Secret: "s", GrantTypes: []string{"wechat_official"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assertError(t, tt.client.Validate(), tt.wantErr, tt.errMsg)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Issuer:     "https://id.example.com",
			HMACSecret: testHMACSecret,
			Clients:    []ClientConfig{{ID: "a", Secret: "s"}},
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "valid with path", modify: func(c *Config) { c.Issuer = "https://example.com/identity" }},
		{name: "missing issuer", modify: func(c *Config) { c.Issuer = "" }, wantErr: true, errMsg: "issuer is required"},
		{name: "relative issuer", modify: func(c *Config) { c.Issuer = "/identity" }, wantErr: true, errMsg: "absolute URL"},
		{name: "issuer with query", modify: func(c *Config) { c.Issuer = "https://example.com?x=1" }, wantErr: true, errMsg: "query or fragment"},
		{name: "short secret", modify: func(c *Config) { c.HMACSecret = []byte("too-short") }, wantErr: true, errMsg: "at least 32 bytes"},
		{name: "negative lifespan", modify: func(c *Config) { c.AccessTokenLifespan = -time.Second }, wantErr: true, errMsg: "non-negative"},
		{name: "invalid client", modify: func(c *Config) { c.Clients[0].Secret = "" }, wantErr: true, errMsg: "client 0"},
		{
			name: "duplicate client",
			modify: func(c *Config) {
				c.Clients = append(c.Clients, ClientConfig{ID: "a", Public: true})
			},
			wantErr: true,
			errMsg:  "duplicate client id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.modify(&cfg)
			assertError(t, cfg.Validate(), tt.wantErr, tt.errMsg)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{Issuer: "https://id.example.com/"}
	cfg.applyDefaults()
	assert.Equal(t, "https://id.example.com", cfg.Issuer)
	assert.Equal(t, DefaultAccessTokenLifespan, cfg.AccessTokenLifespan)

	cfg = Config{AccessTokenLifespan: 5 * time.Minute}
	cfg.applyDefaults()
	assert.Equal(t, 5*time.Minute, cfg.AccessTokenLifespan)
}
