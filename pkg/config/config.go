// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the wxbridge configuration file
// and the logic required to load and validate it.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/wxbridge/pkg/authserver"
	"github.com/stacklok/wxbridge/pkg/authserver/keys"
	"github.com/stacklok/wxbridge/pkg/wechat"
	"github.com/stacklok/wxbridge/pkg/wechatgrant"
	"github.com/stacklok/wxbridge/pkg/webhook"
)

// Defaults applied by Load.
const (
	DefaultAddress         = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCallbackPath    = "/wechat/callback"
	DefaultMetricsPath     = "/metrics"
	DefaultAccountsPath    = "wxbridge.db"
	DefaultEventTimeout    = 10 * time.Second
)

// Account store drivers.
const (
	AccountsDriverMemory = "memory"
	AccountsDriverSQLite = "sqlite"
)

// Token cache backends.
const (
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"
)

// Config is the root of the configuration file.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Issuer     IssuerConfig     `mapstructure:"issuer" yaml:"issuer"`
	WeChat     WeChatConfig     `mapstructure:"wechat" yaml:"wechat"`
	Accounts   AccountsConfig   `mapstructure:"accounts" yaml:"accounts"`
	TokenCache TokenCacheConfig `mapstructure:"token_cache" yaml:"token_cache"`
	Events     EventsConfig     `mapstructure:"events" yaml:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string        `mapstructure:"address" yaml:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// IssuerConfig configures the token endpoint.
type IssuerConfig struct {
	URL                 string         `mapstructure:"url" yaml:"url"`
	HMACSecret          string         `mapstructure:"hmac_secret" yaml:"hmac_secret"`
	AccessTokenLifespan time.Duration  `mapstructure:"access_token_lifespan" yaml:"access_token_lifespan"`
	SigningKeyFile      string         `mapstructure:"signing_key_file" yaml:"signing_key_file"`
	FallbackKeyFiles    []string       `mapstructure:"fallback_key_files" yaml:"fallback_key_files"`
	Clients             []ClientConfig `mapstructure:"clients" yaml:"clients"`
}

// ClientConfig is one registered OAuth client.
type ClientConfig struct {
	ID         string   `mapstructure:"id" yaml:"id"`
	Secret     string   `mapstructure:"secret" yaml:"secret"`
	Public     bool     `mapstructure:"public" yaml:"public"`
	GrantTypes []string `mapstructure:"grant_types" yaml:"grant_types"`
	Scopes     []string `mapstructure:"scopes" yaml:"scopes"`
}

// WeChatConfig identifies the platform application.
type WeChatConfig struct {
	AppID       string          `mapstructure:"app_id" yaml:"app_id"`
	AppSecret   string          `mapstructure:"app_secret" yaml:"app_secret"`
	AppType     string          `mapstructure:"app_type" yaml:"app_type"`
	APIBaseURL  string          `mapstructure:"api_base_url" yaml:"api_base_url"`
	ProviderKey string          `mapstructure:"provider_key" yaml:"provider_key"`
	GrantType   string          `mapstructure:"grant_type" yaml:"grant_type"`
	CodeParam   string          `mapstructure:"code_param" yaml:"code_param"`
	Callback    CallbackConfig  `mapstructure:"callback" yaml:"callback"`
	Subscribe   SubscribeConfig `mapstructure:"subscribe" yaml:"subscribe"`
	HTTP        HTTPConfig      `mapstructure:"http" yaml:"http"`
}

// CallbackConfig enables the callback ownership handshake when Token is set.
type CallbackConfig struct {
	Token string `mapstructure:"token" yaml:"token"`
	Path  string `mapstructure:"path" yaml:"path"`
}

// SubscribeConfig holds defaults for subscribe messages.
type SubscribeConfig struct {
	Lang  string `mapstructure:"lang" yaml:"lang"`
	State string `mapstructure:"state" yaml:"state"`
	// Provider is the login provider whose external id receives messages.
	// Empty uses WeChatConfig.ProviderKey.
	Provider string `mapstructure:"provider" yaml:"provider"`
}

// HTTPConfig tunes the outbound platform client.
type HTTPConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CABundlePath string        `mapstructure:"ca_bundle_path" yaml:"ca_bundle_path"`
	Tracing      bool          `mapstructure:"tracing" yaml:"tracing"`
}

// AccountsConfig selects the account store.
type AccountsConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// TokenCacheConfig selects where platform access tokens are cached.
type TokenCacheConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

// RedisConfig connects to a Redis server or cluster.
type RedisConfig struct {
	Addrs     []string `mapstructure:"addrs" yaml:"addrs"`
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
	DB        int      `mapstructure:"db" yaml:"db"`
	KeyPrefix string   `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// EventsConfig routes login events.
type EventsConfig struct {
	Log      bool            `mapstructure:"log" yaml:"log"`
	Async    bool            `mapstructure:"async" yaml:"async"`
	Timeout  time.Duration   `mapstructure:"timeout" yaml:"timeout"`
	Webhooks []WebhookConfig `mapstructure:"webhooks" yaml:"webhooks"`
}

// WebhookConfig is one event receiver.
type WebhookConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	URL             string        `mapstructure:"url" yaml:"url"`
	Secret          string        `mapstructure:"secret" yaml:"secret"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CABundlePath    string        `mapstructure:"ca_bundle_path" yaml:"ca_bundle_path"`
	AllowPrivateIPs bool          `mapstructure:"allow_private_ips" yaml:"allow_private_ips"`
}

// MetricsConfig exposes Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = DefaultAddress
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	w := &c.WeChat
	if w.AppType == "" {
		w.AppType = string(wechat.AppTypeOfficial)
	}
	if w.APIBaseURL == "" {
		w.APIBaseURL = wechat.DefaultBaseURL
	}
	if w.ProviderKey == "" {
		w.ProviderKey = wechatgrant.DefaultProviderKey
	}
	if w.GrantType == "" {
		w.GrantType = wechatgrant.DefaultGrantType
	}
	if w.CodeParam == "" {
		w.CodeParam = wechatgrant.DefaultCodeParam
	}
	if w.Callback.Path == "" {
		w.Callback.Path = DefaultCallbackPath
	}
	if w.Subscribe.Lang == "" {
		w.Subscribe.Lang = wechat.DefaultSubscribeLang
	}
	if w.Subscribe.State == "" {
		w.Subscribe.State = wechat.DefaultSubscribeState
	}
	if w.Subscribe.Provider == "" {
		w.Subscribe.Provider = w.ProviderKey
	}

	if c.Accounts.Driver == "" {
		c.Accounts.Driver = AccountsDriverMemory
	}
	if c.Accounts.Driver == AccountsDriverSQLite && c.Accounts.Path == "" {
		c.Accounts.Path = DefaultAccountsPath
	}

	if c.TokenCache.Backend == "" {
		c.TokenCache.Backend = TokenCacheMemory
	}
	if c.TokenCache.Redis.KeyPrefix == "" {
		c.TokenCache.Redis.KeyPrefix = wechat.DefaultRedisKeyPrefix
	}

	if c.Events.Timeout == 0 {
		c.Events.Timeout = DefaultEventTimeout
	}
	for i := range c.Events.Webhooks {
		if c.Events.Webhooks[i].Timeout == 0 {
			c.Events.Webhooks[i].Timeout = webhook.DefaultTimeout
		}
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be non-negative"))
	}

	ac := c.AuthServerConfig()
	if err := ac.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("issuer: %w", err))
	}

	gc := c.GrantConfig()
	if err := gc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("wechat: %w", err))
	}
	switch wechat.AppType(c.WeChat.AppType) {
	case wechat.AppTypeOfficial, wechat.AppTypeMiniProgram:
	default:
		errs = append(errs, fmt.Errorf("wechat.app_type must be %q or %q, got %q",
			wechat.AppTypeOfficial, wechat.AppTypeMiniProgram, c.WeChat.AppType))
	}
	if !strings.HasPrefix(c.WeChat.Callback.Path, "/") {
		errs = append(errs, fmt.Errorf("wechat.callback.path must start with /"))
	}
	switch c.WeChat.Subscribe.State {
	case wechat.StateDeveloper, wechat.StateTrial, wechat.StateFormal:
	default:
		errs = append(errs, fmt.Errorf("wechat.subscribe.state %q is not one of developer, trial, formal",
			c.WeChat.Subscribe.State))
	}
	if c.WeChat.HTTP.Timeout < 0 {
		errs = append(errs, errors.New("wechat.http.timeout must be non-negative"))
	}

	switch c.Accounts.Driver {
	case AccountsDriverMemory:
	case AccountsDriverSQLite:
		if c.Accounts.Path == "" {
			errs = append(errs, errors.New("accounts.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("accounts.driver %q is not supported", c.Accounts.Driver))
	}

	switch c.TokenCache.Backend {
	case TokenCacheMemory:
	case TokenCacheRedis:
		if len(c.TokenCache.Redis.Addrs) == 0 {
			errs = append(errs, errors.New("token_cache.redis.addrs is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("token_cache.backend %q is not supported", c.TokenCache.Backend))
	}

	if c.Events.Timeout < 0 {
		errs = append(errs, errors.New("events.timeout must be non-negative"))
	}
	names := make(map[string]struct{}, len(c.Events.Webhooks))
	for i, wc := range c.WebhookConfigs() {
		if err := wc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("events.webhooks[%d]: %w", i, err))
			continue
		}
		if _, dup := names[wc.Name]; dup {
			errs = append(errs, fmt.Errorf("events.webhooks[%d]: duplicate name %q", i, wc.Name))
		}
		names[wc.Name] = struct{}{}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}

	return errors.Join(errs...)
}

// AuthServerConfig converts the issuer section.
func (c *Config) AuthServerConfig() authserver.Config {
	clients := make([]authserver.ClientConfig, 0, len(c.Issuer.Clients))
	for _, cl := range c.Issuer.Clients {
		clients = append(clients, authserver.ClientConfig{
			ID:         cl.ID,
			Secret:     cl.Secret,
			Public:     cl.Public,
			GrantTypes: cl.GrantTypes,
			Scopes:     cl.Scopes,
		})
	}
	return authserver.Config{
		Issuer:              c.Issuer.URL,
		HMACSecret:          []byte(c.Issuer.HMACSecret),
		AccessTokenLifespan: c.Issuer.AccessTokenLifespan,
		Keys: keys.Config{
			SigningKeyFile:   c.Issuer.SigningKeyFile,
			FallbackKeyFiles: c.Issuer.FallbackKeyFiles,
		},
		Clients: clients,
	}
}

// GrantConfig converts the wechat section for the credential exchange grant.
func (c *Config) GrantConfig() wechatgrant.Config {
	return wechatgrant.Config{
		GrantType:   c.WeChat.GrantType,
		ProviderKey: c.WeChat.ProviderKey,
		CodeParam:   c.WeChat.CodeParam,
		AppID:       c.WeChat.AppID,
		AppSecret:   c.WeChat.AppSecret,
	}
}

// SubscribeConfig converts the wechat section for the subscribe messenger.
func (c *Config) SubscribeConfig() wechat.SubscribeConfig {
	return wechat.SubscribeConfig{
		AppID:     c.WeChat.AppID,
		AppSecret: c.WeChat.AppSecret,
		Provider:  c.WeChat.Subscribe.Provider,
	}
}

// WebhookConfigs converts the event webhooks.
func (c *Config) WebhookConfigs() []webhook.Config {
	out := make([]webhook.Config, 0, len(c.Events.Webhooks))
	for _, w := range c.Events.Webhooks {
		out = append(out, webhook.Config{
			Name:            w.Name,
			URL:             w.URL,
			Timeout:         w.Timeout,
			CABundlePath:    w.CABundlePath,
			AllowPrivateIPs: w.AllowPrivateIPs,
		})
	}
	return out
}
