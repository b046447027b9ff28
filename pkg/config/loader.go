// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. WXBRIDGE_WECHAT_APP_SECRET
// overrides wechat.app_secret.
const EnvPrefix = "WXBRIDGE"

// envKeys are bound explicitly so they can be set from the environment even
// when the file omits them.
var envKeys = []string{
	"server.address",
	"server.shutdown_timeout",
	"issuer.url",
	"issuer.hmac_secret",
	"issuer.access_token_lifespan",
	"issuer.signing_key_file",
	"wechat.app_id",
	"wechat.app_secret",
	"wechat.app_type",
	"wechat.api_base_url",
	"wechat.provider_key",
	"wechat.grant_type",
	"wechat.code_param",
	"wechat.callback.token",
	"wechat.callback.path",
	"wechat.subscribe.lang",
	"wechat.subscribe.state",
	"wechat.subscribe.provider",
	"wechat.http.timeout",
	"wechat.http.ca_bundle_path",
	"wechat.http.tracing",
	"accounts.driver",
	"accounts.path",
	"token_cache.backend",
	"token_cache.redis.addrs",
	"token_cache.redis.username",
	"token_cache.redis.password",
	"token_cache.redis.db",
	"token_cache.redis.key_prefix",
	"events.log",
	"events.async",
	"events.timeout",
	"metrics.enabled",
	"metrics.path",
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithViper(viper.New(), path)
}

// LoadWithViper is Load with a caller-supplied viper instance.
func LoadWithViper(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("no configuration file specified, use --config flag")
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	v.SetDefault("events.log", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

const redacted = "REDACTED"

// Redacted returns the configuration as YAML with every secret masked.
func (c *Config) Redacted() ([]byte, error) {
	out := *c
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&out.Issuer.HMACSecret)
	mask(&out.WeChat.AppSecret)
	mask(&out.WeChat.Callback.Token)
	mask(&out.TokenCache.Redis.Password)

	out.Issuer.Clients = append([]ClientConfig(nil), c.Issuer.Clients...)
	for i := range out.Issuer.Clients {
		mask(&out.Issuer.Clients[i].Secret)
	}
	out.Events.Webhooks = append([]WebhookConfig(nil), c.Events.Webhooks...)
	for i := range out.Events.Webhooks {
		mask(&out.Events.Webhooks[i].Secret)
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}
