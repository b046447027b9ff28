// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/wxbridge/pkg/authserver/keys"
)

// MinSecretLength is the minimum HMAC secret size in bytes.
const MinSecretLength = 32

// DefaultAccessTokenLifespan applies when Config.AccessTokenLifespan is zero.
const DefaultAccessTokenLifespan = time.Hour

// Config configures the token endpoint.
type Config struct {
	// Issuer is the "iss" claim and the base of advertised endpoint URLs.
	Issuer string

	// HMACSecret keys fosite's opaque token strategy. It must be at least
	// MinSecretLength bytes and identical on every replica.
	HMACSecret []byte

	// AccessTokenLifespan is how long issued tokens are valid.
	AccessTokenLifespan time.Duration

	// Keys selects the signing key source.
	Keys keys.Config

	// Clients are the statically registered OAuth clients.
	Clients []ClientConfig

	// BCryptCost is the work factor for hashing client secrets at startup.
	// Zero uses fosite's default.
	BCryptCost int
}

// ClientConfig is one registered OAuth client.
type ClientConfig struct {
	ID string
	// Secret is required unless Public is set.
	Secret string
	// Public clients do not authenticate.
	Public bool
	// GrantTypes limits which grants the client may use. Empty allows every
	// registered grant.
	GrantTypes []string
	Scopes     []string
}

func (c *Config) applyDefaults() {
	c.Issuer = strings.TrimSuffix(c.Issuer, "/")
	if c.AccessTokenLifespan == 0 {
		c.AccessTokenLifespan = DefaultAccessTokenLifespan
	}
}

// Validate checks that the Config is usable.
func (c *Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL, got %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment")
	}
	if len(c.HMACSecret) < MinSecretLength {
		return fmt.Errorf("HMAC secret must be at least %d bytes", MinSecretLength)
	}
	if c.AccessTokenLifespan < 0 {
		return fmt.Errorf("access token lifespan must be non-negative")
	}

	seen := make(map[string]struct{}, len(c.Clients))
	for i := range c.Clients {
		client := &c.Clients[i]
		if err := client.Validate(); err != nil {
			return fmt.Errorf("client %d: %w", i, err)
		}
		if _, dup := seen[client.ID]; dup {
			return fmt.Errorf("client %d: duplicate client id %q", i, client.ID)
		}
		seen[client.ID] = struct{}{}
	}
	return nil
}

// Validate checks that the ClientConfig is usable.
func (c *ClientConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("client id is required")
	}
	if !c.Public && c.Secret == "" {
		return fmt.Errorf("secret is required for confidential clients")
	}
	if c.Public && c.Secret != "" {
		return fmt.Errorf("public clients must not have a secret")
	}
	return nil
}
