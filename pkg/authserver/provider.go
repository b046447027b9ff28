// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
	"github.com/ory/fosite/storage"

	"github.com/stacklok/wxbridge/pkg/authserver/keys"
)

// newFositeConfig maps Config onto fosite's configuration.
func newFositeConfig(cfg *Config) *fosite.Config {
	return &fosite.Config{
		AccessTokenIssuer:   cfg.Issuer,
		AccessTokenLifespan: cfg.AccessTokenLifespan,
		GlobalSecret:        cfg.HMACSecret,
		TokenURL:            cfg.Issuer + TokenPath,
		HashCost:            cfg.BCryptCost,
	}
}

// newClientStore registers the configured clients in fosite's in-memory
// store. Secrets are hashed with the same hasher fosite verifies with.
func newClientStore(ctx context.Context, fcfg *fosite.Config, clients []ClientConfig, grantTypes []string) (*storage.MemoryStore, error) {
	store := storage.NewMemoryStore()
	hasher := &fosite.BCrypt{Config: fcfg}

	for _, c := range clients {
		allowed := c.GrantTypes
		if len(allowed) == 0 {
			allowed = grantTypes
		}
		client := &fosite.DefaultClient{
			ID:         c.ID,
			Public:     c.Public,
			GrantTypes: allowed,
			Scopes:     c.Scopes,
		}
		if !c.Public {
			hashed, err := hasher.Hash(ctx, []byte(c.Secret))
			if err != nil {
				return nil, fmt.Errorf("failed to hash secret for client %s: %w", c.ID, err)
			}
			client.Secret = hashed
		}
		store.Clients[c.ID] = client
	}
	return store, nil
}

// newProvider wires the JWT access token strategy and one token endpoint
// handler per extension grant into a fosite provider. No other grant types
// are enabled.
func newProvider(
	fcfg *fosite.Config,
	store fosite.Storage,
	signingKey *keys.SigningKey,
	grants []ExtensionGrant,
	l *slog.Logger,
) fosite.OAuth2Provider {
	jwk := keys.FositeJWK(signingKey)
	strategy := compose.NewOAuth2JWTStrategy(
		func(context.Context) (interface{}, error) { return jwk, nil },
		compose.NewOAuth2HMACStrategy(fcfg),
		fcfg,
	)

	provider := fosite.NewOAuth2Provider(store, fcfg)
	for _, g := range grants {
		fcfg.TokenEndpointHandlers.Append(&grantHandler{
			grant:    g,
			strategy: strategy,
			config:   fcfg,
			logger:   l,
		})
	}
	return provider
}
