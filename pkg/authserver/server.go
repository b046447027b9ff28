// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/ory/fosite"

	"github.com/stacklok/wxbridge/pkg/authserver/keys"
	"github.com/stacklok/wxbridge/pkg/logger"
)

// Endpoint paths served by Server.
const (
	TokenPath     = "/connect/token"
	JWKSPath      = "/.well-known/jwks.json"
	DiscoveryPath = "/.well-known/openid-configuration"
)

// Server is the token endpoint together with its discovery documents.
type Server struct {
	issuer   string
	provider fosite.OAuth2Provider
	keys     keys.Provider
	grants   []ExtensionGrant
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*serverOptions)

type serverOptions struct {
	grants      []ExtensionGrant
	logger      *slog.Logger
	keyProvider keys.Provider
}

// WithGrant registers an extension grant under its GrantType.
func WithGrant(g ExtensionGrant) Option {
	return func(o *serverOptions) {
		o.grants = append(o.grants, g)
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serverOptions) {
		o.logger = l
	}
}

// WithKeyProvider replaces the provider built from Config.Keys.
func WithKeyProvider(p keys.Provider) Option {
	return func(o *serverOptions) {
		o.keyProvider = p
	}
}

// New validates cfg and builds a Server. At least one grant is required and
// grant types must be unique.
func New(ctx context.Context, cfg Config, opts ...Option) (*Server, error) {
	o := &serverOptions{}
	for _, opt := range opts {
		opt(o)
	}
	l := logger.OrDefault(o.logger)

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if len(o.grants) == 0 {
		return nil, fmt.Errorf("at least one extension grant is required")
	}
	grantTypes := make([]string, 0, len(o.grants))
	for _, g := range o.grants {
		if g.GrantType() == "" {
			return nil, fmt.Errorf("extension grant has an empty grant type")
		}
		if slices.Contains(grantTypes, g.GrantType()) {
			return nil, fmt.Errorf("grant type %q registered twice", g.GrantType())
		}
		grantTypes = append(grantTypes, g.GrantType())
	}

	kp := o.keyProvider
	if kp == nil {
		var err error
		if kp, err = keys.NewProvider(cfg.Keys, l); err != nil {
			return nil, fmt.Errorf("failed to create key provider: %w", err)
		}
	}
	signingKey, err := kp.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get signing key: %w", err)
	}

	fcfg := newFositeConfig(&cfg)
	store, err := newClientStore(ctx, fcfg, cfg.Clients, grantTypes)
	if err != nil {
		return nil, err
	}

	l.Debug("token endpoint configured",
		"issuer", cfg.Issuer,
		"grant_types", grantTypes,
		"clients", len(cfg.Clients),
		"key_id", signingKey.KeyID,
	)

	return &Server{
		issuer:   cfg.Issuer,
		provider: newProvider(fcfg, store, signingKey, o.grants, l),
		keys:     kp,
		grants:   o.grants,
		logger:   l,
	}, nil
}

// Routes mounts the token and well-known endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Post(TokenPath, s.TokenHandler)
	r.Get(JWKSPath, s.JWKSHandler)
	r.Get(DiscoveryPath, s.DiscoveryHandler)
}

// Handler returns a router serving only this server's endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// TokenHandler handles POST /connect/token.
func (s *Server) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := WithLanguage(r.Context(), MatchLanguage(r.Header.Get("Accept-Language")))

	accessRequest, err := s.provider.NewAccessRequest(ctx, r, newSession())
	if err != nil {
		s.logRejection(ctx, "token request rejected", err)
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	response, err := s.provider.NewAccessResponse(ctx, accessRequest)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create access response", "error", err)
		s.provider.WriteAccessError(ctx, w, accessRequest, err)
		return
	}

	s.logger.InfoContext(ctx, "access token issued",
		"client_id", accessRequest.GetClient().GetID(),
		"grant_type", accessRequest.GetGrantTypes(),
		"subject", accessRequest.GetSession().GetSubject(),
	)
	s.provider.WriteAccessResponse(ctx, w, accessRequest, response)
}

func (s *Server) logRejection(ctx context.Context, msg string, err error) {
	rfcErr := fosite.ErrorToRFC6749Error(err)
	level := slog.LevelInfo
	if rfcErr.CodeField >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, msg,
		"error", rfcErr.ErrorField,
		"hint", rfcErr.HintField,
		"debug", rfcErr.DebugField,
	)
}
