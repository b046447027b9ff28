// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stacklok/wxbridge/pkg/authserver/keys"
)

// Cache-Control max-age for the well-known documents, in seconds.
const (
	DefaultJWKSCacheMaxAge      = 3600
	DefaultDiscoveryCacheMaxAge = 3600
)

// DiscoveryDocument is the subset of OpenID provider metadata the server
// can honour.
type DiscoveryDocument struct {
	Issuer                            string   `json:"issuer"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	UILocalesSupported                []string `json:"ui_locales_supported"`
}

// JWKSHandler handles GET /.well-known/jwks.json.
func (s *Server) JWKSHandler(w http.ResponseWriter, r *http.Request) {
	set, err := keys.PublicJWKS(r.Context(), s.keys)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to load public keys", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeWellKnown(w, set, DefaultJWKSCacheMaxAge)
}

// DiscoveryHandler handles GET /.well-known/openid-configuration.
func (s *Server) DiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := s.discovery(r)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to build discovery document", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeWellKnown(w, doc, DefaultDiscoveryCacheMaxAge)
}

func (s *Server) discovery(r *http.Request) (*DiscoveryDocument, error) {
	pubs, err := s.keys.PublicKeys(r.Context())
	if err != nil {
		return nil, err
	}
	var algs []string
	seen := map[string]bool{}
	for _, k := range pubs {
		if !seen[k.Algorithm] {
			seen[k.Algorithm] = true
			algs = append(algs, k.Algorithm)
		}
	}

	grantTypes := make([]string, 0, len(s.grants))
	for _, g := range s.grants {
		grantTypes = append(grantTypes, g.GrantType())
	}

	locales := make([]string, 0, len(supportedLanguages))
	for _, tag := range supportedLanguages {
		locales = append(locales, tag.String())
	}

	return &DiscoveryDocument{
		Issuer:                            s.issuer,
		TokenEndpoint:                     s.issuer + TokenPath,
		JWKSURI:                           s.issuer + JWKSPath,
		GrantTypesSupported:               grantTypes,
		ResponseTypesSupported:            []string{},
		SubjectTypesSupported:             []string{"public"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		IDTokenSigningAlgValuesSupported:  algs,
		UILocalesSupported:                locales,
	}, nil
}

func writeWellKnown(w http.ResponseWriter, v any, maxAge int) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	_, _ = w.Write(data)
}
