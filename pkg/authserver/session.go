// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"github.com/ory/fosite/handler/oauth2"
	"github.com/ory/fosite/token/jwt"
)

// Claim names the token endpoint sets itself. Grant claims may not reuse them.
const (
	ClaimAMR      = "amr"
	ClaimClientID = "client_id"
)

var reservedClaims = map[string]struct{}{
	"iss": {}, "sub": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {},
	"scp": {}, "scope": {}, ClaimAMR: {}, ClaimClientID: {},
}

// newSession returns the empty session fosite fills while parsing a request.
func newSession() *oauth2.JWTSession {
	return &oauth2.JWTSession{
		JWTClaims: &jwt.JWTClaims{Extra: map[string]interface{}{}},
		JWTHeader: &jwt.Headers{Extra: map[string]interface{}{}},
	}
}

// applySuccess binds a successful grant result to the session so the JWT
// strategy renders it into the access token.
func applySuccess(sess *oauth2.JWTSession, clientID string, res *GrantSuccess) {
	sess.Subject = res.Subject
	sess.JWTClaims.Subject = res.Subject
	if sess.JWTClaims.Extra == nil {
		sess.JWTClaims.Extra = map[string]interface{}{}
	}
	for _, c := range res.Claims {
		if _, reserved := reservedClaims[c.Type]; reserved {
			continue
		}
		sess.JWTClaims.Extra[c.Type] = c.Value
	}
	if res.AuthMethod != "" {
		sess.JWTClaims.Extra[ClaimAMR] = []string{res.AuthMethod}
	}
	sess.JWTClaims.Extra[ClaimClientID] = clientID
}
