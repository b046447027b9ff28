// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"net/url"
)

// ExtensionGrant validates one named OAuth2 extension grant. The server
// calls Validate only for requests whose grant_type equals GrantType, but an
// implementation must still check it itself. Implementations are called
// concurrently.
type ExtensionGrant interface {
	GrantType() string
	Validate(ctx context.Context, req *TokenRequest) GrantResult
}

// TokenRequest is the raw token endpoint request handed to a grant.
type TokenRequest struct {
	// GrantType is the grant_type parameter as sent.
	GrantType string
	// Form holds every posted parameter.
	Form url.Values
	// ClientID is the authenticated client.
	ClientID string
}

// Param returns the first value of name in the form.
func (r *TokenRequest) Param(name string) string {
	return r.Form.Get(name)
}

// GrantResult is either a *GrantSuccess or a *GrantFailure.
type GrantResult interface {
	grantResult()
}

// Claim is one typed value placed into the issued access token.
type Claim struct {
	Type  string
	Value string
}

// GrantSuccess carries the identity the token is issued for.
type GrantSuccess struct {
	// Subject becomes the "sub" claim.
	Subject string
	// AuthMethod becomes the "amr" claim.
	AuthMethod string
	Claims     []Claim
}

// FailureKind is the OAuth2 error code a failure maps to.
type FailureKind string

// FailureInvalidGrant maps to the invalid_grant error.
const FailureInvalidGrant FailureKind = "invalid_grant"

// GrantFailure rejects the exchange. Message is a catalog key that is
// localized before it reaches the client.
type GrantFailure struct {
	Kind    FailureKind
	Message string
}

func (*GrantSuccess) grantResult() {}
func (*GrantFailure) grantResult() {}

// Success builds a successful result.
func Success(subject, authMethod string, claims ...Claim) *GrantSuccess {
	return &GrantSuccess{Subject: subject, AuthMethod: authMethod, Claims: claims}
}

// InvalidGrant builds an invalid_grant failure.
func InvalidGrant(message string) *GrantFailure {
	return &GrantFailure{Kind: FailureInvalidGrant, Message: message}
}
