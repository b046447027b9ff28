// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package authserver hosts an OAuth 2.0 token endpoint, built on ory/fosite,
// that issues JWT access tokens through named extension grants.
//
// Grants implement [ExtensionGrant] and are registered with [WithGrant]:
//
//	srv, err := authserver.New(ctx, cfg, authserver.WithGrant(grant))
//	if err != nil {
//	    return err
//	}
//	srv.Routes(router)
//
// The server exposes:
//   - POST /connect/token
//   - GET /.well-known/jwks.json
//   - GET /.well-known/openid-configuration
//
// Only the registered grants are enabled. There is no authorize, refresh,
// introspection or client registration endpoint. Issued tokens carry the
// grant's subject as "sub", its authentication method as "amr", and each
// grant claim as a top-level private claim keyed by claim type.
//
// invalid_grant hints are localized from Accept-Language (English and
// Simplified Chinese).
package authserver
