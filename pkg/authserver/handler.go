// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/ory/fosite"
	"github.com/ory/fosite/handler/oauth2"
)

// grantHandler adapts an ExtensionGrant to fosite's token endpoint.
// Access tokens are self-contained JWTs and are not persisted.
type grantHandler struct {
	grant    ExtensionGrant
	strategy oauth2.AccessTokenStrategy
	config   *fosite.Config
	logger   *slog.Logger
}

var _ fosite.TokenEndpointHandler = (*grantHandler)(nil)

func (h *grantHandler) grantType() fosite.GrantType {
	return fosite.GrantType(h.grant.GrantType())
}

// CanSkipClientAuth implements fosite.TokenEndpointHandler.
func (*grantHandler) CanSkipClientAuth(context.Context, fosite.AccessRequester) bool {
	return false
}

// CanHandleTokenEndpointRequest implements fosite.TokenEndpointHandler.
func (h *grantHandler) CanHandleTokenEndpointRequest(_ context.Context, requester fosite.AccessRequester) bool {
	return requester.GetGrantTypes().ExactOne(h.grant.GrantType())
}

// HandleTokenEndpointRequest implements fosite.TokenEndpointHandler.
func (h *grantHandler) HandleTokenEndpointRequest(ctx context.Context, requester fosite.AccessRequester) error {
	if !h.CanHandleTokenEndpointRequest(ctx, requester) {
		return fosite.ErrUnknownRequest
	}

	client := requester.GetClient()
	if !client.GetGrantTypes().Has(h.grant.GrantType()) {
		return fosite.ErrUnauthorizedClient.WithHintf(
			"The OAuth 2.0 Client is not allowed to use authorization grant '%s'.", h.grant.GrantType())
	}

	scopeStrategy := h.config.GetScopeStrategy(ctx)
	for _, scope := range requester.GetRequestedScopes() {
		if !scopeStrategy(client.GetScopes(), scope) {
			return fosite.ErrInvalidScope.WithHintf("The OAuth 2.0 Client is not allowed to request scope '%s'.", scope)
		}
		requester.GrantScope(scope)
	}

	form := requester.GetRequestForm()
	result := h.grant.Validate(ctx, &TokenRequest{
		GrantType: form.Get("grant_type"),
		Form:      form,
		ClientID:  client.GetID(),
	})

	switch res := result.(type) {
	case *GrantSuccess:
		sess, ok := requester.GetSession().(*oauth2.JWTSession)
		if !ok {
			return fosite.ErrServerError.WithDebug("session is not a JWT session")
		}
		applySuccess(sess, client.GetID(), res)
	case *GrantFailure:
		h.logger.DebugContext(ctx, "extension grant rejected",
			"grant_type", h.grant.GrantType(), "client_id", client.GetID(), "reason", res.Message)
		return fosite.ErrInvalidGrant.
			WithHint(Localize(LanguageFromContext(ctx), res.Message)).
			WithDebug(res.Message)
	default:
		return fosite.ErrServerError.WithDebugf("grant %s returned no result", h.grant.GrantType())
	}

	lifespan := fosite.GetEffectiveLifespan(client, h.grantType(), fosite.AccessToken, h.config.GetAccessTokenLifespan(ctx))
	requester.GetSession().SetExpiresAt(fosite.AccessToken, time.Now().UTC().Add(lifespan))
	return nil
}

// PopulateTokenEndpointResponse implements fosite.TokenEndpointHandler.
func (h *grantHandler) PopulateTokenEndpointResponse(
	ctx context.Context, requester fosite.AccessRequester, responder fosite.AccessResponder,
) error {
	if !h.CanHandleTokenEndpointRequest(ctx, requester) {
		return fosite.ErrUnknownRequest
	}

	token, _, err := h.strategy.GenerateAccessToken(ctx, requester)
	if err != nil {
		return fosite.ErrServerError.WithWrap(err).WithDebug(err.Error())
	}

	responder.SetAccessToken(token)
	responder.SetTokenType("bearer")
	responder.SetExpiresIn(time.Until(requester.GetSession().GetExpiresAt(fosite.AccessToken)).Round(time.Second))
	responder.SetScopes(requester.GetGrantedScopes())
	return nil
}
