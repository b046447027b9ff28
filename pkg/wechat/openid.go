// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
)

//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=openid.go OpenIDResolver

// AppType selects which code exchange endpoint a resolver calls.
type AppType string

const (
	// AppTypeOfficial is an official account web login (sns/oauth2/access_token).
	AppTypeOfficial AppType = "official"
	// AppTypeMiniProgram is a mini program wx.login code (sns/jscode2session).
	AppTypeMiniProgram AppType = "miniprogram"
)

const (
	officialCodeEndpoint    = "sns/oauth2/access_token"
	miniProgramCodeEndpoint = "sns/jscode2session"
)

// Identity is the platform's view of a user for one application.
type Identity struct {
	OpenID  string
	UnionID string
}

// OpenIDResolver exchanges a one-time authorization code for an Identity.
//
// Implementations return an upstream error when the platform cannot be
// reached or answers with a non-2xx status, and an error wrapping
// ErrInvalidCode when the platform rejects the code. They never retry.
type OpenIDResolver interface {
	Resolve(ctx context.Context, code, appID, appSecret string) (*Identity, error)
}

type codeExchangeResponse struct {
	OpenID  string `json:"openid"`
	UnionID string `json:"unionid"`
}

// codeResolver implements OpenIDResolver for both app types. They differ
// only in the endpoint and the name of the code parameter.
type codeResolver struct {
	client    *Client
	endpoint  string
	codeParam string
}

var _ OpenIDResolver = (*codeResolver)(nil)

// NewResolver returns the resolver for appType.
func NewResolver(appType AppType, client *Client) (OpenIDResolver, error) {
	switch appType {
	case AppTypeOfficial, "":
		return NewOfficialResolver(client), nil
	case AppTypeMiniProgram:
		return NewMiniProgramResolver(client), nil
	default:
		return nil, wxerrors.NewInvalidArgumentError(fmt.Sprintf("unsupported app type %q", appType), nil)
	}
}

// NewOfficialResolver resolves official account OAuth codes.
func NewOfficialResolver(client *Client) OpenIDResolver {
	return &codeResolver{client: client, endpoint: officialCodeEndpoint, codeParam: "code"}
}

// NewMiniProgramResolver resolves mini program login codes.
func NewMiniProgramResolver(client *Client) OpenIDResolver {
	return &codeResolver{client: client, endpoint: miniProgramCodeEndpoint, codeParam: "js_code"}
}

func (r *codeResolver) Resolve(ctx context.Context, code, appID, appSecret string) (*Identity, error) {
	query := url.Values{
		"appid":      {appID},
		"secret":     {appSecret},
		r.codeParam:  {code},
		"grant_type": {"authorization_code"},
	}

	body, err := r.client.call(ctx, r.endpoint, query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			r.client.logger.WarnContext(ctx, "platform rejected authorization code",
				"endpoint", r.endpoint, "errcode", apiErr.ErrCode, "errmsg", apiErr.ErrMsg)
			return nil, wxerrors.NewInvalidGrantError("authorization code rejected",
				fmt.Errorf("%w: %w", ErrInvalidCode, apiErr))
		}
		return nil, wxerrors.NewUpstreamError("code exchange failed", err)
	}

	var resp codeExchangeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wxerrors.NewUpstreamError("code exchange returned malformed payload", err)
	}
	if resp.OpenID == "" {
		return nil, wxerrors.NewUpstreamError("code exchange response has no openid", nil)
	}

	return &Identity{OpenID: resp.OpenID, UnionID: resp.UnionID}, nil
}
