// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package wechatgrant implements the WeChat credential exchange as an
// authserver extension grant.
//
// A client posts a platform authorization code to the token endpoint with
// the configured grant type. The grant resolves the code to an openid,
// finds the local account linked to that openid, and hands the account id
// and WeChat claims back to the token issuer.
package wechatgrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stacklok/wxbridge/pkg/accounts"
	"github.com/stacklok/wxbridge/pkg/authserver"
	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
	"github.com/stacklok/wxbridge/pkg/events"
	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/wechat"
)

// Defaults for Config.
const (
	DefaultGrantType   = "wechat_official"
	DefaultProviderKey = "WeChat.Official"
	DefaultCodeParam   = "code"
)

// AuthMethod is reported as the token's authentication method.
const AuthMethod = "wechat"

// Claim types added to issued tokens.
const (
	ClaimOpenID   = "wechat_openid"
	ClaimUnionID  = "wechat_unionid"
	ClaimTenantID = "tenantid"
)

// Failure reasons used as metric labels.
const (
	reasonGrantType     = "grant_type"
	reasonCodeMissing   = "code_missing"
	reasonCodeInvalid   = "code_invalid"
	reasonUpstream      = "upstream"
	reasonNotRegistered = "not_registered"
	reasonLookup        = "lookup"
)

// Config identifies the application and how its logins are keyed.
type Config struct {
	// GrantType is the grant_type value clients send.
	GrantType string
	// ProviderKey is the login provider name accounts are linked under.
	ProviderKey string
	// CodeParam is the form parameter carrying the authorization code.
	CodeParam string
	AppID     string
	AppSecret string
}

func (c *Config) applyDefaults() {
	if c.GrantType == "" {
		c.GrantType = DefaultGrantType
	}
	if c.ProviderKey == "" {
		c.ProviderKey = DefaultProviderKey
	}
	if c.CodeParam == "" {
		c.CodeParam = DefaultCodeParam
	}
}

// Validate checks that the application credentials are present.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return errors.New("app id is required")
	}
	if c.AppSecret == "" {
		return errors.New("app secret is required")
	}
	return nil
}

// Validator exchanges WeChat authorization codes for local account
// identities. It holds no per-request state and is safe for concurrent use.
type Validator struct {
	cfg      Config
	resolver wechat.OpenIDResolver
	finder   accounts.Finder
	notifier *events.Notifier
	recorder metrics.Recorder
	logger   *slog.Logger
}

var _ authserver.ExtensionGrant = (*Validator)(nil)

// Option configures a Validator.
type Option func(*Validator)

// WithNotifier sets where login events go. Without it events are dropped.
func WithNotifier(n *events.Notifier) Option {
	return func(v *Validator) {
		v.notifier = n
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(v *Validator) {
		v.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = l
	}
}

// New creates a Validator.
func New(cfg Config, resolver wechat.OpenIDResolver, finder accounts.Finder, opts ...Option) (*Validator, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wechat grant config: %w", err)
	}
	if resolver == nil {
		return nil, errors.New("openid resolver is required")
	}
	if finder == nil {
		return nil, errors.New("account finder is required")
	}

	v := &Validator{
		cfg:      cfg,
		resolver: resolver,
		finder:   finder,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.notifier == nil {
		v.notifier = events.Safe(events.Discard{})
	}
	v.recorder = metrics.OrNoop(v.recorder)
	v.logger = logger.OrDefault(v.logger).With("grant_type", cfg.GrantType)
	return v, nil
}

// GrantType implements authserver.ExtensionGrant.
func (v *Validator) GrantType() string {
	return v.cfg.GrantType
}

// Validate implements authserver.ExtensionGrant.
func (v *Validator) Validate(ctx context.Context, req *authserver.TokenRequest) authserver.GrantResult {
	if req.Form.Get("grant_type") != v.cfg.GrantType {
		v.logger.WarnContext(ctx, "rejected token request with unexpected grant type",
			"requested", req.Form.Get("grant_type"))
		return v.fail(reasonGrantType, authserver.MsgGrantTypeInvalid)
	}

	code := req.Param(v.cfg.CodeParam)
	if strings.TrimSpace(code) == "" {
		v.logger.WarnContext(ctx, "authorization code not found", "param", v.cfg.CodeParam)
		return v.fail(reasonCodeMissing, authserver.MsgCodeNotFound)
	}

	identity, err := v.resolver.Resolve(ctx, code, v.cfg.AppID, v.cfg.AppSecret)
	if err != nil {
		if errors.Is(err, wechat.ErrInvalidCode) {
			v.logger.WarnContext(ctx, "authorization code rejected by platform", "error", err)
			return v.fail(reasonCodeInvalid, authserver.MsgCodeInvalid)
		}
		v.logger.ErrorContext(ctx, "authorization code exchange failed",
			"error", err, "error_type", wxerrors.TypeOf(err))
		return v.fail(reasonUpstream, authserver.MsgCodeExchangeFailed)
	}

	account, err := v.finder.FindByLogin(ctx, v.cfg.ProviderKey, identity.OpenID)
	if errors.Is(err, accounts.ErrNotFound) || (err == nil && account == nil) {
		v.logger.WarnContext(ctx, "openid is not linked to a local account",
			"provider", v.cfg.ProviderKey, "openid", identity.OpenID)
		return v.fail(reasonNotRegistered, authserver.MsgNotRegistered)
	}
	if err != nil {
		v.logger.ErrorContext(ctx, "account lookup failed", "provider", v.cfg.ProviderKey, "error", err)
		return v.fail(reasonLookup, authserver.MsgNotRegistered)
	}

	claims := buildClaims(identity, account)

	v.notifier.Notify(ctx, events.NewLoginSucceeded(events.LoginSucceeded{
		GrantType:  v.cfg.GrantType,
		Provider:   v.cfg.ProviderKey,
		ExternalID: identity.OpenID,
		AccountID:  account.ID,
		Username:   account.Username,
		TenantID:   account.TenantID,
		ClientID:   req.ClientID,
	}))

	v.recorder.RecordGrant(v.cfg.GrantType, metrics.ResultSuccess, "")
	v.logger.DebugContext(ctx, "credential exchange succeeded", "account_id", account.ID)
	return authserver.Success(account.ID, AuthMethod, claims...)
}

func (v *Validator) fail(reason, msg string) authserver.GrantResult {
	v.recorder.RecordGrant(v.cfg.GrantType, metrics.ResultFailure, reason)
	return authserver.InvalidGrant(msg)
}

func buildClaims(identity *wechat.Identity, account *accounts.Account) []authserver.Claim {
	claims := make([]authserver.Claim, 0, 3)
	if account.HasTenant() {
		claims = append(claims, authserver.Claim{Type: ClaimTenantID, Value: account.TenantID})
	}
	claims = append(claims, authserver.Claim{Type: ClaimOpenID, Value: identity.OpenID})
	if strings.TrimSpace(identity.UnionID) != "" {
		claims = append(claims, authserver.Claim{Type: ClaimUnionID, Value: identity.UnionID})
	}
	return claims
}
