// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/stacklok/wxbridge/pkg/authserver"
	"github.com/stacklok/wxbridge/pkg/networking"
	"github.com/stacklok/wxbridge/pkg/wechatgrant"
)

type exchangeOptions struct {
	issuer       string
	clientID     string
	clientSecret string
	code         string
	grantType    string
	codeParam    string
	scopes       []string
	verify       bool
}

type exchangeResult struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	Expiry      time.Time      `json:"expiry"`
	Claims      map[string]any `json:"claims,omitempty"`
}

func newExchangeCmd() *cobra.Command {
	opts := exchangeOptions{}

	cmd := &cobra.Command{
		Use:   "exchange",
		Short: "Exchange a WeChat authorization code at a running bridge",
		Long: `Exchange a WeChat authorization code for an access token at a running bridge
and print the token with its verified claims.

Unset flags fall back to the configuration file when --config is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.fillFromConfig(); err != nil {
				return err
			}
			if opts.code == "" {
				return errors.New("--code is required")
			}
			if opts.issuer == "" {
				return errors.New("--issuer is required when no configuration file is given")
			}

			httpClient, err := cliHTTPClient(opts.issuer)
			if err != nil {
				return err
			}
			res, err := exchangeCode(cmd.Context(), httpClient, opts)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVar(&opts.issuer, "issuer", "", "Base URL of the bridge")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "OAuth client ID")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "OAuth client secret, empty for public clients")
	cmd.Flags().StringVar(&opts.code, "code", "", "WeChat authorization code")
	cmd.Flags().StringVar(&opts.grantType, "grant-type", "", "Grant type (default "+wechatgrant.DefaultGrantType+")")
	cmd.Flags().StringVar(&opts.codeParam, "code-param", "", "Form parameter carrying the code (default "+wechatgrant.DefaultCodeParam+")")
	cmd.Flags().StringSliceVar(&opts.scopes, "scope", nil, "Scopes to request")
	cmd.Flags().BoolVar(&opts.verify, "verify", true, "Verify the token signature against the bridge JWKS")
	return cmd
}

// fillFromConfig copies unset values from the configuration file, if any.
func (o *exchangeOptions) fillFromConfig() error {
	if configGiven() {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if o.issuer == "" {
			o.issuer = cfg.Issuer.URL
		}
		if o.grantType == "" {
			o.grantType = cfg.WeChat.GrantType
		}
		if o.codeParam == "" {
			o.codeParam = cfg.WeChat.CodeParam
		}
		if o.clientID == "" && len(cfg.Issuer.Clients) > 0 {
			o.clientID = cfg.Issuer.Clients[0].ID
			o.clientSecret = cfg.Issuer.Clients[0].Secret
		}
	}

	if o.grantType == "" {
		o.grantType = wechatgrant.DefaultGrantType
	}
	if o.codeParam == "" {
		o.codeParam = wechatgrant.DefaultCodeParam
	}
	return nil
}

// cliHTTPClient builds an outbound client that also accepts plain HTTP on
// private addresses, which a locally running bridge usually listens on.
func cliHTTPClient(target string) (*http.Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", target, err)
	}
	local := u.Scheme == "http"
	return networking.NewHttpClientBuilder().
		WithInsecureHTTP(local).
		WithPrivateIPs(local).
		WithTracing(false).
		Build()
}

func exchangeCode(ctx context.Context, httpClient *http.Client, opts exchangeOptions) (*exchangeResult, error) {
	issuer := strings.TrimSuffix(opts.issuer, "/")
	conf := &oauth2.Config{
		ClientID:     opts.clientID,
		ClientSecret: opts.clientSecret,
		Scopes:       opts.scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:  issuer + authserver.TokenPath,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	params := []oauth2.AuthCodeOption{oauth2.SetAuthURLParam("grant_type", opts.grantType)}
	if opts.codeParam != "code" {
		params = append(params, oauth2.SetAuthURLParam(opts.codeParam, opts.code))
	}
	if len(opts.scopes) > 0 {
		params = append(params, oauth2.SetAuthURLParam("scope", strings.Join(opts.scopes, " ")))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	tok, err := conf.Exchange(ctx, opts.code, params...)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("token request rejected: %s: %s", re.ErrorCode, re.ErrorDescription)
		}
		return nil, fmt.Errorf("token request failed: %w", err)
	}

	res := &exchangeResult{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
	}
	if !opts.verify {
		return res, nil
	}

	set, err := networking.FetchJSON[jose.JSONWebKeySet](ctx, httpClient, issuer+authserver.JWKSPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	claims, err := verifyAccessToken(tok.AccessToken, &set.Data, issuer)
	if err != nil {
		return nil, err
	}
	res.Claims = claims
	return res, nil
}

// verifyAccessToken checks the token signature against set and returns its claims.
func verifyAccessToken(raw string, set *jose.JSONWebKeySet, issuer string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		found := set.Key(kid)
		if len(found) == 0 {
			return nil, fmt.Errorf("no key with id %q in JWKS", kid)
		}
		return found[0].Public().Key, nil
	},
		jwt.WithValidMethods([]string{"RS256", "ES256", "ES384", "ES512"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("access token failed verification: %w", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("unexpected claims type")
	}
	return claims, nil
}
