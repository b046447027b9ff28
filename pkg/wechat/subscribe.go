// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/stacklok/wxbridge/pkg/accounts"
	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/networking"
)

const subscribeSendEndpoint = "cgi-bin/message/subscribe/send"

// Defaults applied when a send request leaves language or state empty.
const (
	DefaultSubscribeLang  = "zh_CN"
	DefaultSubscribeState = StateFormal
)

// Mini program states a subscribe message may open.
const (
	StateDeveloper = "developer"
	StateTrial     = "trial"
	StateFormal    = "formal"
)

// DataValue is one template field.
type DataValue struct {
	Value string `json:"value"`
	Color string `json:"color,omitempty"`
}

// SubscribeMessage is the body of a subscribe send call.
type SubscribeMessage struct {
	ToUser           string               `json:"touser"`
	TemplateID       string               `json:"template_id"`
	Page             string               `json:"page,omitempty"`
	Lang             string               `json:"lang,omitempty"`
	MiniProgramState string               `json:"miniprogram_state,omitempty"`
	Data             map[string]DataValue `json:"data,omitempty"`
}

// NewSubscribeMessage creates a message with no data fields.
func NewSubscribeMessage(openID, templateID, page, lang, state string) *SubscribeMessage {
	return &SubscribeMessage{
		ToUser:           openID,
		TemplateID:       templateID,
		Page:             page,
		Lang:             lang,
		MiniProgramState: state,
	}
}

// WriteData merges fields into the message data.
func (m *SubscribeMessage) WriteData(fields map[string]DataValue) {
	if len(fields) == 0 {
		return
	}
	if m.Data == nil {
		m.Data = make(map[string]DataValue, len(fields))
	}
	for name, value := range fields {
		m.Data[name] = value
	}
}

// SendRequest addresses a subscribe message to a local account.
type SendRequest struct {
	AccountID  string
	TemplateID string
	Page       string
	Lang       string
	State      string
	Data       map[string]DataValue
}

// SubscribeConfig identifies the application sending messages.
type SubscribeConfig struct {
	AppID     string
	AppSecret string
	// Provider is the login provider whose external id is the recipient openid.
	Provider string
}

// SubscribeMessenger sends subscribe messages to local accounts.
type SubscribeMessenger struct {
	client *Client
	tokens TokenSource
	finder accounts.OpenIDFinder
	cfg    SubscribeConfig
	logger *slog.Logger
}

// NewSubscribeMessenger creates a SubscribeMessenger.
func NewSubscribeMessenger(
	client *Client,
	tokens TokenSource,
	finder accounts.OpenIDFinder,
	cfg SubscribeConfig,
) *SubscribeMessenger {
	return &SubscribeMessenger{
		client: client,
		tokens: tokens,
		finder: finder,
		cfg:    cfg,
		logger: client.logger,
	}
}

// Send delivers one message to the account's linked openid.
//
// Missing account or template ids are rejected as invalid arguments. An
// account without a linked openid is skipped with a warning. A platform
// business error (non-zero errcode) is logged and not returned. Transport
// failures and non-2xx statuses are returned as delivery errors.
func (m *SubscribeMessenger) Send(ctx context.Context, req SendRequest) error {
	if req.AccountID == "" || req.TemplateID == "" {
		return wxerrors.NewInvalidArgumentError("account id and template id are required", nil)
	}

	openID, err := m.finder.FindExternalID(ctx, req.AccountID, m.cfg.Provider)
	if errors.Is(err, accounts.ErrNotFound) || (err == nil && openID == "") {
		m.client.recorder.RecordSubscribeSend(metrics.ResultSkipped)
		m.logger.WarnContext(ctx, "no linked openid, subscribe message not sent",
			"account_id", req.AccountID, "provider", m.cfg.Provider)
		return nil
	}
	if err != nil {
		m.client.recorder.RecordSubscribeSend(metrics.ResultError)
		return wxerrors.NewInternalError("looking up recipient openid", err)
	}

	lang := req.Lang
	if lang == "" {
		lang = DefaultSubscribeLang
	}
	state := req.State
	if state == "" {
		state = DefaultSubscribeState
	}

	msg := NewSubscribeMessage(openID, req.TemplateID, req.Page, lang, state)
	msg.WriteData(req.Data)
	return m.SendMessage(ctx, msg)
}

// SendMessage delivers a fully built message.
func (m *SubscribeMessenger) SendMessage(ctx context.Context, msg *SubscribeMessage) error {
	tok, err := m.tokens.Token(ctx, m.cfg.AppID, m.cfg.AppSecret)
	if err != nil {
		m.client.recorder.RecordSubscribeSend(metrics.ResultError)
		return fmt.Errorf("acquiring access token: %w", err)
	}

	_, err = m.client.call(ctx, subscribeSendEndpoint, url.Values{"access_token": {tok.Value}},
		networking.WithMethod(http.MethodPost),
		networking.WithJSONBody(msg),
	)

	var apiErr *APIError
	switch {
	case err == nil:
		m.client.recorder.RecordSubscribeSend(metrics.ResultSuccess)
		m.logger.DebugContext(ctx, "subscribe message sent", "template_id", msg.TemplateID)
		return nil
	case errors.As(err, &apiErr):
		m.client.recorder.RecordSubscribeSend(metrics.ResultSoftFail)
		m.logger.WarnContext(ctx, "platform rejected subscribe message",
			"template_id", msg.TemplateID,
			"errcode", apiErr.ErrCode,
			"errmsg", apiErr.ErrMsg,
			"error", wxerrors.NewSoftDeliveryError("subscribe message not delivered", apiErr),
		)
		if apiErr.IsTokenRejected() {
			m.invalidate(ctx)
		}
		return nil
	default:
		m.client.recorder.RecordSubscribeSend(metrics.ResultError)
		return wxerrors.NewDeliveryError("subscribe message send failed", err)
	}
}

// invalidate drops a token the platform refused so the next send fetches a
// fresh one.
func (m *SubscribeMessenger) invalidate(ctx context.Context) {
	inv, ok := m.tokens.(interface {
		Invalidate(ctx context.Context, appID, appSecret string) error
	})
	if !ok {
		return
	}
	if err := inv.Invalidate(ctx, m.cfg.AppID, m.cfg.AppSecret); err != nil {
		m.logger.WarnContext(ctx, "failed to drop rejected access token", "error", err)
	}
}
