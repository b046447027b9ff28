// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package wechat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/wxbridge/pkg/accounts"
	wxerrors "github.com/stacklok/wxbridge/pkg/errors"
)

const sendPath = "/cgi-bin/message/subscribe/send"

// staticTokens hands out a fixed token and records invalidations.
type staticTokens struct {
	token       string
	err         error
	calls       int
	invalidated int
}

func (s *staticTokens) Token(context.Context, string, string) (*AccessToken, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &AccessToken{Value: s.token}, nil
}

func (s *staticTokens) Invalidate(context.Context, string, string) error {
	s.invalidated++
	return nil
}

// openIDs is a map-backed accounts.OpenIDFinder.
type openIDs struct {
	byAccount map[string]string
	err       error
}

func (o openIDs) FindExternalID(_ context.Context, accountID, _ string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	id, ok := o.byAccount[accountID]
	if !ok {
		return "", accounts.ErrNotFound
	}
	return id, nil
}

var testSubscribeConfig = SubscribeConfig{AppID: "app", AppSecret: "secret", Provider: "WeChat.MiniProgram"}

func TestSubscribeMessenger_Send(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	var got SubscribeMessage
	platform.handle(sendPath, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		jsonHandler(http.StatusOK, `{"errcode":0,"errmsg":"ok"}`)(w, r)
	})
	client, logs := newTestClient(t, platform)
	tokens := &staticTokens{token: "tok"}
	m := NewSubscribeMessenger(client, tokens, openIDs{byAccount: map[string]string{"u1": "o-1"}}, testSubscribeConfig)

	err := m.Send(context.Background(), SendRequest{
		AccountID:  "u1",
		TemplateID: "tpl",
		Page:       "pages/index",
		Data: map[string]DataValue{
			"thing1": {Value: "hello"},
			"time2":  {Value: "2025-06-01", Color: "#173177"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, SubscribeMessage{
		ToUser:           "o-1",
		TemplateID:       "tpl",
		Page:             "pages/index",
		Lang:             DefaultSubscribeLang,
		MiniProgramState: StateFormal,
		Data: map[string]DataValue{
			"thing1": {Value: "hello"},
			"time2":  {Value: "2025-06-01", Color: "#173177"},
		},
	}, got)
	assert.NotContains(t, logs.String(), "WARN")
	assert.Equal(t, 1, platform.count(sendPath))
}

func TestSubscribeMessenger_WireFormat(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	var raw map[string]any
	platform.handle(sendPath, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		jsonHandler(http.StatusOK, `{"errcode":0}`)(w, r)
	})
	client, _ := newTestClient(t, platform)
	m := NewSubscribeMessenger(client, &staticTokens{token: "tok"}, openIDs{}, testSubscribeConfig)

	msg := NewSubscribeMessage("o-1", "tpl", "", "en_US", StateTrial)
	msg.WriteData(map[string]DataValue{"name1": {Value: "v", Color: "red"}})
	require.NoError(t, m.SendMessage(context.Background(), msg))

	assert.Equal(t, "o-1", raw["touser"])
	assert.Equal(t, "tpl", raw["template_id"])
	assert.Equal(t, "en_US", raw["lang"])
	assert.Equal(t, "trial", raw["miniprogram_state"])
	assert.Equal(t, map[string]any{"name1": map[string]any{"value": "v", "color": "red"}}, raw["data"])
	assert.NotContains(t, raw, "page")
}

func TestSubscribeMessenger_NoLinkedOpenID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		finder openIDs
	}{
		{"not linked", openIDs{byAccount: map[string]string{}}},
		{"empty openid", openIDs{byAccount: map[string]string{"u1": ""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			platform := newFakePlatform(t)
			platform.handle(sendPath, jsonHandler(http.StatusOK, `{"errcode":0}`))
			client, logs := newTestClient(t, platform)
			tokens := &staticTokens{token: "tok"}
			m := NewSubscribeMessenger(client, tokens, tt.finder, testSubscribeConfig)

			require.NoError(t, m.Send(context.Background(), SendRequest{AccountID: "u1", TemplateID: "tpl"}))
			assert.Zero(t, platform.count(sendPath))
			assert.Zero(t, tokens.calls)
			assert.Contains(t, logs.String(), "no linked openid")
		})
	}
}

func TestSubscribeMessenger_RequiresAccountAndTemplate(t *testing.T) {
	t.Parallel()

	platform := newFakePlatform(t)
	platform.handle(sendPath, jsonHandler(http.StatusOK, `{"errcode":0}`))
	client, _ := newTestClient(t, platform)
	tokens := &staticTokens{token: "tok"}
	m := NewSubscribeMessenger(client, tokens, openIDs{byAccount: map[string]string{"u1": "o-1"}}, testSubscribeConfig)

	for _, req := range []SendRequest{{TemplateID: "tpl"}, {AccountID: "u1"}} {
		err := m.Send(context.Background(), req)
		require.Error(t, err)
		assert.True(t, wxerrors.IsInvalidArgument(err))
	}
	assert.Zero(t, tokens.calls)
	assert.Zero(t, platform.count(sendPath))
}

func TestSubscribeMessenger_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		handler         http.HandlerFunc
		tokens          *staticTokens
		finder          openIDs
		wantErr         func(error) bool
		wantWarn        string
		wantInvalidated int
	}{
		{
			name:     "business error is logged not returned",
			handler:  jsonHandler(http.StatusOK, `{"errcode":43101,"errmsg":"user refuse to accept the msg"}`),
			tokens:   &staticTokens{token: "tok"},
			wantWarn: "43101",
		},
		{
			name:            "rejected token is dropped",
			handler:         jsonHandler(http.StatusOK, `{"errcode":42001,"errmsg":"access_token expired"}`),
			tokens:          &staticTokens{token: "tok"},
			wantWarn:        "42001",
			wantInvalidated: 1,
		},
		{
			name:    "non-2xx is a delivery error",
			handler: jsonHandler(http.StatusBadGateway, `oops`),
			tokens:  &staticTokens{token: "tok"},
			wantErr: wxerrors.IsDelivery,
		},
		{
			name:    "token failure propagates",
			handler: jsonHandler(http.StatusOK, `{"errcode":0}`),
			tokens:  &staticTokens{err: wxerrors.NewUpstreamError("token endpoint down", nil)},
			wantErr: wxerrors.IsUpstream,
		},
		{
			name:    "lookup failure is internal",
			handler: jsonHandler(http.StatusOK, `{"errcode":0}`),
			tokens:  &staticTokens{token: "tok"},
			finder:  openIDs{err: errors.New("db down")},
			wantErr: wxerrors.IsInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			platform := newFakePlatform(t)
			platform.handle(sendPath, tt.handler)
			client, logs := newTestClient(t, platform)
			finder := tt.finder
			if finder.byAccount == nil && finder.err == nil {
				finder = openIDs{byAccount: map[string]string{"u1": "o-1"}}
			}
			m := NewSubscribeMessenger(client, tt.tokens, finder, testSubscribeConfig)

			err := m.Send(context.Background(), SendRequest{AccountID: "u1", TemplateID: "tpl"})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, tt.wantErr(err), "unexpected error type: %v", err)
			} else {
				require.NoError(t, err)
			}
			if tt.wantWarn != "" {
				assert.Contains(t, logs.String(), "platform rejected subscribe message")
				assert.Contains(t, logs.String(), wxerrors.ErrSoftDelivery)
				assert.Contains(t, logs.String(), tt.wantWarn)
			}
			assert.Equal(t, tt.wantInvalidated, tt.tokens.invalidated)
		})
	}
}
