// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/wxbridge/pkg/logger"
	"github.com/stacklok/wxbridge/pkg/metrics"
	"github.com/stacklok/wxbridge/pkg/wechat"
)

func newSendCmd() *cobra.Command {
	var (
		accountID  string
		templateID string
		page       string
		lang       string
		state      string
		data       []string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one subscribe message to a local account",
		Long: `Send one subscribe message to the openid linked to a local account.

Template fields are given as --data name=value and may be repeated. An account
without a linked openid is skipped with a warning.`,
		Example: `  wxbridge send -c wxbridge.yaml --account 42 --template tmpl-id \
    --data thing1=Order shipped --data time2="2025-01-02 15:04"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if accountID == "" || templateID == "" {
				return errors.New("--account and --template are required")
			}
			fields, err := parseDataFlags(data)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if lang == "" {
				lang = cfg.WeChat.Subscribe.Lang
			}
			if state == "" {
				state = cfg.WeChat.Subscribe.State
			}

			ctx := cmd.Context()
			l := logger.Get()
			recorder := metrics.NewNoopMetrics()

			store, err := openAccountStore(ctx, cfg.Accounts)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			client, err := newWeChatClient(cfg.WeChat, l, recorder)
			if err != nil {
				return err
			}
			tokenStore, rc, err := openTokenStore(ctx, cfg.TokenCache)
			if err != nil {
				return err
			}
			if rc != nil {
				defer func() { _ = rc.Close() }()
			}

			tokens := wechat.NewTokenProvider(client, wechat.WithTokenStore(tokenStore))
			messenger := wechat.NewSubscribeMessenger(client, tokens, store, cfg.SubscribeConfig())
			if err := messenger.Send(ctx, wechat.SendRequest{
				AccountID:  accountID,
				TemplateID: templateID,
				Page:       page,
				Lang:       lang,
				State:      state,
				Data:       fields,
			}); err != nil {
				return fmt.Errorf("failed to send subscribe message: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Subscribe message dispatched")
			return nil
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Local account ID")
	cmd.Flags().StringVar(&templateID, "template", "", "Subscribe message template ID")
	cmd.Flags().StringVar(&page, "page", "", "Mini program page opened from the message")
	cmd.Flags().StringVar(&lang, "lang", "", "Message language (default from config)")
	cmd.Flags().StringVar(&state, "state", "", "Mini program state: developer, trial or formal (default from config)")
	cmd.Flags().StringArrayVar(&data, "data", nil, "Template field as name=value")
	return cmd
}

// parseDataFlags turns name=value pairs into template fields.
func parseDataFlags(pairs []string) (map[string]wechat.DataValue, error) {
	fields := make(map[string]wechat.DataValue, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --data %q, expected name=value", pair)
		}
		fields[name] = wechat.DataValue{Value: value}
	}
	return fields, nil
}
