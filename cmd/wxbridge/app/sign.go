// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/stacklok/wxbridge/pkg/wechat"
)

func newSignCmd() *cobra.Command {
	var (
		token     string
		timestamp string
		nonce     string
		echo      string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute a callback signature",
		Long: `Compute the signature the platform sends with callback requests.

The token comes from --token or, when omitted, from wechat.callback.token in
the configuration file. Missing timestamp and nonce values are generated. The
output includes a query string that can be used to test the callback path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ""
			if token == "" {
				if !configGiven() {
					return errors.New("--token is required when no configuration file is given")
				}
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				token, path = cfg.WeChat.Callback.Token, cfg.WeChat.Callback.Path
				if token == "" {
					return errors.New("wechat.callback.token is not configured")
				}
			}
			if timestamp == "" {
				timestamp = strconv.FormatInt(time.Now().Unix(), 10)
			}
			if nonce == "" {
				nonce = uuid.NewString()
			}

			signature := wechat.Sign(token, timestamp, nonce)
			query := url.Values{
				"signature": {signature},
				"timestamp": {timestamp},
				"nonce":     {nonce},
			}
			if echo != "" {
				query.Set("echostr", echo)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "signature: %s\n", signature)
			fmt.Fprintf(out, "query:     %s%s\n", pathPrefix(path), query.Encode())
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Shared callback token (default from config)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Timestamp to sign (default now)")
	cmd.Flags().StringVar(&nonce, "nonce", "", "Nonce to sign (default random)")
	cmd.Flags().StringVar(&echo, "echostr", "", "Echo string to include in the query")
	return cmd
}

func pathPrefix(path string) string {
	if path == "" {
		return "?"
	}
	return path + "?"
}
