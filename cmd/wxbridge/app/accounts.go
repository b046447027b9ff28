// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/wxbridge/pkg/accounts"
	"github.com/stacklok/wxbridge/pkg/config"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage local accounts and their WeChat links",
		Long: `Manage the sqlite account store named in the configuration file.

The bridge never creates accounts on its own: an openid must be linked to an
existing account before it can log in.`,
	}
	cmd.AddCommand(newAccountsCreateCmd(), newAccountsLinkCmd())
	return cmd
}

func newAccountsCreateCmd() *cobra.Command {
	var account accounts.Account

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or update a local account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if account.ID == "" {
				return errors.New("--account is required")
			}
			return withAccountStoreFromConfig(cmd.Context(), func(_ *config.Config, store accounts.Store) error {
				if err := store.CreateAccount(cmd.Context(), account); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s saved\n", account.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account.ID, "account", "", "Account ID, used as the token subject")
	cmd.Flags().StringVar(&account.Username, "username", "", "Username")
	cmd.Flags().StringVar(&account.TenantID, "tenant", "", "Tenant ID")
	return cmd
}

func newAccountsLinkCmd() *cobra.Command {
	var login accounts.Login

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link an openid to an existing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if login.AccountID == "" || login.ExternalID == "" {
				return errors.New("--account and --openid are required")
			}
			return withAccountStoreFromConfig(cmd.Context(), func(cfg *config.Config, store accounts.Store) error {
				if login.Provider == "" {
					login.Provider = cfg.WeChat.ProviderKey
				}
				if err := store.Link(cmd.Context(), login); err != nil {
					if errors.Is(err, accounts.ErrNotFound) {
						return fmt.Errorf("account %s does not exist, create it first", login.AccountID)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Linked %s openid %s to account %s\n",
					login.Provider, login.ExternalID, login.AccountID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&login.AccountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&login.ExternalID, "openid", "", "WeChat openid")
	cmd.Flags().StringVar(&login.Provider, "provider", "", "Login provider (default wechat.provider_key)")
	return cmd
}

// withAccountStoreFromConfig opens the configured sqlite store for fn.
func withAccountStoreFromConfig(ctx context.Context, fn func(*config.Config, accounts.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Accounts.Driver != config.AccountsDriverSQLite {
		return fmt.Errorf("accounts.driver is %q, account management needs %q",
			cfg.Accounts.Driver, config.AccountsDriverSQLite)
	}

	store, err := openAccountStore(ctx, cfg.Accounts)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cfg, store)
}
