// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the wxbridge command-line application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/wxbridge/pkg/config"
	"github.com/stacklok/wxbridge/pkg/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "wxbridge",
		DisableAutoGenTag: true,
		Short:             "Federate WeChat logins into an OAuth 2.0 token endpoint",
		Long: `wxbridge exchanges WeChat authorization codes for locally issued JWT access
tokens, answers the platform's callback ownership handshake, and sends
subscribe messages to linked accounts.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the wxbridge configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newExchangeCmd(),
		newSendCmd(),
		newSignCmd(),
		newAccountsCmd(),
		newValidateCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// configGiven reports whether --config was set.
func configGiven() bool {
	return viper.GetString("config") != ""
}

// loadConfig loads the file named by --config.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debugw("configuration loaded", "path", path)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wxbridge version: %s\n", Version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file for syntax and semantic errors.

With --print the effective configuration, defaults and environment overrides
included, is written to stdout with every secret masked.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if printConfig {
				data, err := cfg.Redacted()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid")
			fmt.Fprintf(out, "  Issuer:      %s\n", cfg.Issuer.URL)
			fmt.Fprintf(out, "  Grant type:  %s\n", cfg.WeChat.GrantType)
			fmt.Fprintf(out, "  App type:    %s\n", cfg.WeChat.AppType)
			fmt.Fprintf(out, "  Clients:     %d\n", len(cfg.Issuer.Clients))
			fmt.Fprintf(out, "  Accounts:    %s\n", cfg.Accounts.Driver)
			fmt.Fprintf(out, "  Token cache: %s\n", cfg.TokenCache.Backend)
			if cfg.WeChat.Callback.Token != "" {
				fmt.Fprintf(out, "  Callback:    %s\n", cfg.WeChat.Callback.Path)
			}
			if n := len(cfg.Events.Webhooks); n > 0 {
				fmt.Fprintf(out, "  Webhooks:    %d\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printConfig, "print", false, "Print the effective configuration with secrets masked")
	return cmd
}
