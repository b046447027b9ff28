// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package accounts looks up local accounts by their linked external logins.
package accounts

import (
	"context"
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"
)

//go:generate mockgen -destination=mocks/mock_accounts.go -package=mocks -source=accounts.go

var (
	// ErrNotFound is returned when no account or login matches.
	ErrNotFound = httperr.WithCode(
		errors.New("account not found"),
		http.StatusNotFound,
	)

	// ErrAlreadyLinked is returned when an external login is already bound to an account.
	ErrAlreadyLinked = httperr.WithCode(
		errors.New("external login already linked"),
		http.StatusConflict,
	)
)

// Account is a local account as seen by the bridge.
type Account struct {
	// ID is the stable subject identifier.
	ID string
	// Username is informational.
	Username string
	// TenantID is empty for accounts outside any tenant.
	TenantID string
}

// HasTenant reports whether the account belongs to a tenant.
func (a *Account) HasTenant() bool {
	return a.TenantID != ""
}

// Login links an account to an external identity.
type Login struct {
	// Provider names the external identity provider, e.g. "WeChat.Official".
	Provider string
	// ExternalID is the provider's user identifier (the openid).
	ExternalID string
	// AccountID is the local account.
	AccountID string
}

// Finder resolves an external login to a local account.
type Finder interface {
	// FindByLogin returns the account linked to externalID under provider,
	// or ErrNotFound.
	FindByLogin(ctx context.Context, provider, externalID string) (*Account, error)
}

// OpenIDFinder resolves a local account to its external identifier.
type OpenIDFinder interface {
	// FindExternalID returns the provider identifier linked to accountID,
	// or ErrNotFound.
	FindExternalID(ctx context.Context, accountID, provider string) (string, error)
}
