// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package accounts

import "context"

// Store is a full account store.
type Store interface {
	Finder
	OpenIDFinder
	// CreateAccount inserts or replaces an account.
	CreateAccount(ctx context.Context, account Account) error
	// Link binds an external login to an existing account.
	Link(ctx context.Context, login Login) error
	// Close releases resources held by the store.
	Close() error
}
