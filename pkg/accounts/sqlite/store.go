// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite implements accounts.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/stacklok/wxbridge/pkg/accounts"
)

// Store implements accounts.Store using SQLite.
type Store struct {
	db *sql.DB
}

var _ accounts.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates it.
// Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAccount implements accounts.Store.
func (s *Store) CreateAccount(ctx context.Context, account accounts.Account) error {
	if account.ID == "" {
		return fmt.Errorf("account id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, tenant_id) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username, tenant_id = excluded.tenant_id`,
		account.ID, account.Username, account.TenantID,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Link implements accounts.Store.
func (s *Store) Link(ctx context.Context, login accounts.Login) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = ?`, login.AccountID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return accounts.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("looking up account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO account_logins (provider, external_id, account_id) VALUES (?, ?, ?)`,
		login.Provider, login.ExternalID, login.AccountID,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return accounts.ErrAlreadyLinked
		}
		return fmt.Errorf("inserting login: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// FindByLogin implements accounts.Finder.
func (s *Store) FindByLogin(ctx context.Context, provider, externalID string) (*accounts.Account, error) {
	var account accounts.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.username, a.tenant_id
		FROM account_logins l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.provider = ? AND l.external_id = ?`,
		provider, externalID,
	).Scan(&account.ID, &account.Username, &account.TenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying login: %w", err)
	}
	return &account, nil
}

// FindExternalID implements accounts.OpenIDFinder. When an account has
// several logins for the provider the earliest link wins.
func (s *Store) FindExternalID(ctx context.Context, accountID, provider string) (string, error) {
	var externalID string
	err := s.db.QueryRowContext(ctx, `
		SELECT external_id FROM account_logins
		WHERE account_id = ? AND provider = ?
		ORDER BY linked_at, rowid
		LIMIT 1`,
		accountID, provider,
	).Scan(&externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", accounts.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying external id: %w", err)
	}
	return externalID, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite3.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
