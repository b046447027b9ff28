// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package accounts

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	// logins maps provider+externalID to account ID
	logins map[loginKey]string
}

type loginKey struct {
	provider   string
	externalID string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		logins:   make(map[loginKey]string),
	}
}

// CreateAccount implements Store.
func (s *MemoryStore) CreateAccount(_ context.Context, account Account) error {
	if account.ID == "" {
		return fmt.Errorf("account id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

// Link implements Store.
func (s *MemoryStore) Link(_ context.Context, login Login) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[login.AccountID]; !ok {
		return ErrNotFound
	}
	key := loginKey{provider: login.Provider, externalID: login.ExternalID}
	if _, ok := s.logins[key]; ok {
		return ErrAlreadyLinked
	}
	s.logins[key] = login.AccountID
	return nil
}

// FindByLogin implements Finder.
func (s *MemoryStore) FindByLogin(_ context.Context, provider, externalID string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.logins[loginKey{provider: provider, externalID: externalID}]
	if !ok {
		return nil, ErrNotFound
	}
	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &account, nil
}

// FindExternalID implements OpenIDFinder.
func (s *MemoryStore) FindExternalID(_ context.Context, accountID, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, id := range s.logins {
		if id == accountID && key.provider == provider {
			return key.externalID, nil
		}
	}
	return "", ErrNotFound
}

// Close implements Store.
func (*MemoryStore) Close() error {
	return nil
}
