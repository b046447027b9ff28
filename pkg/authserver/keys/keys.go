// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys supplies the asymmetric keys the token endpoint signs with
// and publishes through JWKS.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"

	josev3 "github.com/go-jose/go-jose/v3"
	jose "github.com/go-jose/go-jose/v4"

	"github.com/stacklok/wxbridge/pkg/logger"
)

// DefaultAlgorithm is used for generated keys.
const DefaultAlgorithm = "ES256"

// SigningKey is a private key with its JWS metadata.
type SigningKey struct {
	// KeyID is the RFC 7638 thumbprint of the public key.
	KeyID     string
	Algorithm string
	Key       crypto.Signer
}

// Config selects where keys come from.
type Config struct {
	// SigningKeyFile is a PEM private key used to sign new tokens. When empty
	// an ephemeral key is generated.
	SigningKeyFile string
	// FallbackKeyFiles are published in JWKS but never sign.
	FallbackKeyFiles []string
}

// Provider yields the signing key and the verification set.
type Provider interface {
	SigningKey(ctx context.Context) (*SigningKey, error)
	PublicKeys(ctx context.Context) ([]*SigningKey, error)
}

// NewProvider builds a FileProvider when a key file is configured and a
// GeneratingProvider otherwise.
func NewProvider(cfg Config, l *slog.Logger) (Provider, error) {
	if cfg.SigningKeyFile != "" {
		return NewFileProvider(cfg)
	}
	if len(cfg.FallbackKeyFiles) > 0 {
		return nil, fmt.Errorf("fallback keys require a signing key file")
	}
	return NewGeneratingProvider(DefaultAlgorithm, l), nil
}

// FileProvider serves keys read once from PEM files.
type FileProvider struct {
	signing *SigningKey
	all     []*SigningKey
}

// NewFileProvider loads the signing key and any fallback keys.
func NewFileProvider(cfg Config) (*FileProvider, error) {
	if cfg.SigningKeyFile == "" {
		return nil, fmt.Errorf("signing key file is required")
	}

	signing, err := loadKey(cfg.SigningKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	all := []*SigningKey{signing}
	for _, path := range cfg.FallbackKeyFiles {
		k, err := loadKey(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", path, err)
		}
		all = append(all, k)
	}

	return &FileProvider{signing: signing, all: all}, nil
}

func loadKey(path string) (*SigningKey, error) {
	signer, err := LoadSigningKey(path)
	if err != nil {
		return nil, err
	}
	return newSigningKey(signer, "")
}

// SigningKey implements Provider.
func (p *FileProvider) SigningKey(context.Context) (*SigningKey, error) {
	k := *p.signing
	return &k, nil
}

// PublicKeys implements Provider.
func (p *FileProvider) PublicKeys(context.Context) ([]*SigningKey, error) {
	out := make([]*SigningKey, 0, len(p.all))
	for _, k := range p.all {
		c := *k
		out = append(out, &c)
	}
	return out, nil
}

// GeneratingProvider creates one ephemeral key on first use. Tokens it signs
// stop verifying after a restart.
type GeneratingProvider struct {
	algorithm string
	logger    *slog.Logger

	mu  sync.Mutex
	key *SigningKey
}

// NewGeneratingProvider returns a provider for algorithm, or DefaultAlgorithm when empty.
func NewGeneratingProvider(algorithm string, l *slog.Logger) *GeneratingProvider {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &GeneratingProvider{algorithm: algorithm, logger: logger.OrDefault(l)}
}

// SigningKey implements Provider.
func (p *GeneratingProvider) SigningKey(context.Context) (*SigningKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		signer, err := generatePrivateKey(p.algorithm)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		key, err := newSigningKey(signer, p.algorithm)
		if err != nil {
			return nil, err
		}
		p.logger.Warn("generated ephemeral signing key, tokens will not verify after restart",
			"algorithm", key.Algorithm, "key_id", key.KeyID)
		p.key = key
	}

	k := *p.key
	return &k, nil
}

// PublicKeys implements Provider.
func (p *GeneratingProvider) PublicKeys(ctx context.Context) ([]*SigningKey, error) {
	k, err := p.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return []*SigningKey{k}, nil
}

func generatePrivateKey(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case "ES256":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	default:
		return nil, fmt.Errorf("unsupported algorithm for key generation: %s", algorithm)
	}
}

// PublicJWKS renders the verification keys of p as a JWK set.
func PublicJWKS(ctx context.Context, p Provider) (*jose.JSONWebKeySet, error) {
	ks, err := p.PublicKeys(ctx)
	if err != nil {
		return nil, err
	}
	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(ks))}
	for _, k := range ks {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.Key.Public(),
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}

// FositeJWK converts k to the go-jose v3 form fosite signs with, keeping the
// "kid" header so verifiers can select the key from JWKS.
func FositeJWK(k *SigningKey) *josev3.JSONWebKey {
	return &josev3.JSONWebKey{
		Key:       k.Key,
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		Use:       "sig",
	}
}

var (
	_ Provider = (*FileProvider)(nil)
	_ Provider = (*GeneratingProvider)(nil)
)
