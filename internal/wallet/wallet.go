// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package wallet loads the node's JWK private key file and signs canonical
// payloads for node self-registration (§4.Q, §6). Archive-gateway uploads
// are not signed through this package.
package wallet

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	josejwk "github.com/go-jose/go-jose/v4"
)

// ErrMissingWallet is returned when the configured private key file does
// not exist; this is a fatal boot-time condition per §7.
var ErrMissingWallet = errors.New("wallet: private key file not found")

// Wallet holds the node's signing key material.
type Wallet struct {
	PublicKey  string
	privateKey *rsa.PrivateKey
}

// Load reads privateKeyName from the keys/ directory and parses it as a
// JWK object ({kty, n, e, ...}).
func Load(keysDir, privateKeyName string) (*Wallet, error) {
	path := filepath.Join(keysDir, privateKeyName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingWallet, path)
		}
		return nil, fmt.Errorf("read wallet key %s: %w", path, err)
	}

	var jwk josejwk.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parse wallet JWK %s: %w", path, err)
	}

	rsaKey, ok := jwk.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("wallet key %s is not an RSA private key", path)
	}

	return &Wallet{
		PublicKey:  jwk.KeyID,
		privateKey: rsaKey,
	}, nil
}

// Sign produces an RSA-PSS-SHA256 signature over the canonical message
// bytes, matching the sorted-key serialisation §4.Q requires upstream.
func (w *Wallet) Sign(canonicalMessage []byte) (string, error) {
	signer, err := josejwk.NewSigner(josejwk.SigningKey{
		Algorithm: josejwk.PS256,
		Key:       w.privateKey,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("build signer: %w", err)
	}

	obj, err := signer.Sign(canonicalMessage)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	compact, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("serialize signature: %w", err)
	}
	return compact, nil
}
