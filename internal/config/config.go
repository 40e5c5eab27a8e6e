// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package config loads and validates Skyarchive's runtime configuration:
// antennas, wallet material, the master encryption key, database path,
// operator auth, and the archive-network/key-share service endpoints (§6).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNoAntennas is returned when no antenna is configured or enabled.
var ErrNoAntennas = errors.New("config: at least one enabled antenna is required")

// ErrBadEncryptionKey is returned when data.encryption_key is not 64 hex chars.
var ErrBadEncryptionKey = errors.New("config: data.encryption_key must be 64 hex characters")

// AntennaConfig is one ADS-B receiver's feed endpoint (§6).
type AntennaConfig struct {
	ID      string `koanf:"id"`
	URL     string `koanf:"url"`
	Enabled bool   `koanf:"enabled"`
}

// WalletConfig locates the node's JWK signing key (§6).
type WalletConfig struct {
	KeysDir         string `koanf:"keys_dir"`
	PrivateKeyName  string `koanf:"private_key_name"`
	PublicKey       string `koanf:"public_key"`
}

// DataConfig holds the master encryption key material (§6).
type DataConfig struct {
	EncryptionKey string `koanf:"encryption_key"`
}

// DatabaseConfig locates the local DuckDB file (§6).
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig is the operator HTTP surface's credentials (§6). The core
// itself never checks these; they are carried through for the out-of-scope
// operator surface and generated here so a fresh boot always has a secret.
type AuthConfig struct {
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	Secret   string `koanf:"secret"`
}

// APIConfig gates the (out-of-scope) operator HTTP surface (§6).
type APIConfig struct {
	Enabled bool `koanf:"enabled"`
}

// ArchiveConfig is the content-addressed storage network gateway (§4.J, §6).
type ArchiveConfig struct {
	GatewayURL string `koanf:"gateway_url"`
}

// KeyShareConfig is the external key-share microservice (§4.H, §6).
type KeyShareConfig struct {
	BaseURL string `koanf:"base_url"`
}

// NodeConfig describes this node for self-registration (§4.Q).
type NodeConfig struct {
	Version           string `koanf:"version"`
	BeastPort         int    `koanf:"beast_port"`
	APIPort           int    `koanf:"api_port"`
	NodeType          string `koanf:"node_type"`
	PublicIPLookupURL string `koanf:"public_ip_lookup_url"`
	HostGatewayAlias  string `koanf:"host_gateway_alias"`
}

// LoggingConfig controls the zerolog global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Config is Skyarchive's full runtime configuration.
type Config struct {
	Antennas []AntennaConfig `koanf:"antennas"`
	Wallet   WalletConfig    `koanf:"wallet"`
	Data     DataConfig      `koanf:"data"`
	Database DatabaseConfig  `koanf:"database"`
	Auth     AuthConfig      `koanf:"auth"`
	API      APIConfig       `koanf:"api"`
	Archive  ArchiveConfig   `koanf:"archive"`
	KeyShare KeyShareConfig  `koanf:"keyshare"`
	Node     NodeConfig      `koanf:"node"`
	Logging  LoggingConfig   `koanf:"logging"`
}

// EnabledAntennas returns the subset of configured antennas with Enabled set.
func (c *Config) EnabledAntennas() []AntennaConfig {
	var out []AntennaConfig
	for _, a := range c.Antennas {
		if a.Enabled {
			out = append(out, a)
		}
	}
	return out
}

// Validate checks the fatal boot-time preconditions from §6/§7. Missing
// wallet file and missing master key are checked separately by the wallet
// and crypto packages when they load their respective material; Validate
// covers everything expressible on the Config struct alone.
func (c *Config) Validate() error {
	if len(c.EnabledAntennas()) == 0 {
		return ErrNoAntennas
	}
	if len(c.Data.EncryptionKey) != 64 {
		return ErrBadEncryptionKey
	}
	if _, err := hex.DecodeString(c.Data.EncryptionKey); err != nil {
		return fmt.Errorf("%w: %v", ErrBadEncryptionKey, err)
	}
	if c.Database.Path == "" {
		return errors.New("config: database.path is required")
	}
	if c.Wallet.PrivateKeyName == "" {
		return errors.New("config: wallet.private_key_name is required")
	}
	if c.Archive.GatewayURL != "" {
		if err := validateArchiveGatewayURL(c.Archive.GatewayURL); err != nil {
			return err
		}
	}
	for _, a := range c.EnabledAntennas() {
		if err := validateAntennaURL(a.URL); err != nil {
			return fmt.Errorf("antenna %s: %w", a.ID, err)
		}
	}
	if c.Auth.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("config: generate auth secret: %w", err)
		}
		c.Auth.Secret = secret
	}
	return nil
}

// RewriteAntennaURLsForContainer applies the loopback-to-host-gateway
// rewrite (§6) to every enabled antenna URL in place.
func (c *Config) RewriteAntennaURLsForContainer() {
	if c.Node.HostGatewayAlias == "" {
		return
	}
	for i := range c.Antennas {
		c.Antennas[i].URL = rewriteForContainer(c.Antennas[i].URL, c.Node.HostGatewayAlias)
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
