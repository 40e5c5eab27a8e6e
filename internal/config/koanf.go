// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a YAML config file is searched for, in
// priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/skyarchive/config.yaml",
	"/etc/skyarchive/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Wallet: WalletConfig{
			KeysDir: "keys",
		},
		Database: DatabaseConfig{
			Path: "/data/skyarchive.duckdb",
		},
		API: APIConfig{
			Enabled: true,
		},
		Archive: ArchiveConfig{
			GatewayURL: "https://arweave.net",
		},
		KeyShare: KeyShareConfig{
			BaseURL: "http://localhost:8090",
		},
		Node: NodeConfig{
			Version:           "1.0.0",
			BeastPort:         30005,
			APIPort:           8080,
			NodeType:          "receiver",
			PublicIPLookupURL: "https://api.ipify.org",
			HostGatewayAlias:  "host.docker.internal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds Config from, in increasing precedence: built-in defaults, an
// optional YAML file, then environment variables. It validates the result
// before returning.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envKeyMappings maps flat uppercase environment variable names to their
// dotted koanf config path. A single ANTENNA_* triplet is supported as a
// convenience for single-antenna deployments; multi-antenna setups use the
// YAML config file's antennas list instead.
var envKeyMappings = map[string]string{
	"WALLET_KEYS_DIR":          "wallet.keys_dir",
	"WALLET_PRIVATE_KEY_NAME":  "wallet.private_key_name",
	"WALLET_PUBLIC_KEY":        "wallet.public_key",
	"DATA_ENCRYPTION_KEY":      "data.encryption_key",
	"DATABASE_PATH":            "database.path",
	"AUTH_USERNAME":            "auth.username",
	"AUTH_PASSWORD":            "auth.password",
	"AUTH_SECRET":              "auth.secret",
	"API_ENABLED":              "api.enabled",
	"ARCHIVE_GATEWAY_URL":      "archive.gateway_url",
	"KEYSHARE_BASE_URL":        "keyshare.base_url",
	"NODE_VERSION":             "node.version",
	"NODE_BEAST_PORT":          "node.beast_port",
	"NODE_API_PORT":            "node.api_port",
	"NODE_TYPE":                "node.node_type",
	"NODE_PUBLIC_IP_LOOKUP_URL": "node.public_ip_lookup_url",
	"NODE_HOST_GATEWAY_ALIAS":  "node.host_gateway_alias",
	"LOG_LEVEL":                "logging.level",
	"LOG_FORMAT":               "logging.format",
	"LOG_CALLER":               "logging.caller",
	"ANTENNA_ID":               "antennas.0.id",
	"ANTENNA_URL":              "antennas.0.url",
	"ANTENNA_ENABLED":          "antennas.0.enabled",
}

// envTransformFunc maps a flat environment variable name to a koanf path
// via envKeyMappings; unrecognized names are dropped (return "") so they
// don't pollute the config tree with stray top-level keys.
func envTransformFunc(key string) string {
	if path, ok := envKeyMappings[key]; ok {
		return path
	}
	return ""
}
