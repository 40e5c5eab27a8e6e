// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package selfreg implements the boot-time node self-registration (§4.Q):
// it looks up the node's public IP, signs a canonical descriptor with the
// node's wallet key, and uploads it to the archive gateway. A failure here
// is informational only - it never blocks boot.
package selfreg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/config"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/wallet"
)

const lookupTimeout = 5 * time.Second

// Register looks up the node's public IP, builds and signs the node
// descriptor, and uploads it. Errors are not logged here; they are returned
// to the caller so boot-time logging can note the failure, but callers should
// not treat a non-nil error as fatal (§4.Q, §7).
func Register(ctx context.Context, cfg config.NodeConfig, w *wallet.Wallet, walletAddress string, archiveClient *archive.Client) error {
	ip, err := lookupPublicIP(ctx, cfg.PublicIPLookupURL)
	if err != nil {
		return fmt.Errorf("selfreg: public ip lookup: %w", err)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	canonical := canonicalDescriptor(cfg, ip, walletAddress, timestamp)

	signature, err := w.Sign([]byte(canonical))
	if err != nil {
		return fmt.Errorf("selfreg: sign descriptor: %w", err)
	}

	payload := canonical + "\n" + signature
	tags := []archive.Tag{
		{Name: "App-Name", Value: "DeradNetworkBackup"},
		{Name: "Type", Value: "node-registration"},
		{Name: "Node-Type", Value: cfg.NodeType},
		{Name: "Node-Version", Value: cfg.Version},
		{Name: "Wallet-Address", Value: walletAddress},
		{Name: "Timestamp", Value: timestamp},
	}

	txID, err := archiveClient.Upload(ctx, []byte(payload), tags)
	if err != nil {
		return fmt.Errorf("selfreg: upload descriptor: %w", err)
	}

	logging.Info().Str("tx_id", txID).Str("public_ip", ip).Msg("node self-registration uploaded")
	return nil
}

// canonicalDescriptor builds the exact JSON object the wallet signs. Go map
// iteration order is not guaranteed, so the fields are assembled as an
// explicit slice and sorted by key before serialisation, giving the
// sorted-key serialisation a real signature rather than relying on
// incidental field-declaration order (§4.Q).
func canonicalDescriptor(cfg config.NodeConfig, publicIP, walletAddress, timestamp string) string {
	fields := []struct {
		key string
		val string
	}{
		{"apiPort", strconv.Itoa(cfg.APIPort)},
		{"beastPort", strconv.Itoa(cfg.BeastPort)},
		{"nodeType", `"` + jsonEscape(cfg.NodeType) + `"`},
		{"publicIP", `"` + jsonEscape(publicIP) + `"`},
		{"timestamp", `"` + jsonEscape(timestamp) + `"`},
		{"version", `"` + jsonEscape(cfg.Version) + `"`},
		{"walletAddress", `"` + jsonEscape(walletAddress) + `"`},
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })

	var b strings.Builder
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(`"` + f.key + `":` + f.val)
	}
	b.WriteByte('}')
	return b.String()
}

func jsonEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// lookupPublicIP fetches the node's public IP from an ipify-style
// endpoint that returns the bare address as a plain-text body.
func lookupPublicIP(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: lookupTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build ip lookup request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ip lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ip lookup returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read ip lookup response: %w", err)
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("ip lookup returned empty body")
	}
	return ip, nil
}
