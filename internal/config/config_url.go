// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// validateHTTPURL validates that a URL is properly formatted for HTTP/HTTPS services.
// Validates: scheme (http/https), host present, no query params.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}

	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}

	return nil
}

// validateAntennaURL validates an antenna's feed base URL.
func validateAntennaURL(rawURL string) error {
	return validateHTTPURL(rawURL, "antenna url")
}

// validateArchiveGatewayURL validates the archive gateway base URL, used for
// both the direct upload endpoint and the GraphQL restore endpoint.
func validateArchiveGatewayURL(rawURL string) error {
	return validateHTTPURL(rawURL, "archive gateway url")
}

// rewriteForContainer rewrites a loopback host (localhost, 127.0.0.1, ::1) to
// the container host-gateway alias when running inside a container, so an
// antenna advertised as reachable on the host's loopback interface stays
// reachable from inside the container network namespace.
//
// Container detection has no idiomatic third-party library in this stack -
// it is a one-off filesystem probe rather than a reusable dependency concern
// - so this stays on the standard library: it checks for /.dockerenv and a
// "docker"/"kubepods" marker in /proc/1/cgroup, the common self-identification
// markers container runtimes leave behind.
func rewriteForContainer(rawURL, hostGatewayAlias string) string {
	if !runningInContainer() {
		return rawURL
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	host := parsed.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return rawURL
	}

	if port := parsed.Port(); port != "" {
		parsed.Host = hostGatewayAlias + ":" + port
	} else {
		parsed.Host = hostGatewayAlias
	}
	return parsed.String()
}

func runningInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/1/cgroup")
	if err != nil {
		return false
	}
	content := string(data)
	return strings.Contains(content, "docker") || strings.Contains(content, "kubepods")
}
