// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package services adapts ordinary long-running components into
// suture.Service, for the few things in this tree that don't already
// expose a Serve(ctx) error method of their own.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer matches *http.Server's lifecycle methods, so HTTPServerService
// can be unit tested without a real listener.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService wraps an HTTP server as a supervised service: it
// translates http.Server's blocking ListenAndServe into suture's
// context-aware Serve, and calls Shutdown with a bounded timeout when the
// tree cancels.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService wraps server, the one in-scope HTTP surface this
// repository serves (the /ws stats broadcast route, §4.O).
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "http-server",
	}
}

// Serve implements suture.Service.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

// String implements fmt.Stringer for suture's log output.
func (h *HTTPServerService) String() string {
	return h.name
}
