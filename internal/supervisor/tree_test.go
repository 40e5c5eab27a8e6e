// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type stubService struct {
	started chan struct{}
}

func (s *stubService) Serve(ctx context.Context) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewSupervisorTree_AppliesZeroValueDefaults(t *testing.T) {
	tree, err := NewSupervisorTree(discardLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.config.FailureThreshold != 5.0 {
		t.Fatalf("expected default FailureThreshold=5.0, got %v", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != 10*time.Second {
		t.Fatalf("expected default ShutdownTimeout=10s, got %v", tree.config.ShutdownTimeout)
	}
}

func TestSupervisorTree_AddIngestServiceStartsUnderTree(t *testing.T) {
	tree, err := NewSupervisorTree(discardLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}

	svc := &stubService{started: make(chan struct{})}
	tree.AddIngestService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the ingest service to start")
	}

	cancel()

	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the supervisor tree to shut down")
	}
}

func TestSupervisorTree_AddPipelineAndBroadcastServicesStart(t *testing.T) {
	tree, err := NewSupervisorTree(discardLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}

	pipelineSvc := &stubService{started: make(chan struct{})}
	broadcastSvc := &stubService{started: make(chan struct{})}
	tree.AddPipelineService(pipelineSvc)
	token := tree.AddBroadcastService(broadcastSvc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	select {
	case <-pipelineSvc.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the pipeline service to start")
	}
	select {
	case <-broadcastSvc.started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the broadcast service to start")
	}

	if err := tree.RemoveBroadcastService(token); err != nil {
		t.Fatalf("RemoveBroadcastService: %v", err)
	}
}

func TestSupervisorTree_RootReturnsUnderlyingSupervisor(t *testing.T) {
	tree, err := NewSupervisorTree(discardLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatalf("expected Root() to return a non-nil supervisor")
	}
}
