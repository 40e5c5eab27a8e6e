// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package pipeline implements the bounded-concurrency, retry/backoff
// upload pipeline (§4.I). Two instances run side by side - one for the
// clear payload, one for the encrypted payload - each with its own queue,
// slots, and counters.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/metrics"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/stats"
)

// MaxConcurrent is the number of free-list slots per pipeline.
const MaxConcurrent = 5

// MaxRetries is the maximum number of attempts before a batch is dropped.
const MaxRetries = 5

// UploadFn performs one upload attempt for a batch. A non-nil error that
// is or wraps a *PermanentError is never retried.
type UploadFn func(ctx context.Context, batch model.Batch) error

// PermanentError marks an UploadFn failure as non-retryable.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Status is a slot's current lifecycle state.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusRetrying  Status = "retrying"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SlotProgress describes one in-flight upload's progress.
type SlotProgress struct {
	StartTime time.Time
	Status    Status
}

// Counters are the pipeline's quiescent-convergent upload counters (§7,
// §8 invariant 1): attempted == succeeded + failed whenever the queue is
// empty and every slot is free.
type Counters struct {
	Attempted int64
	Succeeded int64
	Failed    int64
	Retries   int64
}

// Pipeline is one of the two identical upload pipeline instances.
type Pipeline struct {
	name     string
	fn       UploadFn
	register *stats.Register

	queue chan model.Batch
	slots chan struct{}

	counters Counters

	mu        sync.Mutex
	slotState map[int]SlotProgress
	freeSlots []int

	wg sync.WaitGroup
}

// New creates a pipeline named name (used as the "clear"/"enc" metrics and
// Stats Register label) that invokes fn for each enqueued batch. register
// may be nil, in which case Stats Register bookkeeping is skipped.
func New(name string, fn UploadFn, register *stats.Register) *Pipeline {
	freeSlots := make([]int, MaxConcurrent)
	for i := range freeSlots {
		freeSlots[i] = i + 1
	}
	return &Pipeline{
		name:      name,
		fn:        fn,
		register:  register,
		queue:     make(chan model.Batch, 1024),
		slots:     make(chan struct{}, MaxConcurrent),
		slotState: make(map[int]SlotProgress, MaxConcurrent),
		freeSlots: freeSlots,
	}
}

// Enqueue adds batch to the FIFO queue. Queue entries are not durable:
// on shutdown, queued-but-undispatched items are dropped (§5).
func (p *Pipeline) Enqueue(batch model.Batch) {
	p.queue <- batch
}

// Serve runs the dispatch loop until ctx is canceled. In-flight uploads
// are allowed to finish; the queue itself is not drained.
func (p *Pipeline) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()
		case batch := <-p.queue:
			select {
			case p.slots <- struct{}{}:
			case <-ctx.Done():
				p.wg.Wait()
				return ctx.Err()
			}
			p.wg.Add(1)
			go p.dispatch(ctx, batch)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, batch model.Batch) {
	defer p.wg.Done()

	slot := p.claimSlot()
	defer func() {
		p.releaseSlot(slot)
		<-p.slots
	}()

	p.executeWithRetry(ctx, batch, slot)
}

// claimSlot pops a slot id off the free-list and marks it uploading. The
// free-list is bounded by MaxConcurrent and guarded by p.slots (a counting
// semaphore of the same size), so a pop never races an empty list.
func (p *Pipeline) claimSlot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := p.freeSlots[len(p.freeSlots)-1]
	p.freeSlots = p.freeSlots[:len(p.freeSlots)-1]
	p.slotState[slot] = SlotProgress{StartTime: time.Now(), Status: StatusUploading}
	return slot
}

func (p *Pipeline) releaseSlot(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.slotState, slot)
	p.freeSlots = append(p.freeSlots, slot)
}

func (p *Pipeline) setSlotStatus(slot int, status Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	progress, ok := p.slotState[slot]
	if !ok {
		return
	}
	progress.Status = status
	p.slotState[slot] = progress
}

// Progress returns a snapshot of every in-flight slot's state, keyed by
// slot id (§4.I).
func (p *Pipeline) Progress() map[int]SlotProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int]SlotProgress, len(p.slotState))
	for slot, progress := range p.slotState {
		out[slot] = progress
	}
	return out
}

// executeWithRetry drives the backoff.ExponentialBackOff with the exact
// schedule BACKOFF(a) = min(1000*2^(a-1), 16000) ms, capped at MaxRetries
// attempts (§4.I). RandomizationFactor is zeroed so the waits between
// attempts are exactly 1s, 2s, 4s, 8s rather than backoff/v4's default
// +/-50% jitter - §8's S6 scenario observes the exact sequence. With
// MaxRetries attempts there are at most four waits, so the 16s cap is
// never reached.
func (p *Pipeline) executeWithRetry(ctx context.Context, batch model.Batch, slot int) {
	attempt := 0
	firstAttempt := true

	operation := func() error {
		attempt++
		if firstAttempt {
			atomic.AddInt64(&p.counters.Attempted, 1)
			metrics.UploadsTotal.WithLabelValues(p.name, "attempted").Inc()
			if p.register != nil {
				p.register.RecordAttempt(p.name)
			}
			firstAttempt = false
		}

		err := p.fn(ctx, batch)
		if err == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return backoff.Permanent(err)
		}
		if attempt >= MaxRetries {
			return backoff.Permanent(err)
		}

		atomic.AddInt64(&p.counters.Retries, 1)
		metrics.UploadRetriesTotal.WithLabelValues(p.name).Inc()
		if p.register != nil {
			p.register.RecordRetry(p.name)
		}
		p.setSlotStatus(slot, StatusRetrying)
		logging.Warn().Err(err).Str("pipeline", p.name).Str("batch_id", batch.BatchID).Int("attempt", attempt).Msg("upload attempt failed, retrying")
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.Multiplier = 2
	bo.MaxInterval = 16 * time.Second
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	if err == nil {
		atomic.AddInt64(&p.counters.Succeeded, 1)
		metrics.UploadsTotal.WithLabelValues(p.name, "succeeded").Inc()
		if p.register != nil {
			p.register.RecordSuccess(p.name)
		}
		p.setSlotStatus(slot, StatusCompleted)
		return
	}

	atomic.AddInt64(&p.counters.Failed, 1)
	metrics.UploadsTotal.WithLabelValues(p.name, "failed").Inc()
	if p.register != nil {
		p.register.RecordFailure(p.name)
	}
	p.setSlotStatus(slot, StatusFailed)
	logging.Error().Err(err).Str("pipeline", p.name).Str("batch_id", batch.BatchID).Msg("upload failed, batch dropped")
}

// Snapshot returns a copy of the pipeline's current counters.
func (p *Pipeline) Snapshot() Counters {
	return Counters{
		Attempted: atomic.LoadInt64(&p.counters.Attempted),
		Succeeded: atomic.LoadInt64(&p.counters.Succeeded),
		Failed:    atomic.LoadInt64(&p.counters.Failed),
		Retries:   atomic.LoadInt64(&p.counters.Retries),
	}
}
