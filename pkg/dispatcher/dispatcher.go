/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package dispatcher drains the shared buffer into real-time batches and
// pushes them to the sync endpoint.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/punchsync/punchsync/pkg/buffer"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/pusher"
)

// ReportFunc receives dispatch outcome events.
type ReportFunc func(models.StatusEvent)

// Dispatcher owns the drain-and-push cycle. A single goroutine consumes
// the buffer's threshold signal and explicit triggers, so at most one push
// is in flight and overlapping signals coalesce into one later dispatch.
type Dispatcher struct {
	buf    *buffer.Buffer
	pusher pusher.Pusher
	report ReportFunc
	logger logger.Logger

	trigger   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a dispatcher. report may be nil.
func New(buf *buffer.Buffer, p pusher.Pusher, report ReportFunc, log logger.Logger) *Dispatcher {
	if report == nil {
		report = func(models.StatusEvent) {}
	}

	return &Dispatcher{
		buf:     buf,
		pusher:  p,
		report:  report,
		logger:  log,
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Start runs the dispatch loop until ctx is canceled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case <-d.done:
				return
			case <-d.buf.Threshold():
				d.dispatch(ctx)
			case <-d.trigger:
				d.dispatch(ctx)
			}
		}
	}()
}

// Stop terminates the dispatch loop and waits for any in-flight push.
func (d *Dispatcher) Stop() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// Trigger requests a dispatch regardless of buffer depth. Requests made
// while a dispatch is in flight coalesce into a single subsequent run.
func (d *Dispatcher) Trigger() {
	select {
	case d.trigger <- struct{}{}:
	default:
	}
}

// dispatch drains the buffer into one real-time batch and pushes it. On
// exhausted retries the records are returned to the front of the buffer so
// nothing is lost and temporal order is preserved.
func (d *Dispatcher) dispatch(ctx context.Context) {
	records := d.buf.DrainAll()
	if len(records) == 0 {
		return
	}

	batch := models.NewBatch(models.BatchRealTime, records)

	d.logger.Debug().
		Str("batch_id", batch.ID).
		Int("records", len(records)).
		Msg("Dispatching real-time batch")

	outcome := d.pusher.Push(ctx, batch)

	event := models.NewStatusEvent(models.EventPushResult,
		fmt.Sprintf("real-time batch of %d records", len(records)))
	event.BatchKind = models.BatchRealTime
	event.RecordCount = len(records)
	event.Attempts = outcome.Attempts
	event.Success = outcome.Success
	event.Err = outcome.LastErr

	if !outcome.Success {
		d.buf.EnqueueFront(records)

		d.logger.Warn().
			Str("batch_id", batch.ID).
			Int("records", len(records)).
			Msg("Push failed, records re-enqueued")
	}

	d.report(event)
}
