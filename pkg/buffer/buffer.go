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

// Package buffer implements the shared bounded FIFO of captured records.
// All device supervisors write to it; the dispatcher is the sole drainer.
package buffer

import (
	"sync"

	"github.com/punchsync/punchsync/pkg/metrics"
	"github.com/punchsync/punchsync/pkg/models"
)

// DropFunc is notified when records are discarded oldest-first because the
// backlog bound was exceeded.
type DropFunc func(dropped int)

// Buffer is a bounded FIFO queue of records. Reaching Capacity signals the
// dispatcher; growth beyond MaxBacklog sheds oldest records.
type Buffer struct {
	mu      sync.Mutex
	records []models.Record

	capacity   int
	maxBacklog int

	threshold chan struct{}
	onDrop    DropFunc
	metrics   *metrics.Metrics

	dropped uint64
}

// Option configures optional Buffer behavior.
type Option func(*Buffer)

// WithDropFunc installs a callback invoked (outside the buffer lock) when
// records are shed.
func WithDropFunc(fn DropFunc) Option {
	return func(b *Buffer) {
		b.onDrop = fn
	}
}

// WithMetrics attaches collectors for depth and drop accounting.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Buffer) {
		b.metrics = m
	}
}

// New creates a buffer. capacity is the dispatch threshold; maxBacklog
// bounds growth while the endpoint is unreachable (values below capacity
// are raised to capacity).
func New(capacity, maxBacklog int, opts ...Option) *Buffer {
	if maxBacklog < capacity {
		maxBacklog = capacity
	}

	b := &Buffer{
		records:    make([]models.Record, 0, capacity),
		capacity:   capacity,
		maxBacklog: maxBacklog,
		threshold:  make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Threshold returns the coalesced dispatch signal. The channel carries at
// most one pending signal regardless of how many enqueues crossed the
// threshold, so N enqueues at capacity produce one dispatch, not N.
func (b *Buffer) Threshold() <-chan struct{} {
	return b.threshold
}

// Enqueue appends a record. If the buffer is at or above capacity after
// the append, it signals the dispatcher.
func (b *Buffer) Enqueue(rec models.Record) {
	b.mu.Lock()

	b.records = append(b.records, rec)
	dropped := b.shedLocked()
	depth := len(b.records)

	b.mu.Unlock()

	b.updateDepth(depth)
	b.notifyDrop(dropped)

	if depth >= b.capacity {
		b.signal()
	}
}

// EnqueueFront re-inserts records ahead of everything currently buffered.
// The dispatcher uses it to return an undelivered batch so temporal order
// is preserved as closely as possible.
func (b *Buffer) EnqueueFront(recs []models.Record) {
	if len(recs) == 0 {
		return
	}

	b.mu.Lock()

	b.records = append(append(make([]models.Record, 0, len(recs)+len(b.records)), recs...), b.records...)
	dropped := b.shedLocked()
	depth := len(b.records)

	b.mu.Unlock()

	b.updateDepth(depth)
	b.notifyDrop(dropped)

	if depth >= b.capacity {
		b.signal()
	}
}

// DrainAll atomically removes and returns every buffered record in FIFO
// order, leaving the buffer empty.
func (b *Buffer) DrainAll() []models.Record {
	b.mu.Lock()

	out := b.records
	b.records = make([]models.Record, 0, b.capacity)

	b.mu.Unlock()

	b.updateDepth(0)

	return out
}

// Len returns the current number of buffered records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.records)
}

// Dropped returns the total number of records shed since creation.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// shedLocked enforces the backlog bound, discarding oldest records first.
// Caller holds b.mu.
func (b *Buffer) shedLocked() int {
	excess := len(b.records) - b.maxBacklog
	if excess <= 0 {
		return 0
	}

	b.records = b.records[excess:]
	b.dropped += uint64(excess)

	return excess
}

func (b *Buffer) signal() {
	select {
	case b.threshold <- struct{}{}:
	default:
	}
}

func (b *Buffer) updateDepth(depth int) {
	if b.metrics != nil {
		b.metrics.BufferDepth.Set(float64(depth))
	}
}

func (b *Buffer) notifyDrop(dropped int) {
	if dropped == 0 {
		return
	}

	if b.metrics != nil {
		b.metrics.RecordsDropped.Add(float64(dropped))
	}

	if b.onDrop != nil {
		b.onDrop(dropped)
	}
}
