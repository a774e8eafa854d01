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

// Package alerts forwards pipeline status events to operator-facing
// notification channels. Delivery is best-effort: a failing channel is
// logged and never affects capture, buffering, or dispatch.
package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
)

// Notifier delivers one status event to one external channel.
type Notifier interface {
	Notify(ctx context.Context, event models.StatusEvent) error
}

const (
	// reporterQueueSize bounds pending events; overflow is dropped.
	reporterQueueSize = 128
	// notifyTimeout bounds each delivery attempt.
	notifyTimeout = 10 * time.Second
)

// Reporter fans status events out to all configured notifiers from a
// dedicated goroutine. Report never blocks the caller.
type Reporter struct {
	notifiers []Notifier
	logger    logger.Logger

	events chan models.StatusEvent
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewReporter creates a reporter over the given notifiers.
func NewReporter(notifiers []Notifier, log logger.Logger) *Reporter {
	return &Reporter{
		notifiers: notifiers,
		logger:    log,
		events:    make(chan models.StatusEvent, reporterQueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (r *Reporter) Start() {
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		for {
			select {
			case <-r.done:
				// Drain whatever is already queued, then exit.
				for {
					select {
					case ev := <-r.events:
						r.deliver(ev)
					default:
						return
					}
				}
			case ev := <-r.events:
				r.deliver(ev)
			}
		}
	}()
}

// Stop flushes queued events and stops the delivery goroutine.
func (r *Reporter) Stop() {
	r.once.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// Report queues an event for delivery. If the queue is full the event is
// dropped and logged; the pipeline never waits on notification.
func (r *Reporter) Report(event models.StatusEvent) {
	select {
	case r.events <- event:
	default:
		r.logger.Warn().
			Str("event_type", string(event.Type)).
			Msg("Notification queue full, dropping status event")
	}
}

func (r *Reporter) deliver(event models.StatusEvent) {
	for _, n := range r.notifiers {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)

		if err := n.Notify(ctx, event); err != nil {
			r.logger.Warn().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Notifier delivery failed")
		}

		cancel()
	}
}

// LogNotifier writes status events to the structured log. It is always
// configured so events remain observable without an external channel.
type LogNotifier struct {
	Logger logger.Logger
}

func (l *LogNotifier) Notify(_ context.Context, event models.StatusEvent) error {
	ev := l.Logger.Info().
		Str("event_type", string(event.Type)).
		Time("event_time", event.Timestamp)

	if event.DeviceID != 0 {
		ev = ev.Int("device_id", event.DeviceID)
	}

	if event.RecordCount != 0 {
		ev = ev.Int("records", event.RecordCount)
	}

	ev.Msg(event.Message)

	return nil
}
