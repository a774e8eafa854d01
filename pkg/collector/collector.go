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

// Package collector wires the telemetry pipeline together: one supervisor
// per terminal feeding the shared buffer, the dispatcher draining it, the
// scheduler driving reconnection sweeps and end-of-day reconciliation, and
// the status reporter fanning events out to notification channels.
package collector

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchsync/punchsync/pkg/alerts"
	"github.com/punchsync/punchsync/pkg/buffer"
	"github.com/punchsync/punchsync/pkg/dispatcher"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/metrics"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/pusher"
	"github.com/punchsync/punchsync/pkg/scheduler"
	"github.com/punchsync/punchsync/pkg/supervisor"
	"github.com/punchsync/punchsync/pkg/terminal"
)

// Service is the collector daemon. It implements lifecycle.Service.
type Service struct {
	config   Config
	logger   logger.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	buf      *buffer.Buffer
	pusher   pusher.Pusher
	disp     *dispatcher.Dispatcher
	sched    *scheduler.Scheduler
	reporter *alerts.Reporter

	mu          sync.RWMutex
	supervisors map[int]*supervisor.Supervisor

	// dial is a seam for tests; defaults to terminal.Dial.
	dial terminal.Dialer

	done      chan struct{}
	closeOnce sync.Once
}

// Option configures optional Service behavior.
type Option func(*Service)

// WithDialer overrides how terminal clients are constructed.
func WithDialer(dial terminal.Dialer) Option {
	return func(s *Service) {
		s.dial = dial
	}
}

// WithPusher overrides the push client.
func WithPusher(p pusher.Pusher) Option {
	return func(s *Service) {
		s.pusher = p
	}
}

// WithNotifiers replaces the notification channels built from config.
func WithNotifiers(notifiers []alerts.Notifier) Option {
	return func(s *Service) {
		s.reporter = alerts.NewReporter(notifiers, s.logger)
	}
}

// New builds the pipeline from config. A nil clock uses the real clock.
func New(config *Config, clock scheduler.Clock, log logger.Logger, opts ...Option) (*Service, error) {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	s := &Service{
		config:      *config,
		logger:      log,
		registry:    registry,
		metrics:     m,
		supervisors: make(map[int]*supervisor.Supervisor, len(config.Devices)),
		dial:        terminal.Dial,
		done:        make(chan struct{}),
	}

	s.buf = buffer.New(config.bufferCapacity(), config.maxBacklog(),
		buffer.WithMetrics(m),
		buffer.WithDropFunc(s.reportDrop))

	s.pusher = pusher.NewHTTPPusher(config.Push, m, log)

	notifiers := []alerts.Notifier{&alerts.LogNotifier{Logger: log}}
	if tg := alerts.NewTelegramNotifier(config.Telegram); tg != nil {
		notifiers = append(notifiers, tg)
	}

	s.reporter = alerts.NewReporter(notifiers, log)

	for _, opt := range opts {
		opt(s)
	}

	s.disp = dispatcher.New(s.buf, s.pusher, s.reporter.Report, log)

	for _, device := range config.Devices {
		client, err := s.dial(device)
		if err != nil {
			return nil, fmt.Errorf("device %d: %w", device.ID, err)
		}

		s.supervisors[device.ID] = supervisor.New(device, client, s.buf, s.reporter.Report, log,
			supervisor.WithMetrics(m),
			supervisor.WithConnectTimeout(config.ConnectTimeout.Duration()))
	}

	sched, err := scheduler.New(config.reconnectInterval(), config.cutoverTime(),
		s.reconnectSweep, s.runEndOfDay, clock, log)
	if err != nil {
		return nil, err
	}

	s.sched = sched

	return s, nil
}

// Registry exposes the metrics registry for the admin listener.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// Start brings the pipeline up and blocks until ctx is canceled.
func (s *Service) Start(ctx context.Context) error {
	s.reporter.Start()
	s.disp.Start(ctx)

	s.mu.RLock()
	for _, sup := range s.supervisors {
		sup.Start(ctx)
	}
	s.mu.RUnlock()

	s.sched.Start(ctx)

	startup := models.NewStatusEvent(models.EventStartup,
		fmt.Sprintf("monitoring %d devices, endpoint %s", len(s.config.Devices), s.config.Push.Endpoint))
	s.reporter.Report(startup)

	s.logger.Info().
		Int("devices", len(s.config.Devices)).
		Str("endpoint", s.config.Push.Endpoint).
		Msg("Collector started")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// Stop shuts the pipeline down. Buffered records that were never
// dispatched are lost by design and reported, not silently swallowed.
func (s *Service) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.sched.Stop()

	s.mu.RLock()
	for _, sup := range s.supervisors {
		sup.Stop()
	}
	s.mu.RUnlock()

	s.disp.Stop()

	lost := s.buf.Len()
	shutdown := models.NewStatusEvent(models.EventShutdown,
		fmt.Sprintf("collector stopping, %d undispatched records lost", lost))
	shutdown.RecordCount = lost
	s.reporter.Report(shutdown)

	s.reporter.Stop()

	s.logger.Info().Int("records_lost", lost).Msg("Collector stopped")

	return nil
}

// reconnectSweep calls Reconnect on every supervisor. Connected devices
// treat it as a no-op.
func (s *Service) reconnectSweep(ctx context.Context) {
	s.logger.Debug().Msg("Running reconnection sweep")

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sup := range s.supervisors {
		sup.Reconnect(ctx)
	}
}

func (s *Service) reportDrop(dropped int) {
	event := models.NewStatusEvent(models.EventRecordsDropped,
		fmt.Sprintf("%d records dropped after backlog bound exceeded", dropped))
	event.RecordCount = dropped

	s.reporter.Report(event)
}
