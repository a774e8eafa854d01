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

// Package supervisor drives the connection lifecycle of one terminal and
// feeds its live punch events into the shared buffer.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchsync/punchsync/pkg/buffer"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/metrics"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/terminal"
)

const defaultConnectTimeout = 30 * time.Second

// ReportFunc receives device status events.
type ReportFunc func(models.StatusEvent)

// Supervisor owns one terminal connection. It never retries on its own:
// after a failed connect or a mid-session drop it parks in Failed or
// Disconnected until the scheduler's next Reconnect sweep.
type Supervisor struct {
	device  models.Device
	client  terminal.Client
	buf     *buffer.Buffer
	report  ReportFunc
	logger  logger.Logger
	metrics *metrics.Metrics

	connectTimeout time.Duration

	state atomic.Int32

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Supervisor behavior.
type Option func(*Supervisor)

// WithConnectTimeout bounds each connect attempt. Zero keeps the default.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithMetrics attaches the shared collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// New creates a supervisor for a device. report may be nil.
func New(device models.Device, client terminal.Client, buf *buffer.Buffer, report ReportFunc, log logger.Logger, opts ...Option) *Supervisor {
	if report == nil {
		report = func(models.StatusEvent) {}
	}

	s := &Supervisor{
		device:         device,
		client:         client,
		buf:            buf,
		report:         report,
		logger:         log,
		connectTimeout: defaultConnectTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Device returns the supervised device's configuration.
func (s *Supervisor) Device() models.Device {
	return s.device
}

// State returns the current connection state.
func (s *Supervisor) State() models.ConnectionState {
	return models.ConnectionState(s.state.Load())
}

// Start begins the first connection attempt. Non-blocking; the capture
// session runs on its own goroutine until Stop or a drop.
func (s *Supervisor) Start(ctx context.Context) {
	s.startSession(ctx)
}

// Reconnect starts a new session unless one is already connected or a
// connect is in progress. Idempotent on a Connected supervisor: the state
// is unchanged and no second connection is made. Buffered records are
// never touched by reconnection.
func (s *Supervisor) Reconnect(ctx context.Context) {
	switch s.State() {
	case models.StateConnected, models.StateConnecting:
		return
	default:
	}

	s.startSession(ctx)
}

// Stop cancels the capture session and releases the connection.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.client.Disconnect(); err != nil {
		s.logger.Warn().Err(err).Int("device_id", s.device.ID).Msg("Disconnect failed")
	}
}

// startSession launches the connect-and-capture goroutine if none is
// running.
func (s *Supervisor) startSession(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		s.runSession(sessionCtx)
	}()
}

// runSession performs one connect attempt and, on success, captures live
// events until the connection drops or the context is canceled.
func (s *Supervisor) runSession(ctx context.Context) {
	s.setState(models.StateConnecting)

	connectCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	err := s.client.Connect(connectCtx)

	cancel()

	if err != nil {
		// Shutdown during a connect attempt is not a device failure.
		if errors.Is(err, context.Canceled) {
			s.setState(models.StateDisconnected)
			return
		}

		s.setState(models.StateFailed)
		s.logger.Error().
			Err(err).
			Int("device_id", s.device.ID).
			Str("addr", s.device.Addr()).
			Msg("Terminal connect failed")
		s.reportState(models.StateFailed, err)

		return
	}

	s.setState(models.StateConnected)
	s.logger.Info().
		Int("device_id", s.device.ID).
		Str("addr", s.device.Addr()).
		Msg("Terminal connected")
	s.reportState(models.StateConnected, nil)

	err = s.client.SubscribeLiveEvents(ctx, s.handleEvent)

	// Shutdown is not a device failure.
	if errors.Is(err, context.Canceled) {
		s.setState(models.StateDisconnected)
		_ = s.client.Disconnect()

		return
	}

	s.setState(models.StateDisconnected)
	_ = s.client.Disconnect()

	s.logger.Warn().
		Err(err).
		Int("device_id", s.device.ID).
		Msg("Terminal connection dropped, awaiting scheduled reconnect")
	s.reportState(models.StateDisconnected, err)
}

// handleEvent normalizes one vendor event and enqueues it.
func (s *Supervisor) handleEvent(ev terminal.Event) {
	rec := ev.Record(s.device.ID)
	s.buf.Enqueue(rec)

	if s.metrics != nil {
		s.metrics.CountCaptured(s.device.ID)
	}

	s.logger.Debug().
		Int("device_id", rec.DeviceID).
		Int("user_id", rec.UserID).
		Time("punch_time", rec.Timestamp).
		Msg("Captured punch")
}

func (s *Supervisor) setState(state models.ConnectionState) {
	s.state.Store(int32(state))

	if s.metrics != nil {
		s.metrics.SetDeviceState(s.device.ID, int32(state))
	}
}

func (s *Supervisor) reportState(state models.ConnectionState, err error) {
	event := models.NewStatusEvent(models.EventDeviceStatus,
		fmt.Sprintf("device %d is %s", s.device.ID, state))
	event.DeviceID = s.device.ID
	event.DeviceName = s.device.Name
	event.State = state
	event.Err = err

	s.report(event)
}
