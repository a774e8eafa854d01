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

package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchsync/punchsync/pkg/models"
)

// SimDriverName is the driver name the simulator registers under.
const SimDriverName = "sim"

// RegisterSimulator installs the in-memory simulator as the "sim" driver.
// Deployments without reachable hardware use it for soak testing.
func RegisterSimulator() {
	RegisterDriver(SimDriverName, func(device models.Device) (Client, error) {
		return NewSimulator(device), nil
	})
}

// Simulator is an in-memory terminal. Tests and the sim driver feed it
// events through Emit and day logs through StoreDayLog.
type Simulator struct {
	device models.Device

	mu          sync.Mutex
	connected   bool
	failConnect error
	failFetch   error
	events      chan Event
	dropCh      chan error
	history     []Event
}

// NewSimulator creates a disconnected simulator for the device.
func NewSimulator(device models.Device) *Simulator {
	return &Simulator{
		device: device,
		events: make(chan Event, 64),
		dropCh: make(chan error, 1),
	}
}

// FailConnect makes subsequent Connect calls fail with the given error.
// Pass nil to restore normal behavior.
func (s *Simulator) FailConnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failConnect = err
}

// FailFetch makes subsequent FetchDayLog calls fail with the given error.
func (s *Simulator) FailFetch(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetch = err
}

// Emit delivers a live event to the current subscriber and appends it to
// the simulated terminal history.
func (s *Simulator) Emit(ev Event) {
	s.mu.Lock()
	s.history = append(s.history, ev)
	connected := s.connected
	s.mu.Unlock()

	if connected {
		s.events <- ev
	}
}

// StoreDayLog seeds terminal history without a live subscriber.
func (s *Simulator) StoreDayLog(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, events...)
}

// Drop simulates a mid-session connection loss observed by the subscriber.
func (s *Simulator) Drop(err error) {
	select {
	case s.dropCh <- err:
	default:
	}
}

// Connected reports whether the simulator currently holds a connection.
func (s *Simulator) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connected
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failConnect != nil {
		return fmt.Errorf("%w: device %d: %w", ErrConnection, s.device.ID, s.failConnect)
	}

	s.connected = true

	return nil
}

func (s *Simulator) SubscribeLiveEvents(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.dropCh:
			return fmt.Errorf("%w: device %d: %w", ErrConnection, s.device.ID, err)
		case ev := <-s.events:
			handler(ev)
		}
	}
}

func (s *Simulator) FetchDayLog(_ context.Context, day time.Time) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFetch != nil {
		return nil, fmt.Errorf("%w: device %d: %w", ErrFetch, s.device.ID, s.failFetch)
	}

	y, m, d := day.Date()

	var out []Event

	for _, ev := range s.history {
		ey, em, ed := ev.Timestamp.Date()
		if ey == y && em == m && ed == d {
			out = append(out, ev)
		}
	}

	return out, nil
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false

	return nil
}
