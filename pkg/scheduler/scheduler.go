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

// Package scheduler is the process-wide timing authority: it drives the
// periodic reconnection sweep and the once-daily cutover trigger on
// independent goroutines.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/punchsync/punchsync/pkg/logger"
)

// ErrInvalidCutover indicates the cutover time is not HH:MM.
var ErrInvalidCutover = errors.New("invalid cutover time")

const (
	// DefaultReconnectInterval matches the fleet's historical sweep cadence.
	DefaultReconnectInterval = 15 * time.Minute
	// DefaultCutoverTime is the end-of-day reconciliation trigger.
	DefaultCutoverTime = "23:59"
)

// SweepFunc runs one reconnection sweep over all supervisors.
type SweepFunc func(ctx context.Context)

// CutoverFunc runs the end-of-day collection for the given day.
type CutoverFunc func(ctx context.Context, day time.Time)

// Scheduler drives the two periodic actions. They never block each other:
// a long end-of-day run does not delay the sweep and vice versa.
type Scheduler struct {
	reconnectInterval time.Duration
	cutoverHour       int
	cutoverMinute     int

	onSweep   SweepFunc
	onCutover CutoverFunc

	clock  Clock
	logger logger.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a scheduler. A nil clock defaults to the real clock.
// cutoverTime is "HH:MM" local time.
func New(reconnectInterval time.Duration, cutoverTime string, onSweep SweepFunc, onCutover CutoverFunc, clock Clock, log logger.Logger) (*Scheduler, error) {
	if clock == nil {
		clock = realClock{}
	}

	if reconnectInterval <= 0 {
		reconnectInterval = DefaultReconnectInterval
	}

	if cutoverTime == "" {
		cutoverTime = DefaultCutoverTime
	}

	hour, minute, err := ParseCutover(cutoverTime)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		reconnectInterval: reconnectInterval,
		cutoverHour:       hour,
		cutoverMinute:     minute,
		onSweep:           onSweep,
		onCutover:         onCutover,
		clock:             clock,
		logger:            log,
		done:              make(chan struct{}),
	}, nil
}

// ParseCutover parses an "HH:MM" cutover time.
func ParseCutover(s string) (hour, minute int, err error) {
	n, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil || n != 2 || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCutover, s)
	}

	return hour, minute, nil
}

// Start launches the sweep and cutover loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(2)

	go s.sweepLoop(ctx)
	go s.cutoverLoop(ctx)
}

// Stop terminates both loops and waits for them.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.reconnectInterval)
	defer ticker.Stop()

	s.logger.Info().
		Dur("interval", s.reconnectInterval).
		Msg("Reconnection sweep scheduled")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.Chan():
			s.onSweep(ctx)
		}
	}
}

func (s *Scheduler) cutoverLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := s.clock.Now()
		target := s.cutoverTarget(now)

		s.logger.Info().
			Dur("in", target.Sub(now)).
			Msg("End-of-day cutover scheduled")

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.clock.After(target.Sub(now)):
			// The day being closed out is the day the cutover instant
			// falls on, so a fire that lands a moment past midnight
			// still collects the intended day.
			s.onCutover(ctx, target)
		}
	}
}

// cutoverTarget returns the next cutover instant strictly after now. A now
// exactly at the cutover instant yields the following day, preventing a
// double fire.
func (s *Scheduler) cutoverTarget(now time.Time) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), s.cutoverHour, s.cutoverMinute, 0, 0, now.Location())

	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}

	return target
}

// NextCutover returns how long after now the next cutover fires.
func (s *Scheduler) NextCutover(now time.Time) time.Duration {
	return s.cutoverTarget(now).Sub(now)
}
