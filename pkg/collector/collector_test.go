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

package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/punchsync/punchsync/pkg/alerts"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/pusher"
	"github.com/punchsync/punchsync/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu      sync.Mutex
	batches []models.Batch
	fail    bool
}

func (f *fakePusher) Push(_ context.Context, batch models.Batch) models.PushOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)

	if f.fail {
		return models.PushOutcome{Batch: batch, Success: false, Attempts: 4, LastErr: pusher.ErrPushFailed}
	}

	return models.PushOutcome{Batch: batch, Success: true, Attempts: 1}
}

func (f *fakePusher) pushed() []models.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Batch, len(f.batches))
	copy(out, f.batches)

	return out
}

type captureNotifier struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (c *captureNotifier) Notify(_ context.Context, event models.StatusEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)

	return nil
}

func (c *captureNotifier) byType(t models.EventType) []models.StatusEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []models.StatusEvent

	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}

	return out
}

func testConfig(devices ...models.Device) *Config {
	return &Config{
		Push:    pusher.Config{Endpoint: "http://sync.example/push"},
		Devices: devices,
	}
}

func simDevice(id int) models.Device {
	return models.Device{ID: id, Address: "10.0.0.1", Port: 4370, Driver: terminal.SimDriverName}
}

func punchEvent(userID int, day time.Time, hour int) terminal.Event {
	return terminal.Event{
		UserID:    userID,
		Timestamp: time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.Local),
		Status:    1,
	}
}

// simDialer hands out pre-seeded simulators keyed by device id.
func simDialer(sims map[int]*terminal.Simulator) terminal.Dialer {
	return func(device models.Device) (terminal.Client, error) {
		return sims[device.ID], nil
	}
}

func TestRunEndOfDay_CollectsEveryDeviceIndependently(t *testing.T) {
	day := time.Date(2026, 8, 20, 23, 59, 0, 0, time.Local)

	d1, d2, d3 := simDevice(1), simDevice(2), simDevice(3)

	sims := map[int]*terminal.Simulator{
		1: terminal.NewSimulator(d1),
		2: terminal.NewSimulator(d2),
		3: terminal.NewSimulator(d3),
	}

	sims[1].StoreDayLog(punchEvent(10, day, 8), punchEvent(11, day, 9))
	sims[2].StoreDayLog(punchEvent(20, day, 8))
	sims[3].FailFetch(errors.New("device busy"))

	fp := &fakePusher{}
	capture := &captureNotifier{}

	svc, err := New(testConfig(d1, d2, d3), nil, logger.NewTestLogger(),
		WithDialer(simDialer(sims)),
		WithPusher(fp),
		WithNotifiers([]alerts.Notifier{capture}))
	require.NoError(t, err)

	svc.reporter.Start()
	svc.runEndOfDay(context.Background(), day)
	svc.reporter.Stop()

	batches := fp.pushed()
	require.Len(t, batches, 2)

	for _, b := range batches {
		assert.Equal(t, models.BatchEndOfDay, b.Kind)
		assert.Equal(t, 20, b.Day.Day())
	}

	summaries := capture.byType(models.EventDailySummary)
	require.Len(t, summaries, 1)

	summary := summaries[0].Summary
	require.NotNil(t, summary)
	assert.Equal(t, "2026-08-20", summary.Date)
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	// The failing device surfaced its own error event.
	errEvents := capture.byType(models.EventError)
	require.Len(t, errEvents, 1)
	assert.Equal(t, 3, errEvents[0].DeviceID)
}

func TestRunEndOfDay_EmptyDayIsASuccess(t *testing.T) {
	day := time.Date(2026, 8, 20, 23, 59, 0, 0, time.Local)
	d1 := simDevice(1)

	sims := map[int]*terminal.Simulator{1: terminal.NewSimulator(d1)}

	fp := &fakePusher{}
	capture := &captureNotifier{}

	svc, err := New(testConfig(d1), nil, logger.NewTestLogger(),
		WithDialer(simDialer(sims)),
		WithPusher(fp),
		WithNotifiers([]alerts.Notifier{capture}))
	require.NoError(t, err)

	svc.reporter.Start()
	svc.runEndOfDay(context.Background(), day)
	svc.reporter.Stop()

	assert.Empty(t, fp.pushed())

	summaries := capture.byType(models.EventDailySummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Summary.Succeeded)
	assert.Zero(t, summaries[0].Summary.Failed)
}

func TestRunEndOfDay_PushFailureCountsAsDeviceFailure(t *testing.T) {
	day := time.Date(2026, 8, 20, 23, 59, 0, 0, time.Local)
	d1 := simDevice(1)

	sims := map[int]*terminal.Simulator{1: terminal.NewSimulator(d1)}
	sims[1].StoreDayLog(punchEvent(10, day, 8))

	fp := &fakePusher{fail: true}
	capture := &captureNotifier{}

	svc, err := New(testConfig(d1), nil, logger.NewTestLogger(),
		WithDialer(simDialer(sims)),
		WithPusher(fp),
		WithNotifiers([]alerts.Notifier{capture}))
	require.NoError(t, err)

	svc.reporter.Start()
	svc.runEndOfDay(context.Background(), day)
	svc.reporter.Stop()

	summaries := capture.byType(models.EventDailySummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Summary.Failed)

	pushes := capture.byType(models.EventPushResult)
	require.Len(t, pushes, 1)
	assert.False(t, pushes[0].Success)
	assert.Equal(t, 4, pushes[0].Attempts)
}

func TestService_StartStopLifecycle(t *testing.T) {
	d1 := simDevice(1)

	sims := map[int]*terminal.Simulator{1: terminal.NewSimulator(d1)}

	fp := &fakePusher{}
	capture := &captureNotifier{}

	svc, err := New(testConfig(d1), nil, logger.NewTestLogger(),
		WithDialer(simDialer(sims)),
		WithPusher(fp),
		WithNotifiers([]alerts.Notifier{capture}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !sims[1].Connected() {
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, sims[1].Connected(), "device did not connect")

	require.NoError(t, svc.Stop(context.Background()))

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	assert.False(t, sims[1].Connected())
	assert.NotEmpty(t, capture.byType(models.EventStartup))
	assert.NotEmpty(t, capture.byType(models.EventShutdown))
}
