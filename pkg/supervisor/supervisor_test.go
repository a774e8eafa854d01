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

package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/punchsync/punchsync/pkg/buffer"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice() models.Device {
	return models.Device{ID: 7, Name: "lobby", Address: "10.0.0.7", Port: 4370, Driver: terminal.SimDriverName}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatal("condition not met in time")
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.StatusEvent
}

func (r *eventRecorder) report(ev models.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []models.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.StatusEvent, len(r.events))
	copy(out, r.events)

	return out
}

func TestSupervisor_ConnectAndCapture(t *testing.T) {
	device := testDevice()
	sim := terminal.NewSimulator(device)
	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, sim, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnected })

	punchTime := time.Date(2026, 8, 20, 8, 59, 30, 0, time.Local)
	sim.Emit(terminal.Event{UserID: 42, Timestamp: punchTime, Status: 1, Punch: 0})

	waitFor(t, func() bool { return buf.Len() == 1 })

	got := buf.DrainAll()
	require.Len(t, got, 1)
	assert.Equal(t, device.ID, got[0].DeviceID)
	assert.Equal(t, 42, got[0].UserID)
	assert.True(t, punchTime.Equal(got[0].Timestamp))

	sup.Stop()

	events := rec.all()
	require.NotEmpty(t, events)
	assert.Equal(t, models.StateConnected, events[0].State)
	assert.Equal(t, device.ID, events[0].DeviceID)
	assert.Equal(t, device.Name, events[0].DeviceName)
}

func TestSupervisor_ReconnectWhileConnectedIsNoOp(t *testing.T) {
	device := testDevice()
	sim := terminal.NewSimulator(device)
	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, sim, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnected })

	sup.Reconnect(ctx)
	sup.Reconnect(ctx)

	assert.Equal(t, models.StateConnected, sup.State())

	sup.Stop()

	// Only the initial connect produced a status event.
	assert.Len(t, rec.all(), 1)
}

func TestSupervisor_ConnectFailureParksFailed(t *testing.T) {
	device := testDevice()
	sim := terminal.NewSimulator(device)
	sim.FailConnect(errors.New("host unreachable"))

	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, sim, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateFailed })

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.StateFailed, events[0].State)
	require.Error(t, events[0].Err)
	assert.ErrorIs(t, events[0].Err, terminal.ErrConnection)

	sup.Stop()
}

func TestSupervisor_DropPreservesBufferAndAllowsReconnect(t *testing.T) {
	device := testDevice()
	sim := terminal.NewSimulator(device)
	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, sim, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnected })

	sim.Emit(terminal.Event{UserID: 1, Timestamp: time.Now(), Status: 1})
	waitFor(t, func() bool { return buf.Len() == 1 })

	sim.Drop(errors.New("connection reset"))
	waitFor(t, func() bool { return sup.State() == models.StateDisconnected })

	// Captured records survive the drop.
	assert.Equal(t, 1, buf.Len())

	// The next sweep brings the device back.
	sup.Reconnect(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnected })

	sup.Stop()

	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.StateConnected, events[0].State)
	assert.Equal(t, models.StateDisconnected, events[1].State)
	assert.Equal(t, models.StateConnected, events[2].State)
}

// stalledClient blocks in Connect until its context is canceled, modeling
// an unreachable terminal mid-handshake.
type stalledClient struct{}

func (c *stalledClient) Connect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *stalledClient) SubscribeLiveEvents(ctx context.Context, _ terminal.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *stalledClient) FetchDayLog(context.Context, time.Time) ([]terminal.Event, error) {
	return nil, nil
}

func (c *stalledClient) Disconnect() error { return nil }

func TestSupervisor_StopDuringConnectIsNotAFailure(t *testing.T) {
	device := testDevice()
	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, &stalledClient{}, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnecting })

	sup.Stop()

	assert.Equal(t, models.StateDisconnected, sup.State())
	assert.Empty(t, rec.all(), "shutdown mid-connect must not report a device failure")
}

func TestSupervisor_StopReleasesConnectionQuietly(t *testing.T) {
	device := testDevice()
	sim := terminal.NewSimulator(device)
	buf := buffer.New(100, 1000)
	rec := &eventRecorder{}

	sup := New(device, sim, buf, rec.report, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup.Start(ctx)
	waitFor(t, func() bool { return sup.State() == models.StateConnected })

	sup.Stop()

	assert.Equal(t, models.StateDisconnected, sup.State())
	assert.False(t, sim.Connected())

	// Shutdown must not be reported as a device failure.
	for _, ev := range rec.all()[1:] {
		assert.NotEqual(t, models.StateDisconnected, ev.State)
	}
}
