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

// Package terminal defines the contract between the pipeline and a vendor
// biometric terminal. The wire protocol lives in vendor adapters that
// register a Dialer; this package carries no buffering or retry logic.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/punchsync/punchsync/pkg/models"
)

var (
	// ErrConnection indicates the terminal refused or timed out a connect.
	ErrConnection = errors.New("terminal connection failed")
	// ErrFetch indicates a day-log fetch failed or returned malformed data.
	ErrFetch = errors.New("terminal log fetch failed")
	// ErrNotConnected indicates an operation that requires an established
	// connection was called without one.
	ErrNotConnected = errors.New("terminal not connected")
	// ErrUnknownDriver indicates no Dialer is registered for the driver name.
	ErrUnknownDriver = errors.New("unknown terminal driver")
)

// Event is one punch event as reported by the vendor terminal, before
// normalization into a models.Record.
type Event struct {
	UserID    int
	Timestamp time.Time
	Status    int
	Punch     int
}

// Record normalizes a vendor event into the pipeline record for a device.
func (e Event) Record(deviceID int) models.Record {
	return models.Record{
		DeviceID:   deviceID,
		UserID:     e.UserID,
		Timestamp:  e.Timestamp,
		StatusCode: e.Status,
		PunchType:  e.Punch,
	}
}

// Handler receives one live event per captured punch.
type Handler func(Event)

// Client is one connection to one terminal.
type Client interface {
	// Connect establishes the connection. It fails with ErrConnection on
	// refusal or timeout (the caller bounds the timeout via ctx).
	Connect(ctx context.Context) error

	// SubscribeLiveEvents invokes handler once per captured punch for the
	// lifetime of the connection. It blocks until the connection drops
	// (returning a non-nil error) or ctx is canceled (returning ctx.Err()).
	SubscribeLiveEvents(ctx context.Context, handler Handler) error

	// FetchDayLog returns all events the terminal recorded on the given
	// calendar day. It does not require a prior SubscribeLiveEvents and
	// fails with ErrFetch when the device is unreachable or the data is
	// malformed.
	FetchDayLog(ctx context.Context, day time.Time) ([]Event, error)

	// Disconnect releases the connection. Idempotent.
	Disconnect() error
}

// Dialer constructs a Client for a configured device.
type Dialer func(device models.Device) (Client, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Dialer)
)

// RegisterDriver makes a vendor adapter available under the given name.
func RegisterDriver(name string, dialer Dialer) {
	driversMu.Lock()
	defer driversMu.Unlock()

	drivers[name] = dialer
}

// Dial constructs a Client for the device using its configured driver.
func Dial(device models.Device) (Client, error) {
	driversMu.RLock()
	dialer, ok := drivers[device.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (device %d)", ErrUnknownDriver, device.Driver, device.ID)
	}

	return dialer(device)
}
