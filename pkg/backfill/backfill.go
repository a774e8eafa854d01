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

// Package backfill replays a date range of terminal history to the sync
// endpoint in chunked batches.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/pusher"
	"github.com/punchsync/punchsync/pkg/terminal"
)

// DefaultChunkSize is the number of records pushed per request.
const DefaultChunkSize = 500

const connectTimeout = 100 * time.Second

var (
	// ErrNoSuchDevice indicates the -device-id filter matched nothing.
	ErrNoSuchDevice = errors.New("no such device in configuration")
	errChunkFailed  = errors.New("chunk push failed, aborting device")
)

// Config parameterizes one backfill run. From/To are inclusive calendar
// days.
type Config struct {
	Devices   []models.Device
	Push      pusher.Config
	ChunkSize int
	DeviceID  int // 0 means all devices
	From      time.Time
	To        time.Time
}

// Runner executes a backfill over the configured devices sequentially.
type Runner struct {
	config Config
	pusher pusher.Pusher
	dial   terminal.Dialer
	logger logger.Logger
}

// New creates a runner. The dialer and pusher are replaceable for tests
// via the Option funcs.
func New(config Config, log logger.Logger, opts ...Option) *Runner {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	r := &Runner{
		config: config,
		pusher: pusher.NewHTTPPusher(config.Push, nil, log),
		dial:   terminal.Dial,
		logger: log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Option configures optional Runner behavior.
type Option func(*Runner)

// WithPusher overrides the push client.
func WithPusher(p pusher.Pusher) Option {
	return func(r *Runner) {
		r.pusher = p
	}
}

// WithDialer overrides terminal client construction.
func WithDialer(dial terminal.Dialer) Option {
	return func(r *Runner) {
		r.dial = dial
	}
}

// Run backfills every selected device and returns the total number of
// records durably accepted. Per-device failures do not stop the run; they
// are joined into the returned error.
func (r *Runner) Run(ctx context.Context) (int, error) {
	devices := r.selectDevices()
	if len(devices) == 0 {
		return 0, fmt.Errorf("%w: device_id=%d", ErrNoSuchDevice, r.config.DeviceID)
	}

	var (
		total  int
		runErr error
	)

	for _, device := range devices {
		pushed, err := r.backfillDevice(ctx, device)
		total += pushed

		if err != nil {
			r.logger.Error().Err(err).Int("device_id", device.ID).Msg("Device backfill failed")
			runErr = errors.Join(runErr, fmt.Errorf("device %d: %w", device.ID, err))
		}
	}

	return total, runErr
}

func (r *Runner) selectDevices() []models.Device {
	if r.config.DeviceID == 0 {
		return r.config.Devices
	}

	for _, d := range r.config.Devices {
		if d.ID == r.config.DeviceID {
			return []models.Device{d}
		}
	}

	return nil
}

// backfillDevice collects the range from one terminal and pushes it in
// chunks. A chunk exhausting its retries aborts the device's remaining
// chunks: the endpoint is clearly unhealthy and order matters.
func (r *Runner) backfillDevice(ctx context.Context, device models.Device) (int, error) {
	records, err := r.collectRange(ctx, device)
	if err != nil {
		return 0, err
	}

	if len(records) == 0 {
		r.logger.Info().Int("device_id", device.ID).Msg("Nothing to backfill")
		return 0, nil
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	pushed := 0

	for i := 0; i < len(records); i += r.config.ChunkSize {
		end := min(i+r.config.ChunkSize, len(records))
		chunk := records[i:end]

		// Records are sorted, so the chunk's first timestamp names the day
		// the chunk starts on.
		batch := models.NewDeviceBatch(models.BatchBackfill, device.ID, chunk[0].Timestamp, chunk)

		outcome := r.pusher.Push(ctx, batch)
		if !outcome.Success {
			return pushed, fmt.Errorf("%w: %w", errChunkFailed, outcome.LastErr)
		}

		pushed += len(chunk)

		r.logger.Info().
			Int("device_id", device.ID).
			Int("records", len(chunk)).
			Int("pushed", pushed).
			Msg("Backfill chunk pushed")
	}

	return pushed, nil
}

// collectRange pulls every day in [From, To] from the terminal over one
// connection.
func (r *Runner) collectRange(ctx context.Context, device models.Device) ([]models.Record, error) {
	client, err := r.dial(device)
	if err != nil {
		return nil, err
	}

	defer func() {
		if derr := client.Disconnect(); derr != nil {
			r.logger.Warn().Err(derr).Int("device_id", device.ID).Msg("Disconnect failed")
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}

	var records []models.Record

	y, m, d := r.config.From.Date()
	fromDay := time.Date(y, m, d, 0, 0, 0, 0, r.config.From.Location())

	for day := fromDay; !day.After(r.config.To); day = day.AddDate(0, 0, 1) {
		events, err := client.FetchDayLog(ctx, day)
		if err != nil {
			return nil, err
		}

		for _, ev := range events {
			records = append(records, ev.Record(device.ID))
		}
	}

	r.logger.Info().
		Int("device_id", device.ID).
		Int("records", len(records)).
		Msg("Collected terminal history")

	return records, nil
}
