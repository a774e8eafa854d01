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
	"fmt"
	"sync"
	"time"

	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/terminal"
)

// defaultEodConnectTimeout is generous: end-of-day fetches pull a full
// day of history and terminals answer slowly under load.
const defaultEodConnectTimeout = 100 * time.Second

// eodResult is one device's end-of-day outcome.
type eodResult struct {
	deviceID int
	records  int
	err      error
}

// runEndOfDay fetches each device's authoritative log for the day over a
// fresh connection, independent of the live capture session and of the
// shared buffer. Live capture misses events during disconnects; this pass
// is the reconciliation mechanism. One device failing never blocks the
// others; a single aggregated summary follows the per-device outcomes.
func (s *Service) runEndOfDay(ctx context.Context, day time.Time) {
	s.logger.Info().Str("date", day.Format("2006-01-02")).Msg("Starting end-of-day collection")

	s.mu.RLock()
	devices := make([]models.Device, 0, len(s.supervisors))
	for _, sup := range s.supervisors {
		devices = append(devices, sup.Device())
	}
	s.mu.RUnlock()

	results := make(chan eodResult, len(devices))

	var wg sync.WaitGroup

	for _, device := range devices {
		wg.Add(1)

		go func(device models.Device) {
			defer wg.Done()
			results <- s.collectDeviceDay(ctx, device, day)
		}(device)
	}

	wg.Wait()
	close(results)

	summary := &models.DailySummary{
		Date:         day.Format("2006-01-02"),
		DeviceStates: make(map[int]string, len(devices)),
	}

	for res := range results {
		summary.TotalRecords += res.records

		if res.err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
	}

	s.mu.RLock()
	for id, sup := range s.supervisors {
		summary.DeviceStates[id] = sup.State().String()
	}
	s.mu.RUnlock()

	event := models.NewStatusEvent(models.EventDailySummary,
		fmt.Sprintf("end-of-day %s: %d records, %d devices ok, %d failed",
			summary.Date, summary.TotalRecords, summary.Succeeded, summary.Failed))
	event.Summary = summary

	s.reporter.Report(event)

	s.logger.Info().
		Str("date", summary.Date).
		Int("records", summary.TotalRecords).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("End-of-day collection finished")
}

// collectDeviceDay fetches and pushes one device's daily log. Fetch and
// push failures are isolated to the device and reported individually.
func (s *Service) collectDeviceDay(ctx context.Context, device models.Device, day time.Time) eodResult {
	records, err := s.fetchDeviceDay(ctx, device, day)
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("device_id", device.ID).
			Msg("End-of-day fetch failed")
		s.reportEodError(device, err)

		return eodResult{deviceID: device.ID, err: err}
	}

	if len(records) == 0 {
		s.logger.Info().Int("device_id", device.ID).Msg("No end-of-day records for device")
		return eodResult{deviceID: device.ID}
	}

	batch := models.NewDeviceBatch(models.BatchEndOfDay, device.ID, day, records)
	outcome := s.pusher.Push(ctx, batch)

	event := models.NewStatusEvent(models.EventPushResult,
		fmt.Sprintf("end-of-day batch for device %d (%d records)", device.ID, len(records)))
	event.DeviceID = device.ID
	event.DeviceName = device.Name
	event.BatchKind = models.BatchEndOfDay
	event.RecordCount = len(records)
	event.Attempts = outcome.Attempts
	event.Success = outcome.Success
	event.Err = outcome.LastErr

	s.reporter.Report(event)

	if !outcome.Success {
		return eodResult{deviceID: device.ID, records: len(records), err: outcome.LastErr}
	}

	return eodResult{deviceID: device.ID, records: len(records)}
}

// fetchDeviceDay opens a fresh connection, pulls the day log, and always
// disconnects.
func (s *Service) fetchDeviceDay(ctx context.Context, device models.Device, day time.Time) ([]models.Record, error) {
	client, err := s.dial(device)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %w", terminal.ErrFetch, device.ID, err)
	}

	defer func() {
		if derr := client.Disconnect(); derr != nil {
			s.logger.Warn().Err(derr).Int("device_id", device.ID).Msg("End-of-day disconnect failed")
		}
	}()

	timeout := s.config.ConnectTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultEodConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		return nil, err
	}

	events, err := client.FetchDayLog(ctx, day)
	if err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(events))
	for _, ev := range events {
		records = append(records, ev.Record(device.ID))
	}

	return records, nil
}

func (s *Service) reportEodError(device models.Device, err error) {
	event := models.NewStatusEvent(models.EventError,
		fmt.Sprintf("end-of-day fetch failed for device %d", device.ID))
	event.DeviceID = device.ID
	event.DeviceName = device.Name
	event.Err = err

	s.reporter.Report(event)
}
