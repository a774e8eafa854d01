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

package models

import "time"

// EventType identifies a discrete status event emitted by the pipeline.
type EventType string

const (
	EventStartup        EventType = "startup"
	EventShutdown       EventType = "shutdown"
	EventDeviceStatus   EventType = "device_status"
	EventPushResult     EventType = "push_result"
	EventRecordsDropped EventType = "records_dropped"
	EventDailySummary   EventType = "daily_summary"
	EventError          EventType = "error"
)

// StatusEvent is the one-way message delivered to the notification
// collaborator. Delivery is best-effort; the pipeline never waits on it.
type StatusEvent struct {
	Type      EventType
	Timestamp time.Time
	Message   string

	// Populated per event type; zero values mean "not applicable".
	DeviceID    int
	DeviceName  string
	State       ConnectionState
	BatchKind   BatchKind
	RecordCount int
	Attempts    int
	Success     bool
	Err         error

	// Daily summary fields.
	Summary *DailySummary
}

// DailySummary aggregates one end-of-day reconciliation run.
type DailySummary struct {
	Date         string
	TotalRecords int
	Succeeded    int
	Failed       int
	DeviceStates map[int]string
}

// NewStatusEvent stamps an event with the current time.
func NewStatusEvent(t EventType, msg string) StatusEvent {
	return StatusEvent{Type: t, Timestamp: time.Now(), Message: msg}
}
