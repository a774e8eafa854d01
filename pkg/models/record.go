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

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RecordTimeLayout is the timestamp format the sync endpoint expects.
const RecordTimeLayout = "2006-01-02 15:04:05"

// Record is a single normalized attendance punch event. Records are
// immutable once created; equality is structural.
type Record struct {
	DeviceID   int       `json:"device_id"`
	UserID     int       `json:"user_id"`
	Timestamp  time.Time `json:"-"`
	StatusCode int       `json:"status"`
	PunchType  int       `json:"punch"`
}

// recordWire mirrors Record with the endpoint's string timestamp.
type recordWire struct {
	DeviceID   int    `json:"device_id"`
	UserID     int    `json:"user_id"`
	Timestamp  string `json:"timestamp"`
	StatusCode int    `json:"status"`
	PunchType  int    `json:"punch"`
}

// MarshalJSON renders the timestamp in the endpoint's layout.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordWire{
		DeviceID:   r.DeviceID,
		UserID:     r.UserID,
		Timestamp:  r.Timestamp.Format(RecordTimeLayout),
		StatusCode: r.StatusCode,
		PunchType:  r.PunchType,
	})
}

// UnmarshalJSON parses the endpoint's string timestamp back into time.Time.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ts, err := time.ParseInLocation(RecordTimeLayout, w.Timestamp, time.Local)
	if err != nil {
		return err
	}

	*r = Record{
		DeviceID:   w.DeviceID,
		UserID:     w.UserID,
		Timestamp:  ts,
		StatusCode: w.StatusCode,
		PunchType:  w.PunchType,
	}

	return nil
}

// BatchKind distinguishes how a batch was produced.
type BatchKind string

const (
	BatchRealTime BatchKind = "realtime"
	BatchEndOfDay BatchKind = "end_of_day"
	BatchBackfill BatchKind = "backfill"
)

// Batch is an immutable group of records submitted together. Batches are
// disjoint: a record appears in at most one batch.
type Batch struct {
	ID        string    `json:"batch_id"`
	Kind      BatchKind `json:"kind"`
	DeviceID  int       `json:"device_id,omitempty"` // set for per-device batches
	Day       time.Time `json:"day,omitempty"`       // calendar day the records belong to
	Records   []Record  `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBatch creates a batch over records. The slice is owned by the batch
// after this call and must not be appended to by the caller.
func NewBatch(kind BatchKind, records []Record) Batch {
	return Batch{
		ID:        uuid.New().String(),
		Kind:      kind,
		Records:   records,
		CreatedAt: time.Now(),
	}
}

// NewDeviceBatch creates a per-device batch (end-of-day and backfill
// paths). day is the calendar day the records belong to, which can differ
// from the batch's creation time: an end-of-day run firing a moment past
// midnight still ships the previous day.
func NewDeviceBatch(kind BatchKind, deviceID int, day time.Time, records []Record) Batch {
	b := NewBatch(kind, records)
	b.DeviceID = deviceID
	b.Day = day

	return b
}

// PushOutcome is the terminal result of pushing one batch, including
// retries. It is reported and then discarded.
type PushOutcome struct {
	Batch    Batch
	Success  bool
	Attempts int
	LastErr  error
	Elapsed  time.Duration
}
