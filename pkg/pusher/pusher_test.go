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

package pusher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		MaxRetries:     3,
		InitialBackoff: models.Duration(time.Millisecond),
		MaxBackoff:     models.Duration(5 * time.Millisecond),
	}
}

func testBatch(kind models.BatchKind, n int) models.Batch {
	records := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, models.Record{
			DeviceID:   2,
			UserID:     100 + i,
			Timestamp:  time.Date(2026, 8, 20, 17, 30, i, 0, time.Local),
			StatusCode: 1,
			PunchType:  0,
		})
	}

	if kind == models.BatchRealTime {
		return models.NewBatch(kind, records)
	}

	return models.NewDeviceBatch(kind, 2, time.Date(2026, 8, 20, 0, 0, 0, 0, time.Local), records)
}

func TestHTTPPusher_TransientFailuresThenSuccess(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPusher(fastConfig(srv.URL), nil, logger.NewTestLogger())

	outcome := p.Push(context.Background(), testBatch(models.BatchRealTime, 2))

	assert.True(t, outcome.Success)
	assert.Equal(t, 3, outcome.Attempts)
	assert.NoError(t, outcome.LastErr)
	assert.EqualValues(t, 3, calls.Load())
}

func TestHTTPPusher_ExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 2

	p := NewHTTPPusher(cfg, nil, logger.NewTestLogger())

	outcome := p.Push(context.Background(), testBatch(models.BatchRealTime, 1))

	assert.False(t, outcome.Success)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, outcome.Attempts)
	require.Error(t, outcome.LastErr)
	assert.ErrorIs(t, outcome.LastErr, ErrPushFailed)
}

func TestHTTPPusher_RealTimePayloadShape(t *testing.T) {
	var got map[string]json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPusher(fastConfig(srv.URL), nil, logger.NewTestLogger())

	outcome := p.Push(context.Background(), testBatch(models.BatchRealTime, 2))
	require.True(t, outcome.Success)

	require.Contains(t, got, "Json")
	assert.NotContains(t, got, "kind")

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(got["Json"], &records))
	require.Len(t, records, 2)

	assert.EqualValues(t, 2, records[0]["device_id"])
	assert.EqualValues(t, 100, records[0]["user_id"])
	assert.Equal(t, "2026-08-20 17:30:00", records[0]["timestamp"])
	assert.EqualValues(t, 1, records[0]["status"])
	assert.EqualValues(t, 0, records[0]["punch"])
}

func TestHTTPPusher_EndOfDayPayloadCarriesEnvelope(t *testing.T) {
	var got map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPusher(fastConfig(srv.URL), nil, logger.NewTestLogger())

	outcome := p.Push(context.Background(), testBatch(models.BatchEndOfDay, 1))
	require.True(t, outcome.Success)

	assert.Equal(t, string(models.BatchEndOfDay), got["kind"])
	assert.EqualValues(t, 2, got["device_id"])

	// The envelope date is the day being reconciled, not the batch's
	// creation time.
	assert.Equal(t, "2026-08-20", got["date"])
}

func TestHTTPPusher_ContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 1000
	cfg.InitialBackoff = models.Duration(50 * time.Millisecond)

	p := NewHTTPPusher(cfg, nil, logger.NewTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	outcome := p.Push(ctx, testBatch(models.BatchRealTime, 1))

	assert.False(t, outcome.Success)
	assert.Less(t, outcome.Attempts, 10)
}
