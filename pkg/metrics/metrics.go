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

// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors shared across the pipeline.
type Metrics struct {
	BufferDepth     prometheus.Gauge
	RecordsCaptured *prometheus.CounterVec
	RecordsDropped  prometheus.Counter
	PushAttempts    prometheus.Counter
	PushFailures    prometheus.Counter
	PushedRecords   prometheus.Counter
	DeviceState     *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "punchsync",
			Name:      "buffer_depth",
			Help:      "Records currently held in the shared buffer.",
		}),
		RecordsCaptured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "punchsync",
			Name:      "records_captured_total",
			Help:      "Live punch records captured, by device.",
		}, []string{"device_id"}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "punchsync",
			Name:      "records_dropped_total",
			Help:      "Records dropped oldest-first when the backlog bound was exceeded.",
		}),
		PushAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "punchsync",
			Name:      "push_attempts_total",
			Help:      "Individual push attempts, including retries.",
		}),
		PushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "punchsync",
			Name:      "push_failures_total",
			Help:      "Batches whose push exhausted all retries.",
		}),
		PushedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "punchsync",
			Name:      "pushed_records_total",
			Help:      "Records durably accepted by the sync endpoint.",
		}),
		DeviceState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "punchsync",
			Name:      "device_state",
			Help:      "Connection state per device (0 disconnected, 1 connecting, 2 connected, 3 failed).",
		}, []string{"device_id"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BufferDepth,
			m.RecordsCaptured,
			m.RecordsDropped,
			m.PushAttempts,
			m.PushFailures,
			m.PushedRecords,
			m.DeviceState,
		)
	}

	return m
}

// NewTestMetrics creates unregistered collectors for tests.
func NewTestMetrics() *Metrics {
	return New(nil)
}

// SetDeviceState records the state gauge for one device.
func (m *Metrics) SetDeviceState(deviceID int, state int32) {
	m.DeviceState.WithLabelValues(strconv.Itoa(deviceID)).Set(float64(state))
}

// CountCaptured increments the capture counter for one device.
func (m *Metrics) CountCaptured(deviceID int) {
	m.RecordsCaptured.WithLabelValues(strconv.Itoa(deviceID)).Inc()
}
