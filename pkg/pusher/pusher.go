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

// Package pusher delivers record batches to the remote sync endpoint.
package pusher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/metrics"
	"github.com/punchsync/punchsync/pkg/models"
)

var (
	// ErrPushFailed indicates a batch exhausted all push attempts.
	ErrPushFailed   = errors.New("push failed")
	errServerReject = errors.New("server rejected batch")
)

const (
	defaultTimeout        = 50 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// Config holds the sync endpoint parameters.
type Config struct {
	Endpoint       string          `json:"endpoint"`
	Timeout        models.Duration `json:"timeout,omitempty"`
	MaxRetries     int             `json:"max_retries,omitempty"`
	InitialBackoff models.Duration `json:"initial_backoff,omitempty"`
	MaxBackoff     models.Duration `json:"max_backoff,omitempty"`
}

func (c *Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout.Duration()
	}

	return defaultTimeout
}

func (c *Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}

	return defaultMaxRetries
}

func (c *Config) initialBackoff() time.Duration {
	if c.InitialBackoff > 0 {
		return c.InitialBackoff.Duration()
	}

	return defaultInitialBackoff
}

func (c *Config) maxBackoff() time.Duration {
	if c.MaxBackoff > 0 {
		return c.MaxBackoff.Duration()
	}

	return defaultMaxBackoff
}

// Pusher pushes one batch and reports its terminal outcome.
type Pusher interface {
	Push(ctx context.Context, batch models.Batch) models.PushOutcome
}

// payload is the wire shape the endpoint accepts. Real-time batches send
// only the Json array; end-of-day and backfill batches carry the envelope
// fields so the server can distinguish reconciliation data.
type payload struct {
	Json     []models.Record  `json:"Json"`
	Kind     models.BatchKind `json:"kind,omitempty"`
	DeviceID int              `json:"device_id,omitempty"`
	Date     string           `json:"date,omitempty"`
}

// HTTPPusher implements Pusher over HTTP POST with exponential backoff.
type HTTPPusher struct {
	config  Config
	client  *http.Client
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewHTTPPusher creates a pusher for the configured endpoint.
func NewHTTPPusher(config Config, m *metrics.Metrics, log logger.Logger) *HTTPPusher {
	return &HTTPPusher{
		config:  config,
		client:  &http.Client{Timeout: config.timeout()},
		logger:  log,
		metrics: m,
	}
}

// Push delivers the batch, retrying transport and server failures with
// exponential backoff up to the configured ceiling. The outcome carries
// the exact number of attempts made.
func (p *HTTPPusher) Push(ctx context.Context, batch models.Batch) models.PushOutcome {
	body, err := json.Marshal(p.buildPayload(batch))
	if err != nil {
		// Marshaling records cannot realistically fail; treated as terminal.
		return models.PushOutcome{Batch: batch, Attempts: 0, LastErr: err}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.config.initialBackoff()
	bo.MaxInterval = p.config.maxBackoff()

	start := time.Now()
	attempts := 0

	operation := func() (struct{}, error) {
		attempts++

		if p.metrics != nil {
			p.metrics.PushAttempts.Inc()
		}

		if err := p.post(ctx, body); err != nil {
			p.logger.Warn().
				Err(err).
				Str("batch_id", batch.ID).
				Int("attempt", attempts).
				Msg("Push attempt failed")

			return struct{}{}, err
		}

		return struct{}{}, nil
	}

	// maxRetries counts retries after the first attempt.
	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(p.config.maxRetries()+1)))

	outcome := models.PushOutcome{
		Batch:    batch,
		Success:  err == nil,
		Attempts: attempts,
		LastErr:  err,
		Elapsed:  time.Since(start),
	}

	if err == nil {
		if p.metrics != nil {
			p.metrics.PushedRecords.Add(float64(len(batch.Records)))
		}

		p.logger.Info().
			Str("batch_id", batch.ID).
			Str("kind", string(batch.Kind)).
			Int("records", len(batch.Records)).
			Int("attempts", attempts).
			Msg("Batch pushed")
	} else {
		if p.metrics != nil {
			p.metrics.PushFailures.Inc()
		}

		p.logger.Error().
			Err(err).
			Str("batch_id", batch.ID).
			Int("records", len(batch.Records)).
			Int("attempts", attempts).
			Msg("Batch push exhausted retries")

		outcome.LastErr = fmt.Errorf("%w: %w", ErrPushFailed, err)
	}

	return outcome
}

func (p *HTTPPusher) buildPayload(batch models.Batch) payload {
	pl := payload{Json: batch.Records}

	if batch.Kind != models.BatchRealTime {
		pl.Kind = batch.Kind
		pl.DeviceID = batch.DeviceID
		pl.Date = batch.Day.Format("2006-01-02")
	}

	return pl
}

func (p *HTTPPusher) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", errServerReject, resp.StatusCode)
	}

	return nil
}
