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
	"errors"
	"fmt"
	"time"

	"github.com/punchsync/punchsync/pkg/alerts"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/models"
	"github.com/punchsync/punchsync/pkg/pusher"
	"github.com/punchsync/punchsync/pkg/scheduler"
)

// ErrInvalidConfig wraps all startup configuration failures. They are
// fatal at startup and never occur at runtime.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultBufferCapacity = 10
	// defaultBacklogFactor bounds backlog growth while the endpoint is
	// unreachable: max_backlog defaults to this multiple of the capacity.
	defaultBacklogFactor = 10
)

// Config is the collector daemon's configuration document.
type Config struct {
	Push              pusher.Config         `json:"push"`
	BufferCapacity    int                   `json:"buffer_capacity,omitempty"`
	MaxBacklog        int                   `json:"max_backlog,omitempty"`
	Devices           []models.Device       `json:"devices"`
	ReconnectInterval models.Duration       `json:"reconnect_interval,omitempty"`
	CutoverTime       string                `json:"cutover_time,omitempty"`
	ConnectTimeout    models.Duration       `json:"connect_timeout,omitempty"`
	ListenAddr        string                `json:"listen_addr,omitempty"`
	Logging           *logger.Config        `json:"logging,omitempty"`
	Telegram          alerts.TelegramConfig `json:"telegram,omitempty"`
}

func (c *Config) bufferCapacity() int {
	if c.BufferCapacity > 0 {
		return c.BufferCapacity
	}

	return defaultBufferCapacity
}

func (c *Config) maxBacklog() int {
	if c.MaxBacklog > 0 {
		return c.MaxBacklog
	}

	return c.bufferCapacity() * defaultBacklogFactor
}

func (c *Config) reconnectInterval() time.Duration {
	if c.ReconnectInterval > 0 {
		return c.ReconnectInterval.Duration()
	}

	return scheduler.DefaultReconnectInterval
}

func (c *Config) cutoverTime() string {
	if c.CutoverTime != "" {
		return c.CutoverTime
	}

	return scheduler.DefaultCutoverTime
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.Push.Endpoint == "" {
		return fmt.Errorf("%w: push.endpoint is required", ErrInvalidConfig)
	}

	if len(c.Devices) == 0 {
		return fmt.Errorf("%w: at least one device is required", ErrInvalidConfig)
	}

	seen := make(map[int]struct{}, len(c.Devices))

	for _, d := range c.Devices {
		if d.Address == "" {
			return fmt.Errorf("%w: device %d has no address", ErrInvalidConfig, d.ID)
		}

		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("%w: device %d has invalid port %d", ErrInvalidConfig, d.ID, d.Port)
		}

		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate device id %d", ErrInvalidConfig, d.ID)
		}

		seen[d.ID] = struct{}{}
	}

	// Zero means "use the default"; only negative values are rejected.
	if c.BufferCapacity < 0 {
		return fmt.Errorf("%w: buffer_capacity must not be negative", ErrInvalidConfig)
	}

	if c.MaxBacklog != 0 && c.MaxBacklog < c.bufferCapacity() {
		return fmt.Errorf("%w: max_backlog %d is below buffer_capacity %d",
			ErrInvalidConfig, c.MaxBacklog, c.bufferCapacity())
	}

	if _, _, err := scheduler.ParseCutover(c.cutoverTime()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
