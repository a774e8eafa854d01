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

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/punchsync/punchsync/pkg/models"
)

const defaultTelegramAPI = "https://api.telegram.org"

var errTelegramStatus = errors.New("telegram API returned non-200 status")

// TelegramConfig configures the Telegram bot channel. Notification keys
// gate event categories: startup, shutdown, data_push, device_status,
// end_of_day, errors. A missing key means enabled.
type TelegramConfig struct {
	Enabled       bool            `json:"enabled"`
	BotToken      string          `json:"bot_token"`
	ChatID        string          `json:"chat_id"`
	SystemName    string          `json:"system_name,omitempty"`
	Notifications map[string]bool `json:"notifications,omitempty"`
}

// TelegramNotifier posts status events to a Telegram chat via the bot API.
type TelegramNotifier struct {
	config  TelegramConfig
	client  *http.Client
	apiBase string
}

// NewTelegramNotifier creates the notifier. Returns nil when the channel
// is disabled or missing credentials, so callers can skip wiring it.
func NewTelegramNotifier(config TelegramConfig) *TelegramNotifier {
	if !config.Enabled || config.BotToken == "" || config.ChatID == "" {
		return nil
	}

	if config.SystemName == "" {
		config.SystemName = "Attendance Collector"
	}

	return &TelegramNotifier{
		config:  config,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiBase: defaultTelegramAPI,
	}
}

// notificationKey maps an event type to its enable flag.
func notificationKey(t models.EventType) string {
	switch t {
	case models.EventStartup:
		return "startup"
	case models.EventShutdown:
		return "shutdown"
	case models.EventPushResult:
		return "data_push"
	case models.EventDeviceStatus:
		return "device_status"
	case models.EventDailySummary:
		return "end_of_day"
	case models.EventRecordsDropped, models.EventError:
		return "errors"
	default:
		return "errors"
	}
}

func (t *TelegramNotifier) enabled(eventType models.EventType) bool {
	v, ok := t.config.Notifications[notificationKey(eventType)]
	if !ok {
		return true
	}

	return v
}

// Notify formats and sends the event. Gated-off event types are a no-op.
func (t *TelegramNotifier) Notify(ctx context.Context, event models.StatusEvent) error {
	if !t.enabled(event.Type) {
		return nil
	}

	return t.sendMessage(ctx, t.formatMessage(event))
}

func (t *TelegramNotifier) formatMessage(event models.StatusEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>%s</b>\n", t.config.SystemName)
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", event.Timestamp.Format("2006-01-02 15:04:05"))

	switch event.Type {
	case models.EventStartup:
		fmt.Fprintf(&b, "<b>Started</b>: %s", event.Message)
	case models.EventShutdown:
		fmt.Fprintf(&b, "<b>Stopped</b>: %s", event.Message)
	case models.EventDeviceStatus:
		fmt.Fprintf(&b, "<b>Device %d (%s):</b> %s", event.DeviceID, event.DeviceName, event.State)
		if event.Err != nil {
			fmt.Fprintf(&b, "\n<b>Details:</b> %v", event.Err)
		}
	case models.EventPushResult:
		status := "pushed"
		if !event.Success {
			status = "push FAILED"
		}

		fmt.Fprintf(&b, "<b>%d records %s</b> (%s, %d attempts)",
			event.RecordCount, status, event.BatchKind, event.Attempts)
	case models.EventRecordsDropped:
		fmt.Fprintf(&b, "<b>%d records dropped</b> (backlog bound exceeded)", event.RecordCount)
	case models.EventDailySummary:
		t.formatSummary(&b, event.Summary)
	default:
		b.WriteString(event.Message)
	}

	return b.String()
}

func (t *TelegramNotifier) formatSummary(b *strings.Builder, s *models.DailySummary) {
	if s == nil {
		b.WriteString("<b>Daily summary unavailable</b>")
		return
	}

	rate := 0.0
	if s.Succeeded+s.Failed > 0 {
		rate = float64(s.Succeeded) / float64(s.Succeeded+s.Failed) * 100
	}

	fmt.Fprintf(b, "<b>Daily Summary %s</b>\n", s.Date)
	fmt.Fprintf(b, "<b>Records:</b> %d\n", s.TotalRecords)
	fmt.Fprintf(b, "<b>Devices OK:</b> %d  <b>Failed:</b> %d  <b>Rate:</b> %.1f%%\n",
		s.Succeeded, s.Failed, rate)

	ids := make([]int, 0, len(s.DeviceStates))
	for id := range s.DeviceStates {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	for _, id := range ids {
		fmt.Fprintf(b, "Device %d: %s\n", id, s.DeviceStates[id])
	}
}

func (t *TelegramNotifier) sendMessage(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.config.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.config.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", errTelegramStatus, resp.StatusCode)
	}

	return nil
}
