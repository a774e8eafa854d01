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

// punchsync-backfill pushes historical attendance logs from the
// configured terminals to the sync endpoint, chunked per device. It exists
// for first installs and for re-seeding the server after an outage longer
// than the terminals' live-capture window.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/punchsync/punchsync/pkg/backfill"
	"github.com/punchsync/punchsync/pkg/collector"
	"github.com/punchsync/punchsync/pkg/config"
	"github.com/punchsync/punchsync/pkg/lifecycle"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/terminal"
)

const dateLayout = "2006-01-02"

var (
	errFailedToLoadConfig = fmt.Errorf("failed to load config")
	errBadDateRange       = fmt.Errorf("invalid date range")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/punchsync/collector.json", "Path to collector config file")
	fromFlag := flag.String("from", "", "Start date (YYYY-MM-DD)")
	toFlag := flag.String("to", "", "End date (YYYY-MM-DD), defaults to today")
	bootDays := flag.Int("boot-days", 0, "Sync the trailing N days (overrides -from/-to)")
	deviceID := flag.Int("device-id", 0, "Only sync this device id")
	chunk := flag.Int("chunk", backfill.DefaultChunkSize, "Records per push request")
	retries := flag.Int("retries", 0, "Retries per chunk (0 uses the configured default)")
	logLevel := flag.String("log-level", "", "Override log level for this run")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg collector.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{Level: "info", Output: "stdout"}
	}

	if *logLevel != "" {
		logConfig.Level = *logLevel
	}

	backfillLogger, err := lifecycle.CreateComponentLogger("backfill", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	from, to, err := resolveRange(*fromFlag, *toFlag, *bootDays)
	if err != nil {
		return err
	}

	terminal.RegisterSimulator()

	push := cfg.Push
	if *retries > 0 {
		push.MaxRetries = *retries
	}

	runner := backfill.New(backfill.Config{
		Devices:   cfg.Devices,
		Push:      push,
		ChunkSize: *chunk,
		DeviceID:  *deviceID,
		From:      from,
		To:        to,
	}, backfillLogger)

	total, err := runner.Run(ctx)

	backfillLogger.Info().Int("records", total).Msg("Backfill complete")

	return err
}

// resolveRange turns the flag combinations into a concrete [from, to] day
// range. -boot-days N means "the trailing N days ending today".
func resolveRange(fromFlag, toFlag string, bootDays int) (from, to time.Time, err error) {
	today := time.Now()

	if bootDays > 0 {
		return today.AddDate(0, 0, -bootDays), today, nil
	}

	if fromFlag == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: -from or -boot-days is required", errBadDateRange)
	}

	from, err = time.ParseInLocation(dateLayout, fromFlag, time.Local)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %w", errBadDateRange, err)
	}

	to = today
	if toFlag != "" {
		to, err = time.ParseInLocation(dateLayout, toFlag, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: %w", errBadDateRange, err)
		}
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: -to is before -from", errBadDateRange)
	}

	return from, to, nil
}
