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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/punchsync/punchsync/pkg/collector"
	"github.com/punchsync/punchsync/pkg/config"
	"github.com/punchsync/punchsync/pkg/lifecycle"
	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/punchsync/punchsync/pkg/terminal"
	"github.com/rs/zerolog"
)

var errFailedToLoadConfig = fmt.Errorf("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/punchsync/collector.json", "Path to collector config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg collector.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	collectorLogger, err := lifecycle.CreateComponentLogger("collector", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Vendor adapters register their own drivers; the simulator covers
	// deployments validating the pipeline without hardware.
	terminal.RegisterSimulator()

	svc, err := collector.New(&cfg, nil, collectorLogger)
	if err != nil {
		return err
	}

	// Log level changes apply live; device list and endpoint changes
	// require a restart, and watching the file keeps that visible to
	// operators instead of silently stale.
	if err := config.Watch(ctx, *configPath, collectorLogger, func() {
		var next collector.Config

		if err := cfgLoader.LoadAndValidate(ctx, *configPath, &next); err != nil {
			collectorLogger.Warn().Err(err).Msg("Changed configuration is invalid; keeping current settings")
			return
		}

		if next.Logging != nil && next.Logging.Level != logConfig.Level {
			level, err := zerolog.ParseLevel(next.Logging.Level)
			if err != nil {
				collectorLogger.Warn().Err(err).Str("level", next.Logging.Level).Msg("Invalid log level in changed configuration")
				return
			}

			collectorLogger.SetLevel(level)
			logConfig.Level = next.Logging.Level
			collectorLogger.Info().Str("level", next.Logging.Level).Msg("Log level updated")
		}

		collectorLogger.Warn().Msg("Device and endpoint changes require a restart to apply")
	}); err != nil {
		collectorLogger.Warn().Err(err).Msg("Config watch unavailable")
	}

	return lifecycle.Run(ctx, &lifecycle.Options{
		ServiceName: "punchsync-collector",
		Service:     svc,
		ListenAddr:  cfg.ListenAddr,
		Registry:    svc.Registry(),
		Logger:      collectorLogger,
	})
}
