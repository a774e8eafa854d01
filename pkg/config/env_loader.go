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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/punchsync/punchsync/pkg/logger"
)

// ErrNoEnvConfig indicates the expected environment variable was not set.
var ErrNoEnvConfig = errors.New("environment configuration not found")

// EnvConfigLoader loads a full JSON configuration document from the
// <prefix>CONFIG_JSON environment variable. Useful for containerized
// deployments where mounting a file is inconvenient.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates an environment variable config loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{
		logger: log,
		prefix: prefix,
	}
}

// Load implements ConfigLoader by reading <prefix>CONFIG_JSON.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	key := e.prefix + "CONFIG_JSON"

	jsonConfig := os.Getenv(key)
	if jsonConfig == "" {
		return fmt.Errorf("%w: %s is empty", ErrNoEnvConfig, key)
	}

	if err := json.Unmarshal([]byte(jsonConfig), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	if e.logger != nil {
		e.logger.Info().Str("var", key).Msg("Loaded configuration from environment")
	}

	return nil
}
