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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/punchsync/punchsync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Endpoint string `json:"endpoint"`
	Workers  int    `json:"workers"`

	validateErr error
}

func (d *testDoc) Validate() error {
	return d.validateErr
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestFileConfigLoader(t *testing.T) {
	loader := &FileConfigLoader{}

	path := writeConfigFile(t, `{"endpoint": "http://sync.example/push", "workers": 4}`)

	var doc testDoc

	require.NoError(t, loader.Load(context.Background(), path, &doc))
	assert.Equal(t, "http://sync.example/push", doc.Endpoint)
	assert.Equal(t, 4, doc.Workers)
}

func TestFileConfigLoader_MissingFile(t *testing.T) {
	loader := &FileConfigLoader{}

	var doc testDoc

	err := loader.Load(context.Background(), "/nonexistent/config.json", &doc)
	assert.Error(t, err)
}

func TestFileConfigLoader_MalformedJSON(t *testing.T) {
	loader := &FileConfigLoader{}

	path := writeConfigFile(t, `{"endpoint": `)

	var doc testDoc

	err := loader.Load(context.Background(), path, &doc)
	assert.Error(t, err)
}

func TestEnvConfigLoader(t *testing.T) {
	t.Setenv("TESTSVC_CONFIG_JSON", `{"endpoint": "http://sync.example/push"}`)

	loader := NewEnvConfigLoader(logger.NewTestLogger(), "TESTSVC_")

	var doc testDoc

	require.NoError(t, loader.Load(context.Background(), "", &doc))
	assert.Equal(t, "http://sync.example/push", doc.Endpoint)
}

func TestEnvConfigLoader_MissingVariable(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "UNSET_")

	var doc testDoc

	err := loader.Load(context.Background(), "", &doc)
	assert.ErrorIs(t, err, ErrNoEnvConfig)
}

func TestLoadAndValidate_RunsValidator(t *testing.T) {
	path := writeConfigFile(t, `{"endpoint": "http://sync.example/push"}`)

	c := NewConfig(logger.NewTestLogger())

	doc := testDoc{validateErr: errors.New("endpoint not allowed")}

	err := c.LoadAndValidate(context.Background(), path, &doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint not allowed")

	doc = testDoc{}
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &doc))
	assert.Equal(t, "http://sync.example/push", doc.Endpoint)
}

func TestLoadAndValidate_EnvSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("PUNCHSYNC_CONFIG_JSON", `{"endpoint": "http://sync.example/push"}`)

	c := NewConfig(logger.NewTestLogger())

	var doc testDoc

	require.NoError(t, c.LoadAndValidate(context.Background(), "", &doc))
	assert.Equal(t, "http://sync.example/push", doc.Endpoint)
}

func TestLoadAndValidate_UnknownSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	c := NewConfig(logger.NewTestLogger())

	var doc testDoc

	err := c.LoadAndValidate(context.Background(), "", &doc)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}
