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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/termbridge/pkg/logger"
	"github.com/carverauto/termbridge/pkg/models"
)

type engineSection struct {
	Endpoint       string          `json:"endpoint"`
	APIToken       string          `json:"api_token,omitempty"`
	RequestTimeout models.Duration `json:"request_timeout,omitempty"`
}

type testConfig struct {
	ListenAddr string        `json:"listen_addr"`
	Debug      bool          `json:"debug,omitempty"`
	Engine     engineSection `json:"engine"`

	validateErr error
}

func (c *testConfig) Validate() error {
	return c.validateErr
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "termbridge.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":8090",
		"engine": {
			"endpoint": "https://engine:9000",
			"api_token": "tok",
			"request_timeout": "3s"
		}
	}`)

	var cfg testConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "https://engine:9000", cfg.Engine.Endpoint)
	assert.Equal(t, models.Duration(3*time.Second), cfg.Engine.RequestTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "/does/not/exist.json", &cfg)
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": `)

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	assert.Error(t, err)
}

func TestValidateFailurePropagates(t *testing.T) {
	path := writeConfigFile(t, `{"listen_addr": ":8090", "engine": {"endpoint": "x"}}`)

	wantErr := errors.New("bad config")

	cfg := testConfig{validateErr: wantErr}

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg)
	assert.ErrorIs(t, err, wantErr)
}

func TestInvalidConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg testConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "unused.json", &cfg)
	assert.ErrorIs(t, err, errInvalidConfigSource)
}

func TestEnvLoaderIndividualVars(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("TERMBRIDGE_LISTEN_ADDR", ":9999")
	t.Setenv("TERMBRIDGE_DEBUG", "true")
	t.Setenv("TERMBRIDGE_ENGINE_ENDPOINT", "http://engine:9000")
	t.Setenv("TERMBRIDGE_ENGINE_API_TOKEN", "env-token")

	var cfg testConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "http://engine:9000", cfg.Engine.Endpoint)
	assert.Equal(t, "env-token", cfg.Engine.APIToken)
}

func TestEnvLoaderConfigJSONPrecedence(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("TERMBRIDGE_CONFIG_JSON", `{"listen_addr": ":7777", "engine": {"endpoint": "http://json:9000"}}`)
	t.Setenv("TERMBRIDGE_LISTEN_ADDR", ":9999")

	var cfg testConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":7777", cfg.ListenAddr)
	assert.Equal(t, "http://json:9000", cfg.Engine.Endpoint)
}

func TestEnvLoaderCustomPrefix(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "TB_")
	t.Setenv("TB_LISTEN_ADDR", ":8081")

	var cfg testConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, ":8081", cfg.ListenAddr)
}

func TestEnvLoaderWrapperDuration(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("TERMBRIDGE_ENGINE_REQUEST_TIMEOUT", "2s")

	var cfg testConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, models.Duration(2*time.Second), cfg.Engine.RequestTimeout)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "TERMBRIDGE_")

	var cfg testConfig

	err := loader.Load(context.Background(), "", cfg)
	assert.ErrorIs(t, err, ErrDstMustBeNonNilPointer)

	var notStruct int

	err = loader.Load(context.Background(), "", &notStruct)
	assert.ErrorIs(t, err, ErrDstMustBePointerToStruct)
}
