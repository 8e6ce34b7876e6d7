// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/config"
)

func TestParse_ServeIsDefault(t *testing.T) {
	var cli CLI
	parser, err := newParser(&cli)
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"--port", "9000", "--log-level", "debug", "--env-file", "a.env", "--env-file", "b.env"})
	require.NoError(t, err)
	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, 9000, cli.Serve.Port)
	assert.Equal(t, "debug", cli.LogLevel)
	assert.Len(t, cli.EnvFile, 2)
}

func TestParse_Version(t *testing.T) {
	var cli CLI
	parser, err := newParser(&cli)
	require.NoError(t, err)

	ctx, err := parser.Parse([]string{"version"})
	require.NoError(t, err)
	assert.Equal(t, "version", ctx.Command())
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "7000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := loadConfig(&CLI{LogLevel: "debug", LogFormat: config.LogFormatJSON}, &ServeCmd{Port: 9000})
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, config.LogFormatJSON, cfg.Logger.Format)

	cfg, err = loadConfig(&CLI{}, &ServeCmd{})
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, version())
}
