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

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/observability"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.Options{LookupEnv: lookupFrom(nil)})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultModel, cfg.Google.Model)
	assert.Equal(t, config.DefaultImageModel, cfg.Google.ImageModel)
	assert.Equal(t, "us-central1", cfg.Google.Location)
	assert.Equal(t, config.DefaultMapsMCPURL, cfg.Maps.URL)
	assert.False(t, cfg.CityTrip.Enabled())

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, "sqlite:///./sessions.db", cfg.Server.SessionServiceURI)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.WebInterfaceEnabled())
	assert.False(t, cfg.Server.A2AEnabled())

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, config.LogFormatSimple, cfg.Logger.Format)
	assert.False(t, cfg.Auth.IsEnabled())
	assert.Equal(t, observability.ExporterNone, cfg.Observability.Tracing.Exporter)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load(config.Options{LookupEnv: lookupFrom(map[string]string{
		"MAPS_API_KEY":          "maps-key",
		"GOOGLE_CLOUD_PROJECT":  "demo-project",
		"GOOGLE_CLOUD_LOCATION": "europe-west4",
		"A2A_CITY_TRIP_URL":     "https://trip.example.run.app",
		"SESSION_SERVICE_URI":   "memory://",
		"ALLOWED_ORIGINS":       " https://a.example , ,https://b.example",
		"SERVE_WEB_INTERFACE":   "FALSE",
		"ENABLE_A2A":            "True",
		"PORT":                  "9090",
		"LOG_LEVEL":             "debug",
		"LOG_FORMAT":            "json",
		"METRICS_ENABLED":       "true",
		"OTEL_TRACES_EXPORTER":  "stdout",
	})})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "maps-key", cfg.Maps.APIKey)
	assert.Equal(t, "demo-project", cfg.Google.Project)
	assert.Equal(t, "europe-west4", cfg.Google.Location)
	assert.True(t, cfg.CityTrip.Enabled())
	assert.Equal(t, "memory://", cfg.Server.SessionServiceURI)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.False(t, cfg.Server.WebInterfaceEnabled())
	assert.True(t, cfg.Server.A2AEnabled())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, config.LogFormatJSON, cfg.Logger.Format)
	assert.True(t, cfg.Observability.Metrics.Enabled)
	assert.True(t, cfg.Observability.TracingEnabled())
}

func TestLoad_InvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := config.Load(config.Options{LookupEnv: lookupFrom(map[string]string{"PORT": "eighty"})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestLoad_YAMLIsOverriddenByEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "cityscape.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
google:
  project: from-yaml
  model: gemini-2.5-pro
maps:
  url: https://maps.internal/mcp
server:
  port: 7000
  shutdown_timeout: 3s
logger:
  format: verbose
`), 0o600))

	cfg, err := config.Load(config.Options{
		ConfigFile: path,
		LookupEnv:  lookupFrom(map[string]string{"GOOGLE_CLOUD_PROJECT": "from-env"}),
	})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Google.Project)
	assert.Equal(t, "gemini-2.5-pro", cfg.Google.Model)
	assert.Equal(t, "https://maps.internal/mcp", cfg.Maps.URL)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, config.LogFormatVerbose, cfg.Logger.Format)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := config.Load(config.Options{ConfigFile: "nope.yaml", LookupEnv: lookupFrom(nil)})
	assert.Error(t, err)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "custom.env")
	require.NoError(t, os.WriteFile(path, []byte("CITYSCAPE_TEST_SET=from-file\nCITYSCAPE_TEST_NEW=from-file\n"), 0o600))
	t.Setenv("CITYSCAPE_TEST_SET", "from-process")
	t.Setenv("CITYSCAPE_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("CITYSCAPE_TEST_NEW"))

	require.NoError(t, config.LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-process", os.Getenv("CITYSCAPE_TEST_SET"))
	assert.Equal(t, "from-file", os.Getenv("CITYSCAPE_TEST_NEW"))
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.SetDefaults()

	err := cfg.Validate()
	require.ErrorIs(t, err, config.ErrMissingEnv)
	assert.Contains(t, err.Error(), "MAPS_API_KEY")
	assert.Contains(t, err.Error(), "GOOGLE_CLOUD_PROJECT")

	cfg.Maps.APIKey = "maps-key"
	err = cfg.Validate()
	require.ErrorIs(t, err, config.ErrMissingEnv)
	assert.NotContains(t, err.Error(), "MAPS_API_KEY")
}

func TestValidate_Sections(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{
			Google: config.GoogleConfig{Project: "p"},
			Maps:   config.MapsConfig{APIKey: "k"},
		}
		cfg.SetDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"bad city trip url", func(c *config.Config) { c.CityTrip.URL = "trip-agent" }, "A2A_CITY_TRIP_URL"},
		{"bad port", func(c *config.Config) { c.Server.Port = 70000 }, "server"},
		{"bad log level", func(c *config.Config) { c.Logger.Level = "trace" }, "logger"},
		{"bad log format", func(c *config.Config) { c.Logger.Format = "xml" }, "logger"},
		{"otlp without endpoint", func(c *config.Config) { c.Observability.Tracing.Exporter = observability.ExporterOTLP }, "observability"},
		{"auth without issuer", func(c *config.Config) {
			c.Auth = config.AuthConfig{JWKSURL: "https://auth.example.com/jwks.json"}
			c.Auth.SetDefaults()
		}, "AUTH_ISSUER"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.NotErrorIs(t, err, config.ErrMissingEnv)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAuthConfig_Defaults(t *testing.T) {
	cfg := config.AuthConfig{
		JWKSURL:  "https://auth.example.com/jwks.json",
		Issuer:   "https://auth.example.com",
		Audience: "cityscape",
	}
	cfg.SetDefaults()

	assert.True(t, cfg.IsEnabled())
	assert.True(t, cfg.IsRequireAuth())
	assert.Equal(t, 15*time.Minute, cfg.RefreshInterval)
	assert.Contains(t, cfg.ExcludedPaths, "/health")
	assert.NoError(t, cfg.Validate())
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, config.SplitList(" a ,b,, "))
	assert.Nil(t, config.SplitList(" , "))
}
