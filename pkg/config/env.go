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

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables.
const (
	EnvMapsAPIKey          = "MAPS_API_KEY"
	EnvGoogleCloudProject  = "GOOGLE_CLOUD_PROJECT"
	EnvGoogleCloudLocation = "GOOGLE_CLOUD_LOCATION"
	EnvGoogleAPIKey        = "GOOGLE_API_KEY"
	EnvCityTripURL         = "A2A_CITY_TRIP_URL"

	EnvSessionServiceURI = "SESSION_SERVICE_URI"
	EnvAllowedOrigins    = "ALLOWED_ORIGINS"
	EnvServeWebInterface = "SERVE_WEB_INTERFACE"
	EnvEnableA2A         = "ENABLE_A2A"
	EnvPort              = "PORT"

	EnvLogLevel  = "LOG_LEVEL"
	EnvLogFormat = "LOG_FORMAT"
	EnvLogFile   = "LOG_FILE"

	EnvMetricsEnabled  = "METRICS_ENABLED"
	EnvOTLPEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvTracesExporter  = "OTEL_TRACES_EXPORTER"
	EnvTracesSampleArg = "OTEL_TRACES_SAMPLER_ARG"

	EnvAuthJWKSURL  = "AUTH_JWKS_URL"
	EnvAuthIssuer   = "AUTH_ISSUER"
	EnvAuthAudience = "AUTH_AUDIENCE"
)

// LoadDotEnv loads environment variables from .env files.
//
// Explicit paths are tried first, then .env in the current directory.
// Missing files are skipped. Existing environment variables are NOT
// overwritten.
func LoadDotEnv(paths ...string) error {
	for _, path := range append(paths, ".env") {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		slog.Debug("Loaded environment from .env", "path", path)
	}
	return nil
}

// applyEnv overlays environment variables on cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	flag := func(key string, dst **bool) {
		if v, ok := lookup(key); ok && v != "" {
			b := strings.EqualFold(strings.TrimSpace(v), "true")
			*dst = &b
		}
	}

	str(EnvMapsAPIKey, &cfg.Maps.APIKey)
	str(EnvGoogleCloudProject, &cfg.Google.Project)
	str(EnvGoogleCloudLocation, &cfg.Google.Location)
	str(EnvGoogleAPIKey, &cfg.Google.APIKey)
	str(EnvCityTripURL, &cfg.CityTrip.URL)

	str(EnvSessionServiceURI, &cfg.Server.SessionServiceURI)
	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		cfg.Server.AllowedOrigins = SplitList(v)
	}
	flag(EnvServeWebInterface, &cfg.Server.ServeWebInterface)
	flag(EnvEnableA2A, &cfg.Server.EnableA2A)
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Server.Port = port
	}

	str(EnvLogLevel, &cfg.Logger.Level)
	str(EnvLogFormat, &cfg.Logger.Format)
	str(EnvLogFile, &cfg.Logger.File)

	if v, ok := lookup(EnvMetricsEnabled); ok && v != "" {
		cfg.Observability.Metrics.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	str(EnvOTLPEndpoint, &cfg.Observability.Tracing.Endpoint)
	str(EnvTracesExporter, &cfg.Observability.Tracing.Exporter)
	if v, ok := lookup(EnvTracesSampleArg); ok && v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid sampling rate %q", EnvTracesSampleArg, v)
		}
		cfg.Observability.Tracing.SamplingRate = rate
	}

	str(EnvAuthJWKSURL, &cfg.Auth.JWKSURL)
	str(EnvAuthIssuer, &cfg.Auth.Issuer)
	str(EnvAuthAudience, &cfg.Auth.Audience)
	return nil
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// BoolValue returns the value of b, or def when b is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
