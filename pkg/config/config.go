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

// Package config builds the process configuration once at startup.
//
// Sources, highest priority first:
//  1. Process environment
//  2. .env files (never overriding variables that are already set)
//  3. Optional YAML file with non-secret defaults
//  4. Built-in defaults
//
// The resulting *Config is passed by pointer to whatever needs it. There is
// no package-level configuration state.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/cityscape/pkg/observability"
)

// Model defaults.
const (
	DefaultModel      = "gemini-2.5-flash"
	DefaultImageModel = "gemini-3-pro-image-preview"
	DefaultLocation   = "us-central1"
	DefaultMapsMCPURL = "https://mapstools.googleapis.com/mcp"
)

// ErrMissingEnv is returned when a required environment variable is unset.
var ErrMissingEnv = errors.New("missing required environment variable")

// Config is the complete process configuration.
type Config struct {
	Google GoogleConfig `yaml:"google,omitempty"`
	Maps   MapsConfig   `yaml:"maps,omitempty"`

	// CityTrip is the optional remote city-trip agent.
	CityTrip CityTripConfig `yaml:"city_trip,omitempty"`

	Server        ServerConfig         `yaml:"server,omitempty"`
	Auth          AuthConfig           `yaml:"auth,omitempty"`
	Logger        LoggerConfig         `yaml:"logger,omitempty"`
	Observability observability.Config `yaml:"observability,omitempty"`
}

// GoogleConfig selects the Gemini backend and models.
type GoogleConfig struct {
	// Project is GOOGLE_CLOUD_PROJECT. Required.
	Project string `yaml:"project,omitempty"`

	// Location is GOOGLE_CLOUD_LOCATION.
	// Default: us-central1
	Location string `yaml:"location,omitempty"`

	// APIKey is GOOGLE_API_KEY. Never read from YAML.
	APIKey string `yaml:"-"`

	// Model drives every text agent.
	// Default: gemini-2.5-flash
	Model string `yaml:"model,omitempty"`

	// ImageModel is the model the image tool is told to use.
	// Default: gemini-3-pro-image-preview
	ImageModel string `yaml:"image_model,omitempty"`
}

// MapsConfig configures the weather lookup MCP endpoint.
type MapsConfig struct {
	// APIKey is MAPS_API_KEY. Required. Never read from YAML.
	APIKey string `yaml:"-"`

	// URL of the Maps MCP server.
	// Default: https://mapstools.googleapis.com/mcp
	URL string `yaml:"url,omitempty"`
}

// CityTripConfig configures the remote city-trip agent.
type CityTripConfig struct {
	// URL is A2A_CITY_TRIP_URL. The remote agent exists only when set.
	URL string `yaml:"url,omitempty"`
}

// Enabled reports whether the remote agent is configured.
func (c *CityTripConfig) Enabled() bool {
	return c.URL != ""
}

// SetDefaults applies default values to every section.
func (c *Config) SetDefaults() {
	if c.Google.Location == "" {
		c.Google.Location = DefaultLocation
	}
	if c.Google.Model == "" {
		c.Google.Model = DefaultModel
	}
	if c.Google.ImageModel == "" {
		c.Google.ImageModel = DefaultImageModel
	}
	if c.Maps.URL == "" {
		c.Maps.URL = DefaultMapsMCPURL
	}
	c.Server.SetDefaults()
	c.Auth.SetDefaults()
	c.Logger.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the configuration. Missing credentials are reported
// together, wrapped in ErrMissingEnv.
func (c *Config) Validate() error {
	var missing []string
	if c.Maps.APIKey == "" {
		missing = append(missing, EnvMapsAPIKey)
	}
	if c.Google.Project == "" {
		missing = append(missing, EnvGoogleCloudProject)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	if c.CityTrip.Enabled() {
		u, err := url.Parse(c.CityTrip.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s: invalid URL %q", EnvCityTripURL, c.CityTrip.URL)
		}
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	return nil
}

// Options controls Load.
type Options struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string

	// EnvFiles are loaded before ".env" in the working directory.
	EnvFiles []string

	// LookupEnv reads variables. Default: os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load builds the configuration. It does not validate it: callers decide
// when missing credentials become fatal.
func Load(opts Options) (*Config, error) {
	if err := LoadDotEnv(opts.EnvFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigFile, err)
		}
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}
