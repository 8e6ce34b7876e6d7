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
	"time"
)

// AuthConfig configures JWT bearer authentication for the host process.
//
// Authentication is on when AUTH_JWKS_URL is set (or enabled in YAML).
// Health checks and agent discovery stay public.
//
//	auth:
//	  jwks_url: "https://auth.example.com/.well-known/jwks.json"
//	  issuer: "https://auth.example.com"
//	  audience: "cityscape"
type AuthConfig struct {
	// Enabled controls whether authentication is required.
	// Default: true when JWKSURL is set.
	Enabled bool `yaml:"enabled,omitempty"`

	// JWKSURL is the URL to fetch the JSON Web Key Set from.
	JWKSURL string `yaml:"jwks_url,omitempty"`

	// Issuer is the expected iss claim.
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the expected aud claim.
	Audience string `yaml:"audience,omitempty"`

	// RefreshInterval is how often to refresh the JWKS.
	// Default: 15m
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`

	// ExcludedPaths don't require authentication.
	// Default: ["/health", "/.well-known/agent-card.json"]
	ExcludedPaths []string `yaml:"excluded_paths,omitempty"`

	// RequireAuth when true returns 401 for missing tokens.
	// Default: true
	RequireAuth *bool `yaml:"require_auth,omitempty"`
}

// SetDefaults applies default values to AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.JWKSURL != "" {
		c.Enabled = true
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = 15 * time.Minute
	}
	if len(c.ExcludedPaths) == 0 {
		c.ExcludedPaths = []string{
			"/health",
			"/.well-known/agent-card.json",
		}
	}
	if c.RequireAuth == nil && c.Enabled {
		c.RequireAuth = BoolPtr(true)
	}
}

// Validate checks the AuthConfig for errors.
func (c *AuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.JWKSURL == "" {
		return fmt.Errorf("%s is required when auth is enabled", EnvAuthJWKSURL)
	}
	if c.Issuer == "" {
		return fmt.Errorf("%s is required when auth is enabled", EnvAuthIssuer)
	}
	if c.Audience == "" {
		return fmt.Errorf("%s is required when auth is enabled", EnvAuthAudience)
	}
	if c.RefreshInterval < time.Minute {
		return fmt.Errorf("refresh_interval must be at least 1 minute")
	}
	return nil
}

// IsEnabled returns true if authentication is configured and enabled.
func (c *AuthConfig) IsEnabled() bool {
	return c != nil && c.Enabled && c.JWKSURL != "" && c.Issuer != "" && c.Audience != ""
}

// IsRequireAuth reports whether missing tokens are rejected.
func (c *AuthConfig) IsRequireAuth() bool {
	return BoolValue(c.RequireAuth, true)
}
