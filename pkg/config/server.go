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

// Server defaults.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 8080
	DefaultSessionServiceURI = "sqlite:///./sessions.db"
	DefaultShutdownTimeout   = 10 * time.Second
)

// ServerConfig configures the HTTP host process.
type ServerConfig struct {
	// Host to bind to.
	// Default: 0.0.0.0
	Host string `yaml:"host,omitempty"`

	// Port to listen on (PORT).
	// Default: 8080
	Port int `yaml:"port,omitempty"`

	// SessionServiceURI selects session storage (SESSION_SERVICE_URI).
	// Values: "memory://", "sqlite:///path", "postgres://...", "mysql://...".
	// Default: sqlite:///./sessions.db
	SessionServiceURI string `yaml:"session_service_uri,omitempty"`

	// AllowedOrigins for CORS (ALLOWED_ORIGINS, comma separated).
	// Default: ["*"]
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`

	// ServeWebInterface mounts the dev UI (SERVE_WEB_INTERFACE).
	// Default: false
	ServeWebInterface *bool `yaml:"serve_web_interface,omitempty"`

	// EnableA2A exposes the root agent over A2A (ENABLE_A2A).
	// Default: false
	EnableA2A *bool `yaml:"enable_a2a,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// SetDefaults applies default values to ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.SessionServiceURI == "" {
		c.SessionServiceURI = DefaultSessionServiceURI
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.ServeWebInterface == nil {
		c.ServeWebInterface = BoolPtr(false)
	}
	if c.EnableA2A == nil {
		c.EnableA2A = BoolPtr(false)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns host:port.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebInterfaceEnabled reports whether the dev UI is served.
func (c *ServerConfig) WebInterfaceEnabled() bool {
	return BoolValue(c.ServeWebInterface, false)
}

// A2AEnabled reports whether A2A endpoints are served.
func (c *ServerConfig) A2AEnabled() bool {
	return BoolValue(c.EnableA2A, false)
}
