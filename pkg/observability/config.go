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

// Package observability wires OpenTelemetry tracing and metrics.
//
// Metrics are recorded through OTel meters and exported by the OTel
// Prometheus exporter into a dedicated registry served at /metrics.
// Traces go to an OTLP gRPC collector, to stdout, or nowhere.
package observability

import (
	"fmt"
	"slices"
)

// Span names.
const (
	SpanHTTPRequest   = "http.request"
	SpanAgentRun      = "agent.run"
	SpanLLMRequest    = "agent.llm_request"
	SpanToolExecution = "agent.tool_execution"

	DefaultServiceName = "cityscape"
)

// Trace exporters.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config configures the observability system.
type Config struct {
	Tracing TracingConfig `yaml:"tracing,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Exporter is one of "otlp", "stdout" or "none" (default).
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP gRPC collector, e.g. "localhost:4317".
	Endpoint string `yaml:"endpoint,omitempty"`

	// SamplingRate is the sampled fraction of traces, 0.0 to 1.0.
	// Default: 1.0
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`

	// ServiceName identifies this service in traces.
	// Default: "cityscape"
	ServiceName string `yaml:"service_name,omitempty"`

	ServiceVersion string `yaml:"service_version,omitempty"`

	// Insecure disables TLS for the OTLP connection.
	Insecure bool `yaml:"insecure,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`

	// Namespace prefixes all metric names.
	// Default: "cityscape"
	Namespace string `yaml:"namespace,omitempty"`
}

// SetDefaults applies default values to Config.
func (c *Config) SetDefaults() {
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = ExporterNone
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = DefaultServiceName
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultServiceName
	}
}

// Validate checks the Config for errors.
func (c *Config) Validate() error {
	if !slices.Contains([]string{ExporterOTLP, ExporterStdout, ExporterNone}, c.Tracing.Exporter) {
		return fmt.Errorf("tracing: unsupported exporter %q", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("tracing: sampling rate must be between 0 and 1, got %v", c.Tracing.SamplingRate)
	}
	if c.Tracing.Exporter == ExporterOTLP && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing: endpoint is required for the otlp exporter")
	}
	return nil
}

// TracingEnabled reports whether spans are exported.
func (c *Config) TracingEnabled() bool {
	return c.Tracing.Exporter != "" && c.Tracing.Exporter != ExporterNone
}
