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

package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records runtime measurements.
type Metrics interface {
	RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error)
	RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)

	// Handler serves the Prometheus exposition format.
	Handler() http.Handler
}

// PrometheusMetrics records through OTel meters exported to Prometheus.
type PrometheusMetrics struct {
	registry *promclient.Registry
	provider *sdkmetric.MeterProvider

	agentDuration metric.Float64Histogram
	agentRuns     metric.Int64Counter
	agentErrors   metric.Int64Counter

	toolDuration metric.Float64Histogram
	toolCalls    metric.Int64Counter
	toolErrors   metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter
}

// NewPrometheusMetrics creates the meters on a fresh registry.
func NewPrometheusMetrics(cfg MetricsConfig) (*PrometheusMetrics, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = DefaultServiceName
	}

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(namespace)

	m := &PrometheusMetrics{registry: registry, provider: provider}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.agentDuration, "agent_run_duration_seconds", "Agent run duration in seconds"},
		{&m.toolDuration, "tool_execution_duration_seconds", "Tool execution duration in seconds"},
		{&m.llmDuration, "llm_request_duration_seconds", "LLM request duration in seconds"},
		{&m.httpDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
	}
	for _, h := range histograms {
		*h.dst, err = meter.Float64Histogram(namespace+"_"+h.name, metric.WithDescription(h.desc), metric.WithUnit("s"))
		if err != nil {
			return nil, fmt.Errorf("failed to create histogram %s: %w", h.name, err)
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.agentRuns, "agent_runs", "Total agent runs"},
		{&m.agentErrors, "agent_errors", "Total agent errors"},
		{&m.toolCalls, "tool_calls", "Total tool calls"},
		{&m.toolErrors, "tool_errors", "Total tool errors"},
		{&m.llmInputTokens, "llm_tokens_input", "Total input tokens sent to the model"},
		{&m.llmOutputTokens, "llm_tokens_output", "Total output tokens from the model"},
		{&m.llmErrors, "llm_errors", "Total model errors"},
		{&m.httpRequests, "http_requests", "Total HTTP requests"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(namespace+"_"+c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("failed to create counter %s: %w", c.name, err)
		}
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordAgentRun(ctx context.Context, agent string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("agent", agent))
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	m.agentRuns.Add(ctx, 1, attrs)
	if err != nil {
		m.agentErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordToolCall(ctx context.Context, tool string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCalls.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Shutdown flushes the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// NoopMetrics discards every measurement.
type NoopMetrics struct{}

func (NoopMetrics) RecordAgentRun(context.Context, string, time.Duration, error)          {}
func (NoopMetrics) RecordToolCall(context.Context, string, time.Duration, error)          {}
func (NoopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}
func (NoopMetrics) RecordHTTPRequest(context.Context, string, string, int, time.Duration) {}

func (NoopMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "metrics disabled", http.StatusNotFound)
	})
}

var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
