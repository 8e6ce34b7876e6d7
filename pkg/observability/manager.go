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
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer provider and the metrics of the process.
type Manager struct {
	config Config

	mu             sync.RWMutex
	tracerProvider trace.TracerProvider
	metrics        Metrics
}

// NewManager creates a manager. Call Initialize before use.
func NewManager(cfg Config) *Manager {
	cfg.SetDefaults()
	return &Manager{
		config:         cfg,
		tracerProvider: noop.NewTracerProvider(),
		metrics:        NoopMetrics{},
	}
}

// Initialize creates the exporters and installs the tracer provider
// globally.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.config.Validate(); err != nil {
		return err
	}

	tp, err := NewTracerProvider(ctx, m.config.Tracing)
	if err != nil {
		return err
	}

	var metrics Metrics = NoopMetrics{}
	if m.config.Metrics.Enabled {
		pm, err := NewPrometheusMetrics(m.config.Metrics)
		if err != nil {
			return err
		}
		metrics = pm
	}

	m.mu.Lock()
	m.tracerProvider = tp
	m.metrics = metrics
	m.mu.Unlock()

	otel.SetTracerProvider(tp)
	return nil
}

// Tracer returns a named tracer.
func (m *Manager) Tracer(name string) trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tracerProvider.Tracer(name)
}

// Metrics returns the metrics recorder, never nil.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// MetricsEnabled reports whether /metrics should be served.
func (m *Manager) MetricsEnabled() bool {
	return m.config.Metrics.Enabled
}

// Shutdown flushes pending spans and metrics.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if s, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, s.Shutdown(ctx))
	}
	if s, ok := m.metrics.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, s.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// NoopManager returns a manager with tracing and metrics disabled.
func NoopManager() *Manager {
	return NewManager(Config{})
}
