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

package cityscape

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/llmagent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/testutils"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

type countingMetrics struct {
	observability.NoopMetrics

	mu       sync.Mutex
	tools    []string
	toolErrs []error
	llmCalls int
}

func (m *countingMetrics) RecordToolCall(_ context.Context, name string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = append(m.tools, name)
	m.toolErrs = append(m.toolErrs, err)
}

func (m *countingMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmCalls++
}

func TestLeafAgent_RecordsDisplayToolCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zurich.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o600))

	display, err := NewDisplayImageTool()
	require.NoError(t, err)

	metrics := &countingMetrics{}
	deps := Deps{
		Model: testutils.NewMockModel(
			testutils.ToolCallResponse(tool.ToolCall{ID: "call-1", Name: DisplayImageToolName, Args: map[string]any{"image_path": path}}),
			testutils.TextResponse("Here is Zurich."),
		),
		Tracer:  noop.NewTracerProvider().Tracer("test"),
		Metrics: metrics,
	}
	drawer, err := newLeafAgent(deps, llmagent.Config{
		Name:  DrawerAgentName,
		Tools: []tool.Tool{display},
	})
	require.NoError(t, err)

	r, err := runner.New(runner.Config{
		AppName:         "cityscape",
		Agent:           drawer,
		SessionService:  session.InMemoryService(),
		ArtifactService: artifact.NewInMemoryService(),
	})
	require.NoError(t, err)

	content := agent.NewTextContent("Draw Zurich", a2a.MessageRoleUser)
	testutils.Collect(t, r.Run(testutils.TestContext(t), "u1", "s1", content, agent.RunConfig{}))

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, []string{DisplayImageToolName}, metrics.tools)
	assert.Equal(t, []error{nil}, metrics.toolErrs)
	assert.Equal(t, 2, metrics.llmCalls)
}

func TestBuildRoot_DefaultsToNoopInstrumentation(t *testing.T) {
	cfg := &config.Config{
		Google: config.GoogleConfig{Project: "demo-project"},
		Maps:   config.MapsConfig{APIKey: "maps-key"},
	}
	cfg.SetDefaults()

	root, err := BuildRoot(context.Background(), cfg, Deps{
		Model:   testutils.NewMockModel(),
		WorkDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.NotNil(t, agent.FindAgent(root, DrawerAgentName))
}
