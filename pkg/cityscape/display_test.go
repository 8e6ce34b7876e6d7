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

package cityscape_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/llmagent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/cityscape"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/testutils"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "generated", "zurich")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pngHeader, 0o600))
	return path
}

func TestDisplayImage_Success(t *testing.T) {
	svc := artifact.NewInMemoryService()
	arts := artifact.ForSession(svc, "cityscape", "u1", "s1")
	path := writeImage(t, "zurich_cityscape.png")

	result := cityscape.DisplayImage(context.Background(), arts, path)

	require.IsType(t, cityscape.DisplaySuccess{}, result)
	assert.Equal(t, "zurich_cityscape.png", result.(cityscape.DisplaySuccess).Name)
	assert.Equal(t, map[string]any{
		"status": "success",
		"detail": `Image "zurich_cityscape.png" displayed successfully.`,
	}, result.ToMap())

	part, err := arts.Load(context.Background(), "zurich_cityscape.png")
	require.NoError(t, err)
	data, mimeType, err := agent.BlobBytes(part)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", mimeType)
}

func TestDisplayImage_NotFound(t *testing.T) {
	arts := artifact.ForSession(artifact.NewInMemoryService(), "cityscape", "u1", "s1")
	path := filepath.Join(t.TempDir(), "missing.png")

	result := cityscape.DisplayImage(context.Background(), arts, path)

	assert.Equal(t, cityscape.DisplayNotFound{Path: path}, result)
	assert.Equal(t, map[string]any{
		"status": "failed",
		"detail": "Image file not found at path: " + path,
	}, result.ToMap())

	names, err := arts.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDisplayImage_DirectoryIsAFailure(t *testing.T) {
	arts := artifact.ForSession(artifact.NewInMemoryService(), "cityscape", "u1", "s1")
	dir := t.TempDir()

	result := cityscape.DisplayImage(context.Background(), arts, dir)

	require.IsType(t, cityscape.DisplayFailure{}, result)
	m := result.ToMap()
	assert.Equal(t, "failed", m["status"])
	assert.Contains(t, m["detail"], "An error occurred: ")
}

func TestDisplayImage_NoArtifactService(t *testing.T) {
	result := cityscape.DisplayImage(context.Background(), nil, writeImage(t, "paris.png"))
	assert.IsType(t, cityscape.DisplayFailure{}, result)
}

func TestDisplayImageTool_RecordsArtifactDelta(t *testing.T) {
	path := writeImage(t, "zurich.png")
	display, err := cityscape.NewDisplayImageTool()
	require.NoError(t, err)
	assert.Equal(t, cityscape.DisplayImageToolName, display.Name())
	assert.Contains(t, display.Schema()["properties"], "image_path")

	llm := testutils.NewMockModel(
		testutils.ToolCallResponse(tool.ToolCall{ID: "call-1", Name: cityscape.DisplayImageToolName, Args: map[string]any{"image_path": path}}),
		testutils.TextResponse("Here is Zurich."),
	)
	drawer, err := llmagent.New(llmagent.Config{
		Name:  "city_drawer",
		Model: llm,
		Tools: []tool.Tool{display},
	})
	require.NoError(t, err)

	artifacts := artifact.NewInMemoryService()
	r, err := runner.New(runner.Config{
		AppName:         "cityscape",
		Agent:           drawer,
		SessionService:  session.InMemoryService(),
		ArtifactService: artifacts,
	})
	require.NoError(t, err)

	content := agent.NewTextContent("Draw Zurich", a2a.MessageRoleUser)
	events := testutils.Collect(t, r.Run(testutils.TestContext(t), "u1", "s1", content, agent.RunConfig{}))

	var delta map[string]int64
	for _, ev := range events {
		if len(ev.Actions.ArtifactDelta) > 0 {
			delta = ev.Actions.ArtifactDelta
		}
	}
	assert.Equal(t, map[string]int64{"zurich.png": 0}, delta)

	names, err := artifacts.List(context.Background(), "cityscape", "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"zurich.png"}, names)
	assert.Equal(t, "Here is Zurich.", events[len(events)-1].TextContent())
}
