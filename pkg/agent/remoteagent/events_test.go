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

package remoteagent

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/testutils"
)

func TestToEvent(t *testing.T) {
	trip := testutils.NewTextAgent(t, "city_trip_agent", "", nil)
	ctx := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{Agent: trip, Branch: "city_guide"})

	text := func(s string) *a2a.Message {
		return a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: s})
	}

	t.Run("message is final", func(t *testing.T) {
		msg := text("Rome in three days")
		msg.TaskID = "task-1"
		ev := toEvent(ctx, msg)
		require.NotNil(t, ev)
		assert.Equal(t, "city_trip_agent", ev.Author)
		assert.Equal(t, "city_guide", ev.Branch)
		assert.False(t, ev.Partial)
		assert.True(t, ev.TurnComplete)
		assert.Equal(t, "Rome in three days", ev.TextContent())
		assert.Equal(t, "task-1", ev.CustomMetadata[MetaTaskID])
	})

	t.Run("working status is partial", func(t *testing.T) {
		ev := toEvent(ctx, &a2a.TaskStatusUpdateEvent{
			TaskID: "task-1",
			Status: a2a.TaskStatus{State: a2a.TaskStateWorking, Message: text("Searching flights")},
		})
		require.NotNil(t, ev)
		assert.True(t, ev.Partial)
	})

	t.Run("status without message is skipped", func(t *testing.T) {
		assert.Nil(t, toEvent(ctx, &a2a.TaskStatusUpdateEvent{Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}))
	})

	t.Run("final failed status carries the error", func(t *testing.T) {
		ev := toEvent(ctx, &a2a.TaskStatusUpdateEvent{
			Final:  true,
			Status: a2a.TaskStatus{State: a2a.TaskStateFailed, Message: text("quota exceeded")},
		})
		require.NotNil(t, ev)
		assert.False(t, ev.Partial)
		assert.True(t, ev.TurnComplete)
		assert.Equal(t, "quota exceeded", ev.ErrorMessage)
		assert.Equal(t, string(a2a.TaskStateFailed), ev.CustomMetadata[MetaTaskState])
	})

	t.Run("artifact chunks", func(t *testing.T) {
		chunk := &a2a.TaskArtifactUpdateEvent{Artifact: &a2a.Artifact{Parts: []a2a.Part{a2a.TextPart{Text: "Day 1"}}}}
		ev := toEvent(ctx, chunk)
		require.NotNil(t, ev)
		assert.True(t, ev.Partial)

		chunk.LastChunk = true
		assert.False(t, toEvent(ctx, chunk).Partial)

		assert.Nil(t, toEvent(ctx, &a2a.TaskArtifactUpdateEvent{Artifact: &a2a.Artifact{}}))
	})

	t.Run("completed task collects artifacts", func(t *testing.T) {
		task := &a2a.Task{
			ID:        "task-2",
			ContextID: "s1",
			Artifacts: []*a2a.Artifact{{Parts: []a2a.Part{a2a.TextPart{Text: "Itinerary"}}}},
			Status:    a2a.TaskStatus{State: a2a.TaskStateCompleted},
		}
		ev := toEvent(ctx, task)
		require.NotNil(t, ev)
		assert.False(t, ev.Partial)
		assert.Equal(t, "Itinerary", ev.TextContent())
		assert.Equal(t, "s1", ev.CustomMetadata[MetaContextID])
	})
}
