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
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// Metadata keys set on events received from a remote agent.
const (
	MetaTaskID    = "a2a:task_id"
	MetaContextID = "a2a:context_id"
	MetaTaskState = "a2a:task_state"
)

// toEvent converts a streamed A2A event. It returns nil for events that
// carry nothing to show.
//
//	*a2a.Message                 -> final event
//	*a2a.Task                    -> final event when terminal, partial otherwise
//	*a2a.TaskArtifactUpdateEvent -> partial until the last chunk
//	*a2a.TaskStatusUpdateEvent   -> final when Final, partial otherwise
func toEvent(ctx agent.InvocationContext, remote a2a.Event) *agent.Event {
	switch v := remote.(type) {
	case *a2a.Message:
		ev := newEvent(ctx, v.Parts)
		ev.TurnComplete = true
		setTaskMeta(ev, v.TaskID, v.ContextID)
		return ev

	case *a2a.Task:
		var parts []a2a.Part
		for _, artifact := range v.Artifacts {
			if artifact != nil {
				parts = append(parts, artifact.Parts...)
			}
		}
		if v.Status.Message != nil {
			parts = append(parts, v.Status.Message.Parts...)
		}
		ev := newEvent(ctx, parts)
		setTaskMeta(ev, v.ID, v.ContextID)
		ev.CustomMetadata[MetaTaskState] = string(v.Status.State)
		ev.TurnComplete = v.Status.State.Terminal()
		ev.Partial = !ev.TurnComplete && v.Status.State != a2a.TaskStateInputRequired
		ev.ErrorMessage = failureText(v.Status)
		return ev

	case *a2a.TaskArtifactUpdateEvent:
		if v.Artifact == nil || len(v.Artifact.Parts) == 0 {
			return nil
		}
		ev := newEvent(ctx, v.Artifact.Parts)
		setTaskMeta(ev, v.TaskID, v.ContextID)
		ev.Partial = !v.LastChunk
		return ev

	case *a2a.TaskStatusUpdateEvent:
		if !v.Final && v.Status.Message == nil {
			return nil
		}
		var parts []a2a.Part
		if v.Status.Message != nil {
			parts = v.Status.Message.Parts
		}
		ev := newEvent(ctx, parts)
		setTaskMeta(ev, v.TaskID, v.ContextID)
		ev.CustomMetadata[MetaTaskState] = string(v.Status.State)
		ev.Partial = !v.Final
		ev.TurnComplete = v.Final
		ev.ErrorMessage = failureText(v.Status)
		return ev

	default:
		slog.Debug("Ignoring unknown A2A event", "type", fmt.Sprintf("%T", remote))
		return nil
	}
}

func newEvent(ctx agent.InvocationContext, parts []a2a.Part) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = ctx.AgentName()
	ev.Branch = ctx.Branch()
	if len(parts) > 0 {
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, parts...)
	}
	ev.CustomMetadata = make(map[string]any)
	return ev
}

func setTaskMeta(ev *agent.Event, taskID a2a.TaskID, contextID string) {
	if taskID != "" {
		ev.CustomMetadata[MetaTaskID] = string(taskID)
	}
	if contextID != "" {
		ev.CustomMetadata[MetaContextID] = contextID
	}
}

func failureText(status a2a.TaskStatus) string {
	if status.State != a2a.TaskStateFailed {
		return ""
	}
	if status.Message != nil {
		var text string
		for _, p := range status.Message.Parts {
			if tp, ok := p.(a2a.TextPart); ok {
				text += tp.Text
			}
		}
		if text != "" {
			return text
		}
	}
	return "remote task failed"
}
