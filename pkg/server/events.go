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

package server

import (
	"maps"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

const (
	metaKeyUserID    = "cityscape:user_id"
	metaKeySessionID = "cityscape:session_id"
	metaKeyAuthor    = "cityscape:author"
	metaKeyBranch    = "cityscape:branch"
	metaKeyEscalate  = "cityscape:escalate"
	metaKeyTransfer  = "cityscape:transfer_to_agent"
)

// eventProcessor converts agent events into one streamed A2A artifact and
// picks the terminal task state.
type eventProcessor struct {
	reqCtx *a2asrv.RequestContext
	meta   invocationMeta

	terminalActions agent.EventActions

	// responseID is set once the first artifact chunk is sent.
	responseID a2a.ArtifactID

	failure *a2a.TaskStatusUpdateEvent
}

func newEventProcessor(reqCtx *a2asrv.RequestContext, meta invocationMeta) *eventProcessor {
	return &eventProcessor{reqCtx: reqCtx, meta: meta}
}

// process returns the artifact chunk for event, or nil when the event has
// nothing a remote caller should see. Partial chunks and tool traffic are
// dropped: the final text of each turn carries the same content.
func (p *eventProcessor) process(event *agent.Event) *a2a.TaskArtifactUpdateEvent {
	if event == nil {
		return nil
	}
	p.updateTerminalActions(event)

	if event.ErrorMessage != "" && p.failure == nil {
		msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, p.reqCtx, a2a.TextPart{Text: event.ErrorMessage})
		p.failure = a2a.NewStatusUpdateEvent(p.reqCtx, a2a.TaskStateFailed, msg)
		p.failure.Final = true
		p.failure.Metadata = p.makeEventMeta(event)
	}

	if event.Partial || event.Message == nil {
		return nil
	}
	parts := visibleParts(event.Message.Parts)
	if len(parts) == 0 {
		return nil
	}

	var result *a2a.TaskArtifactUpdateEvent
	if p.responseID == "" {
		result = a2a.NewArtifactEvent(p.reqCtx, parts...)
		p.responseID = result.Artifact.ID
	} else {
		result = a2a.NewArtifactUpdateEvent(p.reqCtx, p.responseID, parts...)
	}
	result.Metadata = p.makeEventMeta(event)
	return result
}

// visibleParts drops tool call and tool result data parts.
func visibleParts(parts []a2a.Part) []a2a.Part {
	var out []a2a.Part
	for _, part := range parts {
		if dp, ok := part.(a2a.DataPart); ok {
			if kind, _ := dp.Data["type"].(string); kind == agent.PartTypeToolUse || kind == agent.PartTypeToolResult {
				continue
			}
		}
		out = append(out, part)
	}
	return out
}

func (p *eventProcessor) makeTerminalEvents() []a2a.Event {
	result := make([]a2a.Event, 0, 2)

	if p.responseID != "" {
		ev := a2a.NewArtifactUpdateEvent(p.reqCtx, p.responseID)
		ev.LastChunk = true
		result = append(result, ev)
	}

	if p.failure != nil {
		p.failure.Metadata = p.setActionsMeta(p.failure.Metadata)
		return append(result, p.failure)
	}

	ev := a2a.NewStatusUpdateEvent(p.reqCtx, a2a.TaskStateCompleted, nil)
	ev.Final = true
	ev.Metadata = p.setActionsMeta(maps.Clone(p.meta.eventMeta))
	return append(result, ev)
}

func (p *eventProcessor) makeFailedEvent(cause error, event *agent.Event) *a2a.TaskStatusUpdateEvent {
	meta := p.meta.eventMeta
	if event != nil {
		meta = p.makeEventMeta(event)
	}
	return toFailedStatusEvent(p.reqCtx, cause, meta)
}

func (p *eventProcessor) updateTerminalActions(event *agent.Event) {
	p.terminalActions.Escalate = p.terminalActions.Escalate || event.Actions.Escalate
	if event.Actions.TransferToAgent != "" {
		p.terminalActions.TransferToAgent = event.Actions.TransferToAgent
	}
}

func (p *eventProcessor) makeEventMeta(event *agent.Event) map[string]any {
	meta := maps.Clone(p.meta.eventMeta)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[metaKeyAuthor] = event.Author
	if event.Branch != "" {
		meta[metaKeyBranch] = event.Branch
	}
	return meta
}

func (p *eventProcessor) setActionsMeta(meta map[string]any) map[string]any {
	if meta == nil {
		meta = make(map[string]any)
	}
	if p.terminalActions.Escalate {
		meta[metaKeyEscalate] = true
	}
	if p.terminalActions.TransferToAgent != "" {
		meta[metaKeyTransfer] = p.terminalActions.TransferToAgent
	}
	return meta
}

func toFailedStatusEvent(reqCtx *a2asrv.RequestContext, cause error, meta map[string]any) *a2a.TaskStatusUpdateEvent {
	msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.TextPart{Text: cause.Error()})
	ev := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateFailed, msg)
	ev.Metadata = meta
	ev.Final = true
	return ev
}
