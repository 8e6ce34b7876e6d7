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

package agent

import (
	"errors"
	"strings"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

// AuthorUser is the author of events that carry user input.
const AuthorUser = "user"

// Data part types used to carry function calls inside a2a messages.
const (
	PartTypeToolUse    = "tool_use"
	PartTypeToolResult = "tool_result"
)

// ErrStateKeyNotExist is returned when a state key is missing.
var ErrStateKeyNotExist = errors.New("state key does not exist")

// Event is one interaction in a session: user input, model output, a tool
// call or result, or a pure state change.
type Event struct {
	ID           string
	Timestamp    time.Time
	InvocationID string

	// Branch isolates history for parallel agents. Format: "a.b.c".
	Branch string

	// Author is the agent name, or AuthorUser.
	Author string

	Message *a2a.Message
	Actions EventActions

	// Partial marks a streaming chunk. Partial events are never persisted.
	Partial      bool
	TurnComplete bool

	ErrorCode    string
	ErrorMessage string

	CustomMetadata map[string]any
}

// EventActions are the side effects attached to an event.
type EventActions struct {
	// StateDelta is merged into session state when the event is persisted.
	StateDelta map[string]any

	// ArtifactDelta maps artifact names to the version saved by this event.
	ArtifactDelta map[string]int64

	// TransferToAgent names the agent that takes over the conversation.
	TransferToAgent string

	// Escalate stops the enclosing loop agent.
	Escalate bool

	SkipSummarization bool
}

// NewEvent creates an event for the given invocation.
func NewEvent(invocationID string) *Event {
	return &Event{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		InvocationID: invocationID,
		Actions: EventActions{
			StateDelta:    make(map[string]any),
			ArtifactDelta: make(map[string]int64),
		},
	}
}

// IsFinalResponse reports whether the event ends the author's turn.
func (e *Event) IsFinalResponse() bool {
	if e.Actions.SkipSummarization {
		return true
	}
	return !e.HasToolCalls() && !e.HasToolResults() && !e.Partial
}

// HasToolCalls reports whether the message contains function calls.
func (e *Event) HasToolCalls() bool {
	return e.hasDataPart(PartTypeToolUse)
}

// HasToolResults reports whether the message contains function results.
func (e *Event) HasToolResults() bool {
	return e.hasDataPart(PartTypeToolResult)
}

func (e *Event) hasDataPart(kind string) bool {
	if e.Message == nil {
		return false
	}
	for _, part := range e.Message.Parts {
		if dp, ok := part.(a2a.DataPart); ok {
			if t, _ := dp.Data["type"].(string); t == kind {
				return true
			}
		}
	}
	return false
}

// TextContent concatenates all text parts of the message.
func (e *Event) TextContent() string {
	if e.Message == nil {
		return ""
	}
	return textOf(e.Message.Parts)
}

// Content is a role plus a list of parts.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// NewTextContent creates single-part text content.
func NewTextContent(text string, role a2a.MessageRole) *Content {
	return &Content{
		Parts: []a2a.Part{a2a.TextPart{Text: text}},
		Role:  role,
	}
}

// ToMessage converts the content into an a2a message.
func (c *Content) ToMessage() *a2a.Message {
	if c == nil {
		return nil
	}
	role := c.Role
	if role == "" {
		role = a2a.MessageRoleAgent
	}
	return a2a.NewMessage(role, c.Parts...)
}

// Text concatenates all text parts.
func (c *Content) Text() string {
	if c == nil {
		return ""
	}
	return textOf(c.Parts)
}

func textOf(parts []a2a.Part) string {
	var b strings.Builder
	for _, part := range parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}
