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

package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

type storedMessage struct {
	ID    string           `json:"id"`
	Role  string           `json:"role"`
	Parts []agent.PartJSON `json:"parts"`
}

type storedActions struct {
	StateDelta      map[string]any   `json:"state_delta,omitempty"`
	ArtifactDelta   map[string]int64 `json:"artifact_delta,omitempty"`
	TransferToAgent string           `json:"transfer_to_agent,omitempty"`
	Escalate        bool             `json:"escalate,omitempty"`
}

type eventColumns struct {
	message  string
	actions  string
	metadata string
}

func encodeEvent(event *agent.Event) (*eventColumns, error) {
	cols := &eventColumns{}

	if event.Message != nil {
		msg := storedMessage{ID: event.Message.ID, Role: string(event.Message.Role)}
		for _, part := range event.Message.Parts {
			pj, err := agent.EncodePart(part)
			if err != nil {
				return nil, err
			}
			msg.Parts = append(msg.Parts, pj)
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message: %w", err)
		}
		cols.message = string(b)
	}

	b, err := json.Marshal(storedActions{
		StateDelta:      trimTemp(event.Actions.StateDelta),
		ArtifactDelta:   event.Actions.ArtifactDelta,
		TransferToAgent: event.Actions.TransferToAgent,
		Escalate:        event.Actions.Escalate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	cols.actions = string(b)

	if len(event.CustomMetadata) > 0 {
		b, err := json.Marshal(event.CustomMetadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		cols.metadata = string(b)
	}
	return cols, nil
}

func decodeEvent(ev *agent.Event, message, actions, metadata string) error {
	if message != "" {
		var msg storedMessage
		if err := json.Unmarshal([]byte(message), &msg); err != nil {
			return fmt.Errorf("failed to decode message: %w", err)
		}
		parts := make([]a2a.Part, 0, len(msg.Parts))
		for _, pj := range msg.Parts {
			part, err := agent.DecodePart(pj)
			if err != nil {
				return err
			}
			parts = append(parts, part)
		}
		ev.Message = &a2a.Message{ID: msg.ID, Role: a2a.MessageRole(msg.Role), Parts: parts}
	}

	if actions != "" {
		var sa storedActions
		if err := json.Unmarshal([]byte(actions), &sa); err != nil {
			return fmt.Errorf("failed to decode actions: %w", err)
		}
		ev.Actions = agent.EventActions{
			StateDelta:      sa.StateDelta,
			ArtifactDelta:   sa.ArtifactDelta,
			TransferToAgent: sa.TransferToAgent,
			Escalate:        sa.Escalate,
		}
	}

	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &ev.CustomMetadata); err != nil {
			return fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return nil
}

func trimTemp(delta map[string]any) map[string]any {
	if len(delta) == 0 {
		return nil
	}
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		if strings.HasPrefix(k, KeyPrefixTemp) {
			continue
		}
		out[k] = v
	}
	return out
}
