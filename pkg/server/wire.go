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
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/session"
)

// contentJSON is the REST shape of agent.Content.
type contentJSON struct {
	Role  string           `json:"role"`
	Parts []agent.PartJSON `json:"parts"`
}

type actionsJSON struct {
	StateDelta      map[string]any   `json:"stateDelta,omitempty"`
	ArtifactDelta   map[string]int64 `json:"artifactDelta,omitempty"`
	TransferToAgent string           `json:"transferToAgent,omitempty"`
	Escalate        bool             `json:"escalate,omitempty"`
}

type eventJSON struct {
	ID           string       `json:"id"`
	InvocationID string       `json:"invocationId"`
	Author       string       `json:"author"`
	Branch       string       `json:"branch,omitempty"`
	Timestamp    float64      `json:"timestamp"`
	Content      *contentJSON `json:"content,omitempty"`
	Actions      actionsJSON  `json:"actions"`
	Partial      bool         `json:"partial,omitempty"`
	TurnComplete bool         `json:"turnComplete,omitempty"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

type sessionJSON struct {
	ID             string         `json:"id"`
	AppName        string         `json:"appName"`
	UserID         string         `json:"userId"`
	State          map[string]any `json:"state"`
	Events         []eventJSON    `json:"events"`
	LastUpdateTime float64        `json:"lastUpdateTime"`
}

type createSessionRequest struct {
	SessionID string         `json:"sessionId,omitempty"`
	State     map[string]any `json:"state,omitempty"`
}

type runRequest struct {
	AppName    string      `json:"appName"`
	UserID     string      `json:"userId"`
	SessionID  string      `json:"sessionId"`
	NewMessage contentJSON `json:"newMessage"`
	Streaming  bool        `json:"streaming,omitempty"`
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func toContentJSON(role a2a.MessageRole, parts []a2a.Part) (*contentJSON, error) {
	out := &contentJSON{Role: string(role), Parts: make([]agent.PartJSON, 0, len(parts))}
	for _, part := range parts {
		p, err := agent.EncodePart(part)
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, p)
	}
	return out, nil
}

func (c contentJSON) toContent() (*agent.Content, error) {
	if len(c.Parts) == 0 {
		return nil, fmt.Errorf("newMessage has no parts")
	}
	content := &agent.Content{Role: a2a.MessageRoleUser}
	if c.Role == string(a2a.MessageRoleAgent) {
		content.Role = a2a.MessageRoleAgent
	}
	for i, p := range c.Parts {
		if p.Kind == "" {
			p.Kind = "text"
		}
		part, err := agent.DecodePart(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		content.Parts = append(content.Parts, part)
	}
	return content, nil
}

func toEventJSON(ev *agent.Event) (eventJSON, error) {
	out := eventJSON{
		ID:           ev.ID,
		InvocationID: ev.InvocationID,
		Author:       ev.Author,
		Branch:       ev.Branch,
		Timestamp:    unixSeconds(ev.Timestamp),
		Actions: actionsJSON{
			StateDelta:      ev.Actions.StateDelta,
			ArtifactDelta:   ev.Actions.ArtifactDelta,
			TransferToAgent: ev.Actions.TransferToAgent,
			Escalate:        ev.Actions.Escalate,
		},
		Partial:      ev.Partial,
		TurnComplete: ev.TurnComplete,
		ErrorCode:    ev.ErrorCode,
		ErrorMessage: ev.ErrorMessage,
	}
	if ev.Message != nil {
		content, err := toContentJSON(ev.Message.Role, ev.Message.Parts)
		if err != nil {
			return eventJSON{}, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		out.Content = content
	}
	return out, nil
}

// toSessionJSON renders a session. Event history is included only when
// withEvents is set.
func toSessionJSON(sess session.Session, withEvents bool) (sessionJSON, error) {
	out := sessionJSON{
		ID:             sess.ID(),
		AppName:        sess.AppName(),
		UserID:         sess.UserID(),
		State:          make(map[string]any),
		Events:         []eventJSON{},
		LastUpdateTime: unixSeconds(sess.LastUpdateTime()),
	}
	for k, v := range sess.State().All() {
		out.State[k] = v
	}
	if !withEvents {
		return out, nil
	}
	for ev := range sess.Events().All() {
		e, err := toEventJSON(ev)
		if err != nil {
			return sessionJSON{}, err
		}
		out.Events = append(out.Events, e)
	}
	return out, nil
}
