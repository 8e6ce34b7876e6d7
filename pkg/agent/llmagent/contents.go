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

package llmagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// buildMessages turns the session history into model messages.
//
// Only events visible on the agent's branch are included. Messages written
// by other agents are rephrased as user context, so the model never
// mistakes another agent's words or tool calls for its own.
func (a *llmAgent) buildMessages(ctx agent.InvocationContext) []*a2a.Message {
	var events []*agent.Event
	if sess := ctx.Session(); sess != nil {
		for ev := range sess.Events().All() {
			if ev.Message == nil || ev.Partial {
				continue
			}
			if !eventBelongsToBranch(ctx.Branch(), ev.Branch) {
				continue
			}
			events = append(events, ev)
		}
	}

	if a.includeContents == IncludeContentsNone {
		events = currentTurn(events)
	}

	messages := make([]*a2a.Message, 0, len(events))
	for _, ev := range events {
		if ev.Author == agent.AuthorUser || ev.Author == a.Name() {
			messages = append(messages, ev.Message)
			continue
		}
		if msg := foreignMessage(ev); msg != nil {
			messages = append(messages, msg)
		}
	}

	if len(messages) == 0 {
		if uc := ctx.UserContent(); uc != nil {
			messages = append(messages, uc.ToMessage())
		}
	}
	return messages
}

// eventBelongsToBranch reports whether an event on eventBranch is visible
// to an invocation on invocationBranch. Events of ancestors are visible,
// events of siblings are not.
//
//	""                           sees everything
//	"city_info.city_researcher"  sees "", "city_info" and its own events
func eventBelongsToBranch(invocationBranch, eventBranch string) bool {
	if invocationBranch == "" || eventBranch == "" {
		return true
	}
	if eventBranch == invocationBranch {
		return true
	}
	return strings.HasPrefix(invocationBranch, eventBranch+".")
}

// currentTurn keeps the events from the latest user message on.
func currentTurn(events []*agent.Event) []*agent.Event {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Author == agent.AuthorUser {
			return events[i:]
		}
	}
	return events
}

func foreignMessage(ev *agent.Event) *a2a.Message {
	parts := []a2a.Part{a2a.TextPart{Text: "For context:"}}

	for _, part := range ev.Message.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			parts = append(parts, a2a.TextPart{Text: fmt.Sprintf("[%s] said: %s", ev.Author, p.Text)})
		case a2a.DataPart:
			kind, _ := p.Data["type"].(string)
			switch kind {
			case agent.PartTypeToolUse:
				parts = append(parts, a2a.TextPart{Text: fmt.Sprintf("[%s] called tool `%v` with parameters: %s",
					ev.Author, p.Data["name"], compactJSON(p.Data["arguments"]))})
			case agent.PartTypeToolResult:
				parts = append(parts, a2a.TextPart{Text: fmt.Sprintf("[%s] `%v` tool returned result: %s",
					ev.Author, p.Data["tool_name"], compactJSON(p.Data["result"]))})
			}
		case a2a.FilePart:
			parts = append(parts, p)
		}
	}

	if len(parts) == 1 {
		return nil
	}
	return a2a.NewMessage(a2a.MessageRoleUser, parts...)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
