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

package routeragent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/instruction"
	"github.com/kadirpekel/cityscape/pkg/model"
)

// ModelDecider asks a model to pick the target. The model answers with
// JSON {"target": "<name>"} constrained by a response schema whose enum is
// the target names plus TargetSelf.
type ModelDecider struct {
	llm         model.LLM
	instruction string
}

// NewModelDecider creates a decider backed by llm. The instruction supports
// {key} state placeholders.
func NewModelDecider(llm model.LLM, instruction string) *ModelDecider {
	return &ModelDecider{llm: llm, instruction: instruction}
}

type decision struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// Decide implements Decider.
func (d *ModelDecider) Decide(ctx agent.InvocationContext, targets []Target) (string, error) {
	if d.llm == nil {
		return "", errors.New("model decider has no model")
	}

	system, err := instruction.InjectState(ctx, d.instruction)
	if err != nil {
		return "", err
	}

	req := &model.Request{
		SystemInstruction: system + "\n\n" + targetList(targets),
		Messages:          conversation(ctx),
		Config: &model.GenerateConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   DecisionSchema(targets),
		},
	}

	var final *model.Response
	for resp, err := range d.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", fmt.Errorf("model %s: %w", d.llm.Name(), err)
		}
		if resp != nil && !resp.Partial {
			final = resp
		}
	}
	if final == nil {
		return "", errors.New("model returned no response")
	}
	if final.ErrorMessage != "" {
		return "", fmt.Errorf("model %s: %s", d.llm.Name(), final.ErrorMessage)
	}

	var dec decision
	if err := json.Unmarshal([]byte(stripFence(final.TextContent())), &dec); err != nil {
		return "", fmt.Errorf("invalid routing decision %q: %w", final.TextContent(), err)
	}

	if dec.Target == TargetSelf {
		return TargetSelf, nil
	}
	for _, t := range targets {
		if t.Name == dec.Target {
			slog.Debug("Routing decision", "target", dec.Target, "reason", dec.Reason)
			return dec.Target, nil
		}
	}
	return "", fmt.Errorf("model chose unknown target %q", dec.Target)
}

// DecisionSchema is the response schema offered to the model.
func DecisionSchema(targets []Target) map[string]any {
	names := make([]any, 0, len(targets)+1)
	for _, t := range targets {
		names = append(names, t.Name)
	}
	names = append(names, TargetSelf)

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target": map[string]any{
				"type": "string",
				"enum": names,
			},
			"reason": map[string]any{"type": "string"},
		},
		"required": []any{"target"},
	}
}

func targetList(targets []Target) string {
	var b strings.Builder
	b.WriteString("Delegation targets:\n")
	for _, t := range targets {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "- %s: answer the user directly without delegating.\n", TargetSelf)
	b.WriteString("\nRespond with JSON of the form {\"target\": \"<name>\", \"reason\": \"<short reason>\"}.")
	return b.String()
}

// conversation returns the text of the visible user messages and final
// agent answers, oldest first.
func conversation(ctx agent.InvocationContext) []*a2a.Message {
	var out []*a2a.Message
	if sess := ctx.Session(); sess != nil {
		for ev := range sess.Events().All() {
			if ev.Partial || ev.Branch != ctx.Branch() {
				continue
			}
			text := strings.TrimSpace(ev.TextContent())
			if text == "" {
				continue
			}
			if ev.Author == agent.AuthorUser {
				out = append(out, a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text}))
				continue
			}
			if ev.IsFinalResponse() {
				out = append(out, a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "[" + ev.Author + "] " + text}))
			}
		}
	}
	if len(out) == 0 {
		if uc := ctx.UserContent(); uc != nil {
			out = append(out, uc.ToMessage())
		}
	}
	return out
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
