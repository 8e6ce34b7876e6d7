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
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/instruction"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// clientCallIDPrefix marks function call IDs generated locally because the
// model returned none.
const clientCallIDPrefix = "call-"

// flow is the reasoning loop of one agent turn:
//
//	build request → call model → yield response → run tools → yield results
//
// It repeats until the model answers without function calls.
type flow struct {
	agent *llmAgent
}

func newFlow(a *llmAgent) *flow {
	return &flow{agent: a}
}

func (f *flow) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		for iteration := 0; iteration < f.agent.maxIterations; iteration++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			var last *agent.Event
			for ev, err := range f.runOneStep(ctx) {
				if err != nil {
					yield(nil, err)
					return
				}
				if !yield(ev, nil) {
					return
				}
				last = ev
			}

			if last == nil || last.IsFinalResponse() || ctx.Ended() {
				slog.Debug("Agent turn finished", "agent", f.agent.Name(), "iteration", iteration)
				return
			}
			if last.Partial {
				yield(nil, errors.New("unexpected partial event at end of step"))
				return
			}
		}

		yield(nil, fmt.Errorf("agent %q: tool loop exceeded %d iterations", f.agent.Name(), f.agent.maxIterations))
	}
}

func (f *flow) runOneStep(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		tools, err := f.agent.collectTools(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("agent %q: %w", f.agent.Name(), err))
			return
		}

		req, err := f.buildRequest(ctx, tools)
		if err != nil {
			yield(nil, fmt.Errorf("agent %q: %w", f.agent.Name(), err))
			return
		}

		actions := &agent.EventActions{}
		resp, ok, err := f.callModel(ctx, req, actions, yield)
		if err != nil {
			yield(nil, err)
			return
		}
		if !ok || resp == nil {
			return
		}
		if resp.Content == nil && resp.ErrorCode == "" && !resp.HasToolCalls() {
			return
		}

		populateToolCallIDs(resp)
		if !yield(f.modelResponseEvent(ctx, resp, actions), nil) {
			return
		}
		if !resp.HasToolCalls() {
			return
		}

		toolEvent := f.handleToolCalls(ctx, tools, resp)
		if !yield(toolEvent, nil) {
			return
		}
		if target := toolEvent.Actions.TransferToAgent; target != "" {
			f.transfer(ctx, target, yield)
		}
	}
}

func (f *flow) buildRequest(ctx agent.InvocationContext, tools []tool.Tool) (*model.Request, error) {
	cfg := f.agent.generateConfig.Clone()
	if cfg == nil {
		cfg = &model.GenerateConfig{}
	}
	if f.agent.outputSchema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = f.agent.outputSchema
	}

	system, err := f.agent.systemInstruction(ctx)
	if err != nil {
		return nil, err
	}

	req := &model.Request{
		Messages: f.agent.buildMessages(ctx),
		Config:   cfg,
	}

	toolReq := &tool.Request{SystemInstruction: system, Config: cfg}
	for _, t := range tools {
		if p, ok := t.(tool.RequestProcessor); ok {
			if err := p.ProcessRequest(tool.NewContext(ctx, "", nil), toolReq); err != nil {
				return nil, fmt.Errorf("tool %q preprocessing failed: %w", t.Name(), err)
			}
		}
		if c, ok := t.(tool.CallableTool); ok {
			req.Tools = append(req.Tools, tool.ToDefinition(c))
		}
	}

	req.SystemInstruction = toolReq.SystemInstruction
	if c, ok := toolReq.Config.(*model.GenerateConfig); ok && c != nil {
		req.Config = c
	}
	return req, nil
}

func (a *llmAgent) systemInstruction(ctx agent.InvocationContext) (string, error) {
	var parts []string

	if a.globalInstruction != "" {
		global, err := instruction.InjectState(ctx, a.globalInstruction)
		if err != nil {
			return "", fmt.Errorf("global instruction: %w", err)
		}
		parts = append(parts, global)
	}

	switch {
	case a.instructionProvider != nil:
		text, err := a.instructionProvider(ctx)
		if err != nil {
			return "", fmt.Errorf("instruction provider: %w", err)
		}
		parts = append(parts, text)
	case a.instruction != "":
		text, err := instruction.InjectState(ctx, a.instruction)
		if err != nil {
			return "", fmt.Errorf("instruction: %w", err)
		}
		parts = append(parts, text)
	}

	return strings.Join(parts, "\n\n"), nil
}

// callModel runs the model with its callbacks. Partial responses are
// yielded as they arrive; ok is false when the consumer stopped.
func (f *flow) callModel(
	ctx agent.InvocationContext,
	req *model.Request,
	actions *agent.EventActions,
	yield func(*agent.Event, error) bool,
) (*model.Response, bool, error) {
	cbCtx := agent.NewCallbackContext(ctx, actions)

	for _, cb := range f.agent.beforeModelCallbacks {
		resp, err := cb(cbCtx, req)
		if err != nil {
			return nil, false, fmt.Errorf("before-model callback failed: %w", err)
		}
		if resp != nil {
			return resp, true, nil
		}
	}

	stream := ctx.RunConfig() != nil && ctx.RunConfig().StreamingMode == agent.StreamingModeSSE

	var final *model.Response
	for resp, genErr := range f.agent.model.GenerateContent(ctx, req, stream) {
		replaced, err := f.runAfterModelCallbacks(cbCtx, resp, genErr)
		if err != nil {
			return nil, false, err
		}
		if replaced != nil {
			resp, genErr = replaced, nil
		}
		if genErr != nil {
			return nil, false, fmt.Errorf("model %q: %w", f.agent.model.Name(), genErr)
		}
		if resp == nil {
			continue
		}

		if resp.Partial {
			if !yield(f.partialEvent(ctx, resp), nil) {
				return nil, false, nil
			}
			continue
		}
		final = resp
	}
	return final, true, nil
}

func (f *flow) runAfterModelCallbacks(ctx agent.CallbackContext, resp *model.Response, respErr error) (*model.Response, error) {
	for _, cb := range f.agent.afterModelCallbacks {
		replaced, err := cb(ctx, resp, respErr)
		if err != nil {
			return nil, fmt.Errorf("after-model callback failed: %w", err)
		}
		if replaced != nil {
			return replaced, nil
		}
	}
	return nil, nil
}

func (f *flow) modelResponseEvent(ctx agent.InvocationContext, resp *model.Response, actions *agent.EventActions) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.Name()
	ev.Branch = ctx.Branch()
	ev.TurnComplete = resp.TurnComplete
	ev.ErrorCode = resp.ErrorCode
	ev.ErrorMessage = resp.ErrorMessage
	maps.Copy(ev.Actions.StateDelta, actions.StateDelta)
	maps.Copy(ev.Actions.ArtifactDelta, actions.ArtifactDelta)

	var parts []a2a.Part
	if resp.Content != nil {
		for _, part := range resp.Content.Parts {
			if isToolUse(part) {
				continue
			}
			parts = append(parts, part)
		}
	}
	for _, tc := range resp.ToolCalls {
		parts = append(parts, model.ToolUsePart(tc))
	}
	if len(parts) > 0 {
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, parts...)
	}

	if resp.Thinking != nil && resp.Thinking.Content != "" {
		ev.CustomMetadata = map[string]any{"thinking": resp.Thinking.Content}
	}
	if resp.Usage != nil {
		if ev.CustomMetadata == nil {
			ev.CustomMetadata = make(map[string]any)
		}
		ev.CustomMetadata["usage"] = map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
		}
	}

	if f.agent.outputKey != "" && !resp.HasToolCalls() && resp.ErrorCode == "" {
		if text := resp.TextContent(); text != "" {
			ev.Actions.StateDelta[f.agent.outputKey] = f.agent.outputValue(text)
		}
	}
	return ev
}

// outputValue decodes structured output when a schema is configured.
func (a *llmAgent) outputValue(text string) any {
	if a.outputSchema == nil {
		return text
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		slog.Warn("Output does not match schema, storing raw text", "agent", a.Name(), "error", err)
		return text
	}
	return obj
}

func (f *flow) partialEvent(ctx agent.InvocationContext, resp *model.Response) *agent.Event {
	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.Name()
	ev.Branch = ctx.Branch()
	ev.Partial = true

	switch {
	case resp.Content != nil && len(resp.Content.Parts) > 0:
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, resp.Content.Parts...)
	case resp.Thinking != nil:
		ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.DataPart{Data: map[string]any{
			"type":     "thinking",
			"thinking": resp.Thinking.Content,
		}})
	}
	return ev
}

// handleToolCalls runs every requested tool in order and merges the results
// into one response event.
func (f *flow) handleToolCalls(ctx agent.InvocationContext, tools []tool.Tool, resp *model.Response) *agent.Event {
	byName := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		byName[t.Name()] = t
	}

	merged := &agent.EventActions{
		StateDelta:    make(map[string]any),
		ArtifactDelta: make(map[string]int64),
	}
	parts := make([]a2a.Part, 0, len(resp.ToolCalls))

	for _, tc := range resp.ToolCalls {
		toolCtx := tool.NewContext(ctx, tc.ID, &agent.EventActions{})

		var result map[string]any
		t, ok := byName[tc.Name]
		if !ok {
			result = map[string]any{"error": fmt.Sprintf("tool %q not found", tc.Name)}
		} else {
			var err error
			result, err = f.callToolWithCallbacks(toolCtx, t, tc.Args)
			if err != nil {
				slog.Warn("Tool call failed", "agent", f.agent.Name(), "tool", tc.Name, "error", err)
				result = map[string]any{"error": err.Error()}
			}
		}
		if result == nil {
			result = map[string]any{}
		}

		mergeEventActions(merged, toolCtx.Actions())
		parts = append(parts, model.ToolResultPart(tc.ID, tc.Name, result))
	}

	ev := agent.NewEvent(ctx.InvocationID())
	ev.Author = f.agent.Name()
	ev.Branch = ctx.Branch()
	ev.Message = a2a.NewMessage(a2a.MessageRoleUser, parts...)
	ev.Actions = *merged
	return ev
}

func (f *flow) callToolWithCallbacks(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error) {
	for _, cb := range f.agent.beforeToolCallbacks {
		result, err := cb(ctx, t, args)
		if err != nil {
			return nil, fmt.Errorf("before-tool callback failed: %w", err)
		}
		if result != nil {
			return result, nil
		}
	}

	callable, ok := t.(tool.CallableTool)
	if !ok {
		return nil, fmt.Errorf("tool %q is not callable", t.Name())
	}
	result, callErr := callable.Call(ctx, args)

	for _, cb := range f.agent.afterToolCallbacks {
		replaced, err := cb(ctx, t, args, result, callErr)
		if err != nil {
			return nil, fmt.Errorf("after-tool callback failed: %w", err)
		}
		if replaced != nil {
			return replaced, nil
		}
	}
	return result, callErr
}

func (f *flow) transfer(ctx agent.InvocationContext, name string, yield func(*agent.Event, error) bool) {
	var target agent.Agent
	for _, sub := range f.agent.SubAgents() {
		if sub.Name() == name {
			target = sub
			break
		}
	}
	if target == nil {
		yield(nil, fmt.Errorf("transfer target agent not found: %s", name))
		return
	}

	for ev, err := range target.Run(ctx) {
		if !yield(ev, err) || err != nil {
			return
		}
	}
}

func mergeEventActions(base, other *agent.EventActions) {
	if other == nil {
		return
	}
	if other.SkipSummarization {
		base.SkipSummarization = true
	}
	if other.TransferToAgent != "" {
		base.TransferToAgent = other.TransferToAgent
	}
	if other.Escalate {
		base.Escalate = true
	}
	maps.Copy(base.StateDelta, other.StateDelta)
	maps.Copy(base.ArtifactDelta, other.ArtifactDelta)
}

func populateToolCallIDs(resp *model.Response) {
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].ID == "" {
			resp.ToolCalls[i].ID = clientCallIDPrefix + uuid.NewString()
		}
	}
}

func isToolUse(part a2a.Part) bool {
	dp, ok := part.(a2a.DataPart)
	if !ok {
		return false
	}
	t, _ := dp.Data["type"].(string)
	return t == agent.PartTypeToolUse
}
