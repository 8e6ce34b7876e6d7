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

package model

import (
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// StreamingAggregator turns provider deltas into partial responses and
// assembles the final response once the stream ends.
type StreamingAggregator struct {
	text     strings.Builder
	thinking strings.Builder
	files    []a2a.Part
	calls    []tool.ToolCall
	seen     map[string]bool

	usage  *Usage
	reason FinishReason
}

// NewStreamingAggregator returns an empty aggregator.
func NewStreamingAggregator() *StreamingAggregator {
	return &StreamingAggregator{seen: make(map[string]bool)}
}

// Text returns a partial response for a text delta.
func (a *StreamingAggregator) Text(delta string) *Response {
	a.text.WriteString(delta)
	return &Response{
		Content: &Content{Parts: []a2a.Part{a2a.TextPart{Text: delta}}, Role: a2a.MessageRoleAgent},
		Partial: true,
	}
}

// Thinking returns a partial response for a reasoning delta.
func (a *StreamingAggregator) Thinking(delta string) *Response {
	a.thinking.WriteString(delta)
	return &Response{Thinking: &ThinkingBlock{Content: delta}, Partial: true}
}

// File records an inline file part. Files are only emitted with the final
// response.
func (a *StreamingAggregator) File(part a2a.Part) {
	a.files = append(a.files, part)
}

// ToolCall records a function call, ignoring repeats of the same ID.
func (a *StreamingAggregator) ToolCall(tc tool.ToolCall) {
	if tc.ID != "" && a.seen[tc.ID] {
		return
	}
	a.seen[tc.ID] = true
	a.calls = append(a.calls, tc)
}

func (a *StreamingAggregator) SetUsage(u *Usage)              { a.usage = u }
func (a *StreamingAggregator) SetFinishReason(r FinishReason) { a.reason = r }

// Close returns the aggregated response, or nil when nothing was streamed.
func (a *StreamingAggregator) Close() *Response {
	if a.text.Len() == 0 && len(a.files) == 0 && len(a.calls) == 0 && a.thinking.Len() == 0 {
		return nil
	}

	var parts []a2a.Part
	if a.text.Len() > 0 {
		parts = append(parts, a2a.TextPart{Text: a.text.String()})
	}
	parts = append(parts, a.files...)
	for _, tc := range a.calls {
		parts = append(parts, ToolUsePart(tc))
	}

	resp := &Response{
		Content:      &Content{Parts: parts, Role: a2a.MessageRoleAgent},
		TurnComplete: true,
		ToolCalls:    a.calls,
		Usage:        a.usage,
		FinishReason: a.reason,
	}
	if len(a.calls) > 0 {
		resp.FinishReason = FinishReasonToolCalls
	}
	if a.thinking.Len() > 0 {
		resp.Thinking = &ThinkingBlock{Content: a.thinking.String()}
	}
	return resp
}

// ToolUsePart encodes a function call as a data part.
func ToolUsePart(tc tool.ToolCall) a2a.DataPart {
	return a2a.DataPart{Data: map[string]any{
		"type":      agent.PartTypeToolUse,
		"id":        tc.ID,
		"name":      tc.Name,
		"arguments": tc.Args,
	}}
}

// ToolResultPart encodes a function response as a data part.
func ToolResultPart(callID, name string, result map[string]any) a2a.DataPart {
	return a2a.DataPart{Data: map[string]any{
		"type":         agent.PartTypeToolResult,
		"tool_call_id": callID,
		"tool_name":    name,
		"result":       result,
	}}
}
