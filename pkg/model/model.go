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

// Package model defines the LLM interface used by agents.
//
// GenerateContent handles both modes:
//   - stream=false yields exactly one Response
//   - stream=true yields partial Responses (Partial=true) followed by one
//     aggregated Response (Partial=false) that is persisted
package model

import (
	"context"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/tool"
)

// LLM is a language model.
type LLM interface {
	// Name returns the model identifier, e.g. "gemini-2.5-flash".
	Name() string

	GenerateContent(ctx context.Context, req *Request, stream bool) iter.Seq2[*Response, error]

	Close() error
}

// Request is the input of one model call.
type Request struct {
	// Messages is the conversation history, oldest first.
	Messages []*a2a.Message

	// Tools are the function declarations offered to the model.
	Tools []tool.Definition

	Config *GenerateConfig

	SystemInstruction string
}

// GenerateConfig holds generation parameters.
type GenerateConfig struct {
	Temperature   *float64
	MaxTokens     *int
	TopP          *float64
	TopK          *int
	StopSequences []string

	// ResponseMIMEType and ResponseSchema request structured output.
	ResponseMIMEType string
	ResponseSchema   map[string]any

	// ResponseModalities, e.g. ["TEXT", "IMAGE"] for image models.
	ResponseModalities []string

	EnableThinking bool
	ThinkingBudget int

	// GoogleSearch enables the provider-side search grounding tool.
	GoogleSearch bool
}

// Clone returns a deep copy.
func (c *GenerateConfig) Clone() *GenerateConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Temperature != nil {
		v := *c.Temperature
		clone.Temperature = &v
	}
	if c.MaxTokens != nil {
		v := *c.MaxTokens
		clone.MaxTokens = &v
	}
	if c.TopP != nil {
		v := *c.TopP
		clone.TopP = &v
	}
	if c.TopK != nil {
		v := *c.TopK
		clone.TopK = &v
	}
	clone.StopSequences = slices.Clone(c.StopSequences)
	clone.ResponseModalities = slices.Clone(c.ResponseModalities)
	clone.ResponseSchema = deepCopyMap(c.ResponseSchema)
	return &clone
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := maps.Clone(m)
	for k, v := range out {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	}
	return v
}

// Response is the output of a model call.
type Response struct {
	Content *Content

	// Partial marks a streaming delta.
	Partial      bool
	TurnComplete bool

	ToolCalls []tool.ToolCall

	Usage    *Usage
	Thinking *ThinkingBlock

	FinishReason FinishReason
	ErrorCode    string
	ErrorMessage string
}

// Content is the generated content.
type Content struct {
	Parts []a2a.Part
	Role  a2a.MessageRole
}

// Usage contains token counts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ThinkingTokens   int
}

// ThinkingBlock is the model's reasoning summary.
type ThinkingBlock struct {
	ID      string
	Content string
}

// FinishReason tells why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonContent   FinishReason = "content_filter"
	FinishReasonError     FinishReason = "error"
)

// TextContent concatenates the text parts of the response.
func (r *Response) TextContent() string {
	if r == nil || r.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Content.Parts {
		if tp, ok := part.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// HasToolCalls reports whether the model requested function calls.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
