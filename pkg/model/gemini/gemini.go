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

// Package gemini implements model.LLM on top of google.golang.org/genai.
//
// With a Project configured (and no API key) requests go to Vertex AI using
// Application Default Credentials; otherwise the Gemini API is used.
package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"google.golang.org/genai"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// Config configures a Gemini model.
type Config struct {
	Model string

	// APIKey selects the Gemini API backend.
	APIKey string

	// Project and Location select the Vertex AI backend.
	Project  string
	Location string

	// BaseURL overrides the API endpoint.
	BaseURL    string
	HTTPClient *http.Client

	// Defaults applied when the request config leaves them unset.
	Temperature float64
	MaxTokens   int
}

type geminiModel struct {
	client *genai.Client
	name   string
	cfg    Config
}

// New creates a Gemini model.
func New(ctx context.Context, cfg Config) (model.LLM, error) {
	if cfg.APIKey == "" && cfg.Project == "" {
		return nil, errors.New("gemini: either an API key or a Google Cloud project is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cc := &genai.ClientConfig{HTTPClient: cfg.HTTPClient}
	if cfg.APIKey != "" {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = cfg.APIKey
	} else {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		if cc.Location == "" {
			cc.Location = "us-central1"
		}
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &geminiModel{client: client, name: cfg.Model, cfg: cfg}, nil
}

func (m *geminiModel) Name() string { return m.name }
func (m *geminiModel) Close() error { return nil }

func (m *geminiModel) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	if stream {
		return m.generateStream(ctx, req)
	}
	return func(yield func(*model.Response, error) bool) {
		contents := buildContents(req.Messages)
		resp, err := m.client.Models.GenerateContent(ctx, m.name, contents, m.buildConfig(req))
		if err != nil {
			yield(nil, fmt.Errorf("Gemini generation failed: %w", err))
			return
		}
		yield(parseResponse(resp))
	}
}

func (m *geminiModel) generateStream(ctx context.Context, req *model.Request) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		agg := model.NewStreamingAggregator()
		contents := buildContents(req.Messages)

		for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.name, contents, m.buildConfig(req)) {
			if err != nil {
				yield(nil, fmt.Errorf("Gemini streaming error: %w", err))
				return
			}
			if chunk.UsageMetadata != nil {
				agg.SetUsage(usage(chunk.UsageMetadata))
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			cand := chunk.Candidates[0]
			if cand.FinishReason != "" {
				agg.SetFinishReason(mapFinishReason(cand.FinishReason))
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				switch {
				case part.FunctionCall != nil:
					agg.ToolCall(toolCall(part.FunctionCall))
				case part.InlineData != nil:
					agg.File(blobPart(part.InlineData))
				case part.Text != "" && part.Thought:
					if !yield(agg.Thinking(part.Text), nil) {
						return
					}
				case part.Text != "":
					if !yield(agg.Text(part.Text), nil) {
						return
					}
				}
			}
		}

		if final := agg.Close(); final != nil {
			yield(final, nil)
		}
	}
}

func buildContents(messages []*a2a.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if c := messageToContent(msg); c != nil {
			contents = append(contents, c)
		}
	}
	return contents
}

func messageToContent(msg *a2a.Message) *genai.Content {
	if msg == nil {
		return nil
	}

	var parts []*genai.Part
	for _, p := range msg.Parts {
		switch part := p.(type) {
		case a2a.TextPart:
			if part.Text != "" {
				parts = append(parts, &genai.Part{Text: part.Text})
			}

		case a2a.DataPart:
			kind, _ := part.Data["type"].(string)
			switch kind {
			case agent.PartTypeToolUse:
				name, _ := part.Data["name"].(string)
				id, _ := part.Data["id"].(string)
				args, _ := part.Data["arguments"].(map[string]any)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: id, Name: name, Args: args}})
			case agent.PartTypeToolResult:
				name, _ := part.Data["tool_name"].(string)
				id, _ := part.Data["tool_call_id"].(string)
				response, _ := part.Data["result"].(map[string]any)
				if response == nil {
					response = map[string]any{"result": part.Data["result"]}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{ID: id, Name: name, Response: response}})
			default:
				data, err := json.Marshal(part.Data)
				if err == nil {
					parts = append(parts, &genai.Part{Text: string(data)})
				}
			}

		case a2a.FilePart:
			switch f := part.File.(type) {
			case a2a.FileBytes:
				data, mime, err := agent.BlobBytes(part)
				if err != nil {
					continue
				}
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mime, Data: data, DisplayName: f.Name}})
			case a2a.FileURI:
				parts = append(parts, &genai.Part{FileData: &genai.FileData{MIMEType: f.MimeType, FileURI: f.URI}})
			}
		}
	}
	if len(parts) == 0 {
		return nil
	}

	role := genai.RoleUser
	if msg.Role == a2a.MessageRoleAgent {
		role = genai.RoleModel
	}
	return &genai.Content{Parts: parts, Role: role}
}

func (m *geminiModel) buildConfig(req *model.Request) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemInstruction}}, Role: genai.RoleUser}
	}

	if cfg := req.Config; cfg != nil {
		if cfg.Temperature != nil {
			out.Temperature = genai.Ptr(float32(*cfg.Temperature))
		}
		if cfg.MaxTokens != nil {
			out.MaxOutputTokens = int32(*cfg.MaxTokens)
		}
		if cfg.TopP != nil {
			out.TopP = genai.Ptr(float32(*cfg.TopP))
		}
		if cfg.TopK != nil {
			out.TopK = genai.Ptr(float32(*cfg.TopK))
		}
		out.StopSequences = cfg.StopSequences
		out.ResponseMIMEType = cfg.ResponseMIMEType
		if cfg.ResponseSchema != nil {
			out.ResponseSchema = toSchema(cfg.ResponseSchema)
			if out.ResponseMIMEType == "" {
				out.ResponseMIMEType = "application/json"
			}
		}
		out.ResponseModalities = cfg.ResponseModalities
		if cfg.EnableThinking {
			out.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
			if cfg.ThinkingBudget > 0 {
				out.ThinkingConfig.ThinkingBudget = genai.Ptr(int32(cfg.ThinkingBudget))
			}
		}
		if cfg.GoogleSearch {
			out.Tools = append(out.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		}
	}

	if out.Temperature == nil && m.cfg.Temperature > 0 {
		out.Temperature = genai.Ptr(float32(m.cfg.Temperature))
	}
	if out.MaxOutputTokens == 0 && m.cfg.MaxTokens > 0 {
		out.MaxOutputTokens = int32(m.cfg.MaxTokens)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  toSchema(def.Parameters),
			})
		}
		out.Tools = append(out.Tools, &genai.Tool{FunctionDeclarations: decls})
	}
	return out
}

// toSchema converts a JSON schema map into a genai schema.
func toSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	s.Description, _ = schema["description"].(string)
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	s.Required = stringList(schema["required"])
	s.Enum = stringList(schema["enum"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func parseResponse(resp *genai.GenerateContentResponse) (*model.Response, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return &model.Response{
				TurnComplete: true,
				FinishReason: model.FinishReasonContent,
				ErrorCode:    string(resp.PromptFeedback.BlockReason),
				ErrorMessage: resp.PromptFeedback.BlockReasonMessage,
			}, nil
		}
		return nil, errors.New("empty response from Gemini")
	}

	cand := resp.Candidates[0]
	out := &model.Response{
		TurnComplete: true,
		FinishReason: mapFinishReason(cand.FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = usage(resp.UsageMetadata)
	}
	if cand.Content == nil {
		return out, nil
	}

	var (
		parts    []a2a.Part
		thinking strings.Builder
	)
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			tc := toolCall(part.FunctionCall)
			out.ToolCalls = append(out.ToolCalls, tc)
			parts = append(parts, model.ToolUsePart(tc))
		case part.InlineData != nil:
			parts = append(parts, blobPart(part.InlineData))
		case part.Text != "" && part.Thought:
			thinking.WriteString(part.Text)
		case part.Text != "":
			parts = append(parts, a2a.TextPart{Text: part.Text})
		}
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = model.FinishReasonToolCalls
	}
	if thinking.Len() > 0 {
		out.Thinking = &model.ThinkingBlock{Content: thinking.String()}
	}
	out.Content = &model.Content{Parts: parts, Role: a2a.MessageRoleAgent}
	return out, nil
}

func toolCall(fc *genai.FunctionCall) tool.ToolCall {
	id := fc.ID
	if id == "" {
		id = stableCallID(fc.Name, fc.Args)
	}
	return tool.ToolCall{ID: id, Name: fc.Name, Args: fc.Args}
}

// stableCallID derives an ID from name and arguments, so a call repeated
// across stream chunks keeps one ID.
func stableCallID(name string, args map[string]any) string {
	data, _ := json.Marshal(map[string]any{"name": name, "args": args})
	sum := sha256.Sum256(data)
	return fmt.Sprintf("call-%x", sum[:12])
}

func blobPart(b *genai.Blob) a2a.Part {
	return agent.NewBlobPart(b.DisplayName, b.MIMEType, b.Data)
}

func usage(u *genai.GenerateContentResponseUsageMetadata) *model.Usage {
	return &model.Usage{
		PromptTokens:     int(u.PromptTokenCount),
		CompletionTokens: int(u.CandidatesTokenCount),
		TotalTokens:      int(u.TotalTokenCount),
		ThinkingTokens:   int(u.ThoughtsTokenCount),
	}
}

func mapFinishReason(reason genai.FinishReason) model.FinishReason {
	switch reason {
	case genai.FinishReasonMaxTokens:
		return model.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return model.FinishReasonContent
	case genai.FinishReasonMalformedFunctionCall:
		return model.FinishReasonError
	default:
		return model.FinishReasonStop
	}
}

var _ model.LLM = (*geminiModel)(nil)
