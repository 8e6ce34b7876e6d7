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

package observability

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// AgentInstrumentation records model and tool calls of LLM agents. Its
// methods match the llmagent callback signatures:
//
//	inst := observability.NewAgentInstrumentation(tracer, metrics, "gemini-2.5-flash")
//	llmagent.Config{
//	    BeforeModelCallbacks: []llmagent.BeforeModelCallback{inst.BeforeModel},
//	    AfterModelCallbacks:  []llmagent.AfterModelCallback{inst.AfterModel},
//	    BeforeToolCallbacks:  []llmagent.BeforeToolCallback{inst.BeforeTool},
//	    AfterToolCallbacks:   []llmagent.AfterToolCallback{inst.AfterTool},
//	}
type AgentInstrumentation struct {
	tracer    trace.Tracer
	metrics   Metrics
	modelName string

	inflight sync.Map // key -> *call
}

type call struct {
	span  trace.Span
	start time.Time
}

// NewAgentInstrumentation creates the instrumentation.
func NewAgentInstrumentation(tracer trace.Tracer, metrics Metrics, modelName string) *AgentInstrumentation {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &AgentInstrumentation{tracer: tracer, metrics: metrics, modelName: modelName}
}

func modelCallKey(ctx agent.ReadonlyContext) string {
	return ctx.InvocationID() + "/" + ctx.Branch() + "/" + ctx.AgentName()
}

// BeforeModel starts the model span.
func (i *AgentInstrumentation) BeforeModel(ctx agent.CallbackContext, req *model.Request) (*model.Response, error) {
	_, span := i.tracer.Start(ctx, SpanLLMRequest, trace.WithAttributes(
		attribute.String("agent.name", ctx.AgentName()),
		attribute.String("llm.model", i.modelName),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	))
	i.inflight.Store(modelCallKey(ctx), &call{span: span, start: time.Now()})
	return nil, nil
}

// AfterModel ends the model span once the final response or an error
// arrives. Partial responses are ignored.
func (i *AgentInstrumentation) AfterModel(ctx agent.CallbackContext, resp *model.Response, respErr error) (*model.Response, error) {
	if respErr == nil && (resp == nil || resp.Partial) {
		return nil, nil
	}
	v, ok := i.inflight.LoadAndDelete(modelCallKey(ctx))
	if !ok {
		return nil, nil
	}
	c := v.(*call)

	var in, out int
	if resp != nil && resp.Usage != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
		c.span.SetAttributes(
			attribute.Int("llm.tokens.input", in),
			attribute.Int("llm.tokens.output", out),
		)
	}
	if resp != nil && resp.FinishReason != "" {
		c.span.SetAttributes(attribute.String("llm.finish_reason", string(resp.FinishReason)))
	}
	endSpan(c.span, respErr)

	i.metrics.RecordLLMCall(ctx, i.modelName, time.Since(c.start), in, out, respErr)
	return nil, nil
}

// BeforeTool starts the tool span.
func (i *AgentInstrumentation) BeforeTool(ctx tool.Context, t tool.Tool, _ map[string]any) (map[string]any, error) {
	_, span := i.tracer.Start(ctx, SpanToolExecution, trace.WithAttributes(
		attribute.String("agent.name", ctx.AgentName()),
		attribute.String("tool.name", t.Name()),
		attribute.String("tool.call_id", ctx.FunctionCallID()),
	))
	i.inflight.Store(ctx.FunctionCallID(), &call{span: span, start: time.Now()})
	return nil, nil
}

// AfterTool ends the tool span.
func (i *AgentInstrumentation) AfterTool(ctx tool.Context, t tool.Tool, _, _ map[string]any, callErr error) (map[string]any, error) {
	v, ok := i.inflight.LoadAndDelete(ctx.FunctionCallID())
	if !ok {
		return nil, nil
	}
	c := v.(*call)
	endSpan(c.span, callErr)

	i.metrics.RecordToolCall(ctx, t.Name(), time.Since(c.start), callErr)
	return nil, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
