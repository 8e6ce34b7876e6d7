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

// Package testutils provides fakes shared by the package tests.
package testutils

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// ErrNoMoreResponses is returned by MockModel when its script is exhausted.
var ErrNoMoreResponses = errors.New("mock model: no more responses")

// TestContext returns a context cancelled when the test ends or after five
// seconds, whichever comes first.
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, 5*time.Second)
}

// TestContextWithTimeout returns a context with a custom timeout.
func TestContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// MockModel is a scripted model.LLM. Each call consumes the next response.
type MockModel struct {
	ModelName string

	// GenerateFunc, when set, replaces the script.
	GenerateFunc func(ctx context.Context, req *model.Request) (*model.Response, error)

	mu        sync.Mutex
	responses []*model.Response
	requests  []*model.Request
}

// NewMockModel creates a model answering with responses in order.
func NewMockModel(responses ...*model.Response) *MockModel {
	return &MockModel{ModelName: "mock-model", responses: responses}
}

func (m *MockModel) Name() string { return m.ModelName }
func (m *MockModel) Close() error { return nil }

// GenerateContent records the request and returns the next response. In
// streaming mode every text part is first yielded as a partial response.
func (m *MockModel) GenerateContent(ctx context.Context, req *model.Request, stream bool) iter.Seq2[*model.Response, error] {
	return func(yield func(*model.Response, error) bool) {
		resp, err := m.next(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}

		if stream && resp.Content != nil {
			for _, part := range resp.Content.Parts {
				tp, ok := part.(a2a.TextPart)
				if !ok {
					continue
				}
				partial := &model.Response{
					Content: &model.Content{Parts: []a2a.Part{tp}, Role: a2a.MessageRoleAgent},
					Partial: true,
				}
				if !yield(partial, nil) {
					return
				}
			}
		}
		yield(resp, nil)
	}
}

func (m *MockModel) next(ctx context.Context, req *model.Request) (*model.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil, ErrNoMoreResponses
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []*model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// TextResponse is a final text answer.
func TextResponse(text string) *model.Response {
	return &model.Response{
		Content:      &model.Content{Parts: []a2a.Part{a2a.TextPart{Text: text}}, Role: a2a.MessageRoleAgent},
		TurnComplete: true,
		FinishReason: model.FinishReasonStop,
	}
}

// ToolCallResponse is a response requesting function calls.
func ToolCallResponse(calls ...tool.ToolCall) *model.Response {
	parts := make([]a2a.Part, 0, len(calls))
	for _, tc := range calls {
		parts = append(parts, model.ToolUsePart(tc))
	}
	return &model.Response{
		Content:      &model.Content{Parts: parts, Role: a2a.MessageRoleAgent},
		ToolCalls:    calls,
		FinishReason: model.FinishReasonToolCalls,
	}
}

// NewTextAgent returns an agent that answers with text and writes delta to
// state.
func NewTextAgent(t testing.TB, name, text string, delta map[string]any) agent.Agent {
	t.Helper()
	a, err := agent.New(agent.Config{
		Name:        name,
		Description: name + " test agent",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				ev := agent.NewEvent(ctx.InvocationID())
				ev.Author = name
				ev.Branch = ctx.Branch()
				ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
				for k, v := range delta {
					ev.Actions.StateDelta[k] = v
				}
				yield(ev, nil)
			}
		},
	})
	if err != nil {
		t.Fatalf("create test agent %q: %v", name, err)
	}
	return a
}

// Collect drains an event sequence, failing the test on error.
func Collect(t testing.TB, seq iter.Seq2[*agent.Event, error]) []*agent.Event {
	t.Helper()
	var events []*agent.Event
	for ev, err := range seq {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

// Authors lists the authors of the non-partial events.
func Authors(events []*agent.Event) []string {
	var out []string
	for _, ev := range events {
		if ev != nil && !ev.Partial {
			out = append(out, ev.Author)
		}
	}
	return out
}
