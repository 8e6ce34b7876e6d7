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

// Package tool defines the capabilities an LLM agent can invoke.
//
//	Tool (base)
//	  ├── CallableTool      - declared to the model, executed locally
//	  └── RequestProcessor  - edits the model request instead (built-ins
//	                          such as Google Search run on the provider side)
//
// Tools are either listed directly on an agent or resolved lazily from a
// Toolset, e.g. an MCP server:
//
//	weather := functiontool.New(functiontool.Config{...}, fn)
//	maps := mcptoolset.New(mcptoolset.Config{URL: mapsURL, ...})
package tool

import (
	"context"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// Tool is the base interface of every tool.
type Tool interface {
	// Name must be unique among the tools of one agent.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	IsLongRunning() bool
}

// CallableTool is a tool the model calls through a function declaration.
type CallableTool interface {
	Tool

	// Call runs the tool. The returned map becomes the function response.
	Call(ctx Context, args map[string]any) (map[string]any, error)

	// Schema returns the JSON schema of the arguments, or nil.
	Schema() map[string]any
}

// Context is handed to a tool while it runs.
type Context interface {
	agent.CallbackContext

	// FunctionCallID is the ID of the call being answered.
	FunctionCallID() string

	// Actions exposes the actions of the function response event, so a tool
	// can write state, record artifacts or request escalation.
	Actions() *agent.EventActions

	SearchMemory(ctx context.Context, query string) ([]agent.MemoryResult, error)
}

// Toolset resolves a group of tools on demand.
type Toolset interface {
	Name() string
	Tools(ctx agent.ReadonlyContext) ([]Tool, error)
}

// Predicate decides whether a tool is exposed to the model.
type Predicate func(ctx agent.ReadonlyContext, t Tool) bool

// StringPredicate allows only the named tools.
func StringPredicate(allowed []string) Predicate {
	set := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		set[name] = true
	}
	return func(_ agent.ReadonlyContext, t Tool) bool {
		return set[t.Name()]
	}
}

// Definition is a function declaration sent to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition builds the declaration of a callable tool.
func ToDefinition(t CallableTool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// RequestProcessor is implemented by tools that alter the model request
// rather than being called.
type RequestProcessor interface {
	ProcessRequest(ctx Context, req *Request) error
}

// Request is the part of the model request a tool may edit.
type Request struct {
	// SystemInstruction may be extended by the tool.
	SystemInstruction string

	// Config is the model's *GenerateConfig.
	Config any
}

// NewContext creates the tool context for one function call. State writes
// are recorded in actions.
func NewContext(ctx agent.InvocationContext, functionCallID string, actions *agent.EventActions) Context {
	if actions == nil {
		actions = &agent.EventActions{}
	}
	if actions.StateDelta == nil {
		actions.StateDelta = make(map[string]any)
	}
	if actions.ArtifactDelta == nil {
		actions.ArtifactDelta = make(map[string]int64)
	}
	return &toolContext{
		CallbackContext: agent.NewCallbackContext(ctx, actions),
		invocation:      ctx,
		callID:          functionCallID,
		actions:         actions,
	}
}

type toolContext struct {
	agent.CallbackContext
	invocation agent.InvocationContext
	callID     string
	actions    *agent.EventActions
}

func (c *toolContext) FunctionCallID() string       { return c.callID }
func (c *toolContext) Actions() *agent.EventActions { return c.actions }

func (c *toolContext) SearchMemory(ctx context.Context, query string) ([]agent.MemoryResult, error) {
	mem := c.invocation.Memory()
	if mem == nil {
		return nil, nil
	}
	return mem.Search(ctx, query)
}

var _ Context = (*toolContext)(nil)
