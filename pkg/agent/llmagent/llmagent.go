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

// Package llmagent provides an agent driven by a language model.
//
// LLM agents use the model to generate responses and can invoke tools to
// perform actions. They support:
//   - instructions with session state placeholders ({key}, {key?})
//   - function tools, MCP toolsets and provider built-ins
//   - writing the final answer to state through an output key
//   - callbacks around the agent, the model and every tool call
//
// # Usage
//
//	researcher, err := llmagent.New(llmagent.Config{
//	    Name:        "city_researcher",
//	    Model:       llm,
//	    Instruction: "Find the most iconic landmarks of the city.",
//	    Tools:       []tool.Tool{googlesearch.New()},
//	    OutputKey:   "city_profile",
//	})
package llmagent

import (
	"errors"
	"fmt"
	"iter"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// DefaultMaxIterations bounds the model/tool loop of one agent turn.
const DefaultMaxIterations = 10

// Config contains the configuration for an LLM agent.
type Config struct {
	// Name must be unique within the agent tree.
	Name string

	// Description helps a router decide when to delegate to this agent.
	Description string

	// Model is the LLM to use for generation.
	Model model.LLM

	// Instruction guides the agent's behavior. Placeholders such as
	// {city_profile} or {city_weather?} are filled from session state.
	Instruction string

	// InstructionProvider builds the instruction dynamically. It takes
	// precedence over Instruction and its output is used as is.
	InstructionProvider InstructionProvider

	// GlobalInstruction is prepended to the instruction.
	GlobalInstruction string

	GenerateConfig *model.GenerateConfig

	// Tools are always available to the agent.
	Tools []tool.Tool

	// Toolsets are resolved before every model call.
	Toolsets []tool.Toolset

	SubAgents []agent.Agent

	BeforeAgentCallbacks []agent.BeforeAgentCallback
	AfterAgentCallbacks  []agent.AfterAgentCallback
	BeforeModelCallbacks []BeforeModelCallback
	AfterModelCallbacks  []AfterModelCallback
	BeforeToolCallbacks  []BeforeToolCallback
	AfterToolCallbacks   []AfterToolCallback

	// IncludeContents controls how much session history the model sees.
	IncludeContents IncludeContents

	// OutputKey stores the agent's final answer in session state.
	OutputKey string

	// OutputSchema requests JSON output matching the schema. With an
	// OutputKey the decoded object is stored instead of the raw text.
	OutputSchema map[string]any

	// MaxIterations caps model calls per turn. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// InstructionProvider builds an instruction from the current context.
type InstructionProvider func(ctx agent.ReadonlyContext) (string, error)

// BeforeModelCallback runs before every model call. A non-nil response
// replaces the model call.
type BeforeModelCallback func(ctx agent.CallbackContext, req *model.Request) (*model.Response, error)

// AfterModelCallback runs after every model response. A non-nil response
// replaces the original.
type AfterModelCallback func(ctx agent.CallbackContext, resp *model.Response, respErr error) (*model.Response, error)

// BeforeToolCallback runs before a tool call. A non-nil result skips the
// tool.
type BeforeToolCallback func(ctx tool.Context, t tool.Tool, args map[string]any) (map[string]any, error)

// AfterToolCallback runs after a tool call. A non-nil result replaces the
// tool result.
type AfterToolCallback func(ctx tool.Context, t tool.Tool, args, result map[string]any, callErr error) (map[string]any, error)

// IncludeContents controls history inclusion.
type IncludeContents string

const (
	// IncludeContentsDefault sends the history visible on the agent's branch.
	IncludeContentsDefault IncludeContents = "default"

	// IncludeContentsNone sends only the current turn.
	IncludeContentsNone IncludeContents = "none"
)

// ErrNoModel is returned when an agent is created without a model.
var ErrNoModel = errors.New("model is required")

type llmAgent struct {
	agent.Agent

	model               model.LLM
	instruction         string
	instructionProvider InstructionProvider
	globalInstruction   string
	generateConfig      *model.GenerateConfig
	tools               []tool.Tool
	toolsets            []tool.Toolset

	beforeModelCallbacks []BeforeModelCallback
	afterModelCallbacks  []AfterModelCallback
	beforeToolCallbacks  []BeforeToolCallback
	afterToolCallbacks   []AfterToolCallback

	includeContents IncludeContents
	outputKey       string
	outputSchema    map[string]any
	maxIterations   int
}

// New creates an LLM agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, agent.ErrNoName
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent %q: %w", cfg.Name, ErrNoModel)
	}

	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	a := &llmAgent{
		model:                cfg.Model,
		instruction:          cfg.Instruction,
		instructionProvider:  cfg.InstructionProvider,
		globalInstruction:    cfg.GlobalInstruction,
		generateConfig:       cfg.GenerateConfig,
		tools:                cfg.Tools,
		toolsets:             cfg.Toolsets,
		beforeModelCallbacks: cfg.BeforeModelCallbacks,
		afterModelCallbacks:  cfg.AfterModelCallbacks,
		beforeToolCallbacks:  cfg.BeforeToolCallbacks,
		afterToolCallbacks:   cfg.AfterToolCallbacks,
		includeContents:      cfg.IncludeContents,
		outputKey:            cfg.OutputKey,
		outputSchema:         cfg.OutputSchema,
		maxIterations:        maxIterations,
	}

	base, err := agent.New(agent.Config{
		Name:                 cfg.Name,
		Description:          cfg.Description,
		SubAgents:            cfg.SubAgents,
		BeforeAgentCallbacks: cfg.BeforeAgentCallbacks,
		Run:                  a.run,
		AfterAgentCallbacks:  cfg.AfterAgentCallbacks,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create base agent: %w", err)
	}

	a.Agent = base
	return a, nil
}

func (a *llmAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return newFlow(a).run(ctx)
}

// collectTools returns the direct tools followed by every toolset's tools.
func (a *llmAgent) collectTools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	tools := make([]tool.Tool, 0, len(a.tools))
	seen := make(map[string]bool)
	add := func(t tool.Tool) error {
		if seen[t.Name()] {
			return fmt.Errorf("duplicate tool %q", t.Name())
		}
		seen[t.Name()] = true
		tools = append(tools, t)
		return nil
	}

	for _, t := range a.tools {
		if err := add(t); err != nil {
			return nil, err
		}
	}
	for _, ts := range a.toolsets {
		resolved, err := ts.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("toolset %q: %w", ts.Name(), err)
		}
		for _, t := range resolved {
			if err := add(t); err != nil {
				return nil, fmt.Errorf("toolset %q: %w", ts.Name(), err)
			}
		}
	}
	return tools, nil
}

// OutputKey returns the state key the agent writes its answer to.
func OutputKey(a agent.Agent) string {
	if la, ok := a.(*llmAgent); ok {
		return la.outputKey
	}
	return ""
}

var _ agent.Agent = (*llmAgent)(nil)
