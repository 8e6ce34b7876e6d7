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

package agent

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
)

// Agent is a unit of work in the agent tree.
//
// Run yields events until the agent has nothing more to say for the current
// invocation. Composite agents run their sub-agents from inside Run.
type Agent interface {
	Name() string
	Description() string
	Run(ctx InvocationContext) iter.Seq2[*Event, error]
	SubAgents() []Agent
}

// RunFunc is the body of an agent.
type RunFunc func(ctx InvocationContext) iter.Seq2[*Event, error]

// BeforeAgentCallback runs before the agent body. Returning non-nil content
// skips the body and emits that content as the agent's response.
type BeforeAgentCallback func(ctx CallbackContext) (*Content, error)

// AfterAgentCallback runs after the agent body. Returning non-nil content
// emits it as an additional response.
type AfterAgentCallback func(ctx CallbackContext) (*Content, error)

// Config configures a base agent.
type Config struct {
	Name        string
	Description string
	SubAgents   []Agent
	Run         RunFunc

	BeforeAgentCallbacks []BeforeAgentCallback
	AfterAgentCallbacks  []AfterAgentCallback
}

// ErrNoName is returned when an agent is created without a name.
var ErrNoName = errors.New("agent name is required")

// New creates an agent from a run function.
func New(cfg Config) (Agent, error) {
	if cfg.Name == "" {
		return nil, ErrNoName
	}
	if cfg.Run == nil {
		return nil, fmt.Errorf("agent %q: run function is required", cfg.Name)
	}

	seen := make(map[string]struct{}, len(cfg.SubAgents))
	for _, sub := range cfg.SubAgents {
		if sub == nil {
			return nil, fmt.Errorf("agent %q: nil sub-agent", cfg.Name)
		}
		if _, dup := seen[sub.Name()]; dup {
			return nil, fmt.Errorf("agent %q: duplicate sub-agent %q", cfg.Name, sub.Name())
		}
		seen[sub.Name()] = struct{}{}
	}

	return &baseAgent{cfg: cfg}, nil
}

type baseAgent struct {
	cfg Config
}

func (a *baseAgent) Name() string        { return a.cfg.Name }
func (a *baseAgent) Description() string { return a.cfg.Description }
func (a *baseAgent) SubAgents() []Agent  { return a.cfg.SubAgents }

func (a *baseAgent) Run(parent InvocationContext) iter.Seq2[*Event, error] {
	return func(yield func(*Event, error) bool) {
		ctx := parent.WithAgent(a)

		for _, cb := range a.cfg.BeforeAgentCallbacks {
			cbCtx := newCallbackContext(ctx)
			content, err := cb(cbCtx)
			if err != nil {
				yield(nil, fmt.Errorf("before agent callback of %q: %w", a.cfg.Name, err))
				return
			}
			if content != nil || len(cbCtx.actions.StateDelta) > 0 {
				if !yield(callbackEvent(ctx, content, cbCtx.actions), nil) {
					return
				}
			}
			if content != nil {
				return
			}
		}

		for event, err := range a.cfg.Run(ctx) {
			if err != nil {
				slog.Debug("Agent run failed", "agent", a.cfg.Name, "error", err)
			}
			if !yield(event, err) {
				return
			}
			if err != nil {
				return
			}
		}

		if ctx.Ended() {
			return
		}

		for _, cb := range a.cfg.AfterAgentCallbacks {
			cbCtx := newCallbackContext(ctx)
			content, err := cb(cbCtx)
			if err != nil {
				yield(nil, fmt.Errorf("after agent callback of %q: %w", a.cfg.Name, err))
				return
			}
			if content != nil || len(cbCtx.actions.StateDelta) > 0 {
				if !yield(callbackEvent(ctx, content, cbCtx.actions), nil) {
					return
				}
			}
		}
	}
}

func callbackEvent(ctx InvocationContext, content *Content, actions *EventActions) *Event {
	ev := NewEvent(ctx.InvocationID())
	ev.Author = ctx.AgentName()
	ev.Branch = ctx.Branch()
	ev.Actions = *actions
	if content != nil {
		ev.Message = content.ToMessage()
	}
	return ev
}

// FindAgent returns the agent named name within the tree rooted at root.
func FindAgent(root Agent, name string) Agent {
	if root == nil {
		return nil
	}
	if root.Name() == name {
		return root
	}
	for _, sub := range root.SubAgents() {
		if found := FindAgent(sub, name); found != nil {
			return found
		}
	}
	return nil
}

// ListAgents returns every agent in the tree in depth-first order.
func ListAgents(root Agent) []Agent {
	if root == nil {
		return nil
	}
	out := []Agent{root}
	for _, sub := range root.SubAgents() {
		out = append(out, ListAgents(sub)...)
	}
	return out
}

// JoinBranch appends name to a dot-separated branch path.
func JoinBranch(branch, name string) string {
	if branch == "" {
		return name
	}
	return branch + "." + name
}
