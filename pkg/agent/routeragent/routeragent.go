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

// Package routeragent provides an agent that delegates each incoming
// message to one of its sub-agents, or answers it itself.
//
// The choice is made by a Decider. Routing is never decided in code: the
// decider is typically a model reading the router instruction.
//
//	router, _ := routeragent.New(routeragent.Config{
//	    Name:      "city_guide",
//	    Decider:   routeragent.NewModelDecider(llm, instruction),
//	    Responder: responder,
//	    SubAgents: []agent.Agent{pipeline},
//	})
package routeragent

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// TargetSelf is the reserved target meaning "answer directly".
const TargetSelf = "self"

// Target is a delegation target offered to the decider.
type Target struct {
	Name        string
	Description string
}

// Decider picks the target for the current message. It returns a target
// name or TargetSelf.
type Decider interface {
	Decide(ctx agent.InvocationContext, targets []Target) (string, error)
}

// DeciderFunc adapts a function to the Decider interface.
type DeciderFunc func(ctx agent.InvocationContext, targets []Target) (string, error)

// Decide calls f.
func (f DeciderFunc) Decide(ctx agent.InvocationContext, targets []Target) (string, error) {
	return f(ctx, targets)
}

// Config configures a router agent.
type Config struct {
	Name        string
	Description string

	Decider Decider

	// Responder answers when the decider picks TargetSelf. It is not part
	// of the delegation targets.
	Responder agent.Agent

	SubAgents []agent.Agent

	BeforeAgentCallbacks []agent.BeforeAgentCallback
	AfterAgentCallbacks  []agent.AfterAgentCallback
}

// ErrNoDecider is returned when a router is created without a decider.
var ErrNoDecider = errors.New("router agent requires a decider")

// New creates a router agent.
func New(cfg Config) (agent.Agent, error) {
	if cfg.Decider == nil {
		return nil, ErrNoDecider
	}
	if cfg.Responder == nil {
		return nil, fmt.Errorf("router agent %q: responder is required", cfg.Name)
	}
	for _, sub := range cfg.SubAgents {
		if sub != nil && sub.Name() == TargetSelf {
			return nil, fmt.Errorf("router agent %q: sub-agent name %q is reserved", cfg.Name, TargetSelf)
		}
	}

	r := &router{decider: cfg.Decider, responder: cfg.Responder}
	a, err := agent.New(agent.Config{
		Name:                 cfg.Name,
		Description:          cfg.Description,
		SubAgents:            cfg.SubAgents,
		Run:                  r.run,
		BeforeAgentCallbacks: cfg.BeforeAgentCallbacks,
		AfterAgentCallbacks:  cfg.AfterAgentCallbacks,
	})
	if err != nil {
		return nil, err
	}
	r.self = a
	return a, nil
}

// Targets lists the delegation targets of a router, in sub-agent order.
func Targets(a agent.Agent) []Target {
	subs := a.SubAgents()
	out := make([]Target, 0, len(subs))
	for _, sub := range subs {
		out = append(out, Target{Name: sub.Name(), Description: sub.Description()})
	}
	return out
}

type router struct {
	self      agent.Agent
	decider   Decider
	responder agent.Agent
}

func (r *router) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		target, err := r.decider.Decide(ctx, Targets(r.self))
		if err != nil {
			yield(nil, fmt.Errorf("router %q: decide: %w", r.self.Name(), err))
			return
		}

		next := r.responder
		if target != "" && target != TargetSelf {
			next = r.subAgent(target)
			if next == nil {
				yield(nil, fmt.Errorf("router %q: unknown target %q", r.self.Name(), target))
				return
			}

			ev := agent.NewEvent(ctx.InvocationID())
			ev.Author = r.self.Name()
			ev.Branch = ctx.Branch()
			ev.Actions.TransferToAgent = target
			if !yield(ev, nil) {
				return
			}
		}

		slog.Debug("Routing message", "router", r.self.Name(), "target", next.Name())
		for ev, err := range next.Run(ctx) {
			if !yield(ev, err) || err != nil {
				return
			}
		}
	}
}

func (r *router) subAgent(name string) agent.Agent {
	for _, sub := range r.self.SubAgents() {
		if sub.Name() == name {
			return sub
		}
	}
	return nil
}
