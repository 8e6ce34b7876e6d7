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

package workflowagent

import (
	"iter"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// LoopConfig defines the configuration for a LoopAgent.
type LoopConfig struct {
	Name        string
	Description string
	SubAgents   []agent.Agent

	// MaxIterations bounds the loop. Zero means run until a sub-agent
	// escalates.
	MaxIterations uint
}

// NewLoop creates a LoopAgent that runs its sub-agents in order, over and
// over, until MaxIterations is reached or an event carries Escalate.
func NewLoop(cfg LoopConfig) (agent.Agent, error) {
	maxIterations := cfg.MaxIterations

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		SubAgents:   cfg.SubAgents,
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return runLoop(ctx, maxIterations)
		},
	})
}

func runLoop(ctx agent.InvocationContext, maxIterations uint) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		for i := uint(0); maxIterations == 0 || i < maxIterations; i++ {
			for _, sub := range ctx.Agent().SubAgents() {
				escalated := false
				for event, err := range sub.Run(ctx) {
					if !yield(event, err) || err != nil {
						return
					}
					if event != nil && event.Actions.Escalate {
						escalated = true
					}
				}
				if escalated || ctx.Ended() {
					return
				}
				if ctx.Err() != nil {
					yield(nil, ctx.Err())
					return
				}
			}
		}
	}
}
