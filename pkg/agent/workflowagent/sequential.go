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
	"fmt"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// SequentialConfig defines the configuration for a SequentialAgent.
type SequentialConfig struct {
	Name        string
	Description string
	SubAgents   []agent.Agent
}

// NewSequential creates a SequentialAgent: a loop with a single iteration.
// Each child runs after the previous one finished and sees the state it
// wrote through its output key.
func NewSequential(cfg SequentialConfig) (agent.Agent, error) {
	if len(cfg.SubAgents) == 0 {
		return nil, fmt.Errorf("sequential agent %q: at least one sub-agent is required", cfg.Name)
	}
	return NewLoop(LoopConfig{
		Name:          cfg.Name,
		Description:   cfg.Description,
		SubAgents:     cfg.SubAgents,
		MaxIterations: 1,
	})
}
