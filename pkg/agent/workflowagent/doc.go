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

// Package workflowagent composes agents without calling a model itself.
//
// # SequentialAgent
//
// Runs sub-agents once, in order. Later children read the output keys of
// earlier ones from session state:
//
//	pipeline, _ := workflowagent.NewSequential(workflowagent.SequentialConfig{
//	    Name:      "cityscape_agent",
//	    SubAgents: []agent.Agent{cityInfo, drawer},
//	})
//
// # ParallelAgent
//
// Runs sub-agents concurrently on separate branches and finishes when all
// of them finish:
//
//	cityInfo, _ := workflowagent.NewParallel(workflowagent.ParallelConfig{
//	    Name:      "city_info",
//	    SubAgents: []agent.Agent{researcher, weather},
//	})
//
// # LoopAgent
//
// Repeats its sub-agents until MaxIterations or an escalate action.
package workflowagent
