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

// Package agent defines the agent interface, invocation context, and events.
//
// Agents form a tree. Leaf agents talk to a model (see llmagent), composite
// agents schedule their children (see workflowagent), and proxy agents
// forward to another deployment (see remoteagent).
//
// Every agent yields events through an iterator:
//
//	for event, err := range root.Run(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    // persist or stream event
//	}
//
// State flows between agents through EventActions.StateDelta. The runner
// persists each non-partial event before the producing agent resumes, so a
// later agent in a sequence reads what an earlier one wrote.
package agent
