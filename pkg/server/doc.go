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

// Package server hosts the root agent over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /list-apps
//	GET    /apps/{app}/users/{user}/sessions
//	POST   /apps/{app}/users/{user}/sessions
//	POST   /apps/{app}/users/{user}/sessions/{session}
//	GET    /apps/{app}/users/{user}/sessions/{session}
//	DELETE /apps/{app}/users/{user}/sessions/{session}
//	GET    /apps/{app}/users/{user}/sessions/{session}/artifacts
//	GET    /apps/{app}/users/{user}/sessions/{session}/artifacts/{name}
//	POST   /run
//	POST   /run_sse
//	POST   /a2a/{app}                                  (A2A JSON-RPC)
//	GET    /a2a/{app}/.well-known/agent-card.json
//	GET    /dev-ui/
//	GET    /metrics
package server
