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

// Package remoteagent provides remote A2A agent support.
//
// A remote agent is a proxy for an agent hosted in a different deployment.
// The agent card is discovered at the well-known path below the base URL
// the first time the agent runs, and the conversation is forwarded over
// A2A JSON-RPC.
//
// # Basic Usage
//
//	trip, _ := remoteagent.NewA2A(remoteagent.Config{
//	    Name:        "city_trip_agent",
//	    Description: "Plans trips to cities.",
//	    URL:         "https://city-trip-xyz.a.run.app",
//	})
//
// # Identity tokens
//
// Deployments behind identity-aware ingress need a bearer identity token
// whose audience is the service origin. NewIDTokenClient returns a client
// that fetches a fresh token for every request:
//
//	client, _ := remoteagent.NewIDTokenClient(ctx, remoteagent.Origin(url), nil)
//	trip, _ := remoteagent.NewA2A(remoteagent.Config{
//	    Name:       "city_trip_agent",
//	    URL:        url,
//	    HTTPClient: client,
//	})
package remoteagent
