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

package cityscape

import (
	"context"
	"fmt"
	"os"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/remoteagent"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/tool/mcptoolset"
)

// MapsAPIKeyHeader carries the Maps API key on every MCP request.
const MapsAPIKeyHeader = "X-Goog-Api-Key"

// NewMapsToolset connects the weather agent to the Maps MCP server over
// streamable HTTP.
func NewMapsToolset(cfg *config.Config) (*mcptoolset.Toolset, error) {
	if cfg.Maps.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingEnv, config.EnvMapsAPIKey)
	}
	url := cfg.Maps.URL
	if url == "" {
		url = MapsMCPURL
	}
	return mcptoolset.New(mcptoolset.Config{
		Name:    "maps",
		URL:     url,
		Headers: map[string]string{MapsAPIKeyHeader: cfg.Maps.APIKey},
	})
}

// NewNanoBananaToolset spawns the image generation MCP server. The child
// inherits the process environment plus PROJECT_ID.
func NewNanoBananaToolset(cfg *config.Config) (*mcptoolset.Toolset, error) {
	if cfg.Google.Project == "" {
		return nil, fmt.Errorf("%w: %s", config.ErrMissingEnv, config.EnvGoogleCloudProject)
	}
	return mcptoolset.New(mcptoolset.Config{
		Name:    "nano_banana",
		Command: NanoBananaCommand,
		Env:     append(os.Environ(), "PROJECT_ID="+cfg.Google.Project),
		Timeout: NanoBananaTimeout,
	})
}

// NewCityTripAgent references the remote trip planner. Every request
// carries an identity token for the origin of baseURL.
func NewCityTripAgent(ctx context.Context, baseURL string, fetch remoteagent.TokenFetcher) (agent.Agent, error) {
	audience, err := remoteagent.Origin(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.EnvCityTripURL, err)
	}
	client, err := remoteagent.NewIDTokenClient(ctx, audience, fetch)
	if err != nil {
		return nil, err
	}
	return remoteagent.NewA2A(remoteagent.Config{
		Name:        CityTripAgentName,
		Description: "Plans trips and itineraries for cities.",
		URL:         baseURL,
		HTTPClient:  client,
	})
}
