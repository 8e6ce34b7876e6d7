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

package cityscape_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/llmagent"
	"github.com/kadirpekel/cityscape/pkg/agent/routeragent"
	"github.com/kadirpekel/cityscape/pkg/cityscape"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/testutils"
)

func validConfig() *config.Config {
	cfg := &config.Config{
		Google: config.GoogleConfig{Project: "demo-project"},
		Maps:   config.MapsConfig{APIKey: "maps-key"},
	}
	cfg.SetDefaults()
	return cfg
}

func testDeps(llm *testutils.MockModel) cityscape.Deps {
	return cityscape.Deps{
		Model:   llm,
		WorkDir: "/srv/cityscape",
		Now:     func() time.Time { return time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC) },
	}
}

func names(agents []agent.Agent) []string {
	out := make([]string, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Name())
	}
	return out
}

func TestBuildRoot_WithoutCityTrip(t *testing.T) {
	root, err := cityscape.BuildRoot(context.Background(), validConfig(), testDeps(testutils.NewMockModel()))
	require.NoError(t, err)

	assert.Equal(t, "city_guide", root.Name())
	require.Len(t, root.SubAgents(), 1)
	assert.Equal(t, []string{"cityscape_agent"}, names(root.SubAgents()))

	pipeline := root.SubAgents()[0]
	assert.Equal(t, "Creates AI-generated pictures of cities based on the current weather and their unique properties.", pipeline.Description())
	assert.Equal(t, []string{"city_info", "city_drawer"}, names(pipeline.SubAgents()))

	info := agent.FindAgent(root, "city_info")
	require.NotNil(t, info)
	assert.Equal(t, []string{"city_researcher", "city_current_weather"}, names(info.SubAgents()))

	assert.Equal(t, "city_profile", llmagent.OutputKey(agent.FindAgent(root, "city_researcher")))
	assert.Equal(t, "city_weather", llmagent.OutputKey(agent.FindAgent(root, "city_current_weather")))
	assert.Empty(t, llmagent.OutputKey(agent.FindAgent(root, "city_drawer")))
}

func TestBuildRoot_WithCityTrip(t *testing.T) {
	cfg := validConfig()
	cfg.CityTrip.URL = "https://trip.example.run.app"

	root, err := cityscape.BuildRoot(context.Background(), cfg, testDeps(testutils.NewMockModel()))
	require.NoError(t, err)

	assert.Equal(t, []string{"cityscape_agent", "city_trip_agent"}, names(root.SubAgents()))
	assert.Equal(t, []routeragent.Target{
		{Name: "cityscape_agent", Description: root.SubAgents()[0].Description()},
		{Name: "city_trip_agent", Description: "Plans trips and itineraries for cities."},
	}, routeragent.Targets(root))
}

func TestBuildRoot_MissingCredentials(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		missing string
	}{
		{"maps key", func(c *config.Config) { c.Maps.APIKey = "" }, "MAPS_API_KEY"},
		{"project", func(c *config.Config) { c.Google.Project = "" }, "GOOGLE_CLOUD_PROJECT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			_, err := cityscape.BuildRoot(context.Background(), cfg, testDeps(testutils.NewMockModel()))
			require.ErrorIs(t, err, config.ErrMissingEnv)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestBuildRoot_InvalidCityTripURL(t *testing.T) {
	cfg := validConfig()
	cfg.CityTrip.URL = "trip-agent"

	_, err := cityscape.BuildRoot(context.Background(), cfg, testDeps(testutils.NewMockModel()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A2A_CITY_TRIP_URL")
}

func TestToolsets_RequireCredentials(t *testing.T) {
	_, err := cityscape.NewMapsToolset(&config.Config{})
	assert.ErrorIs(t, err, config.ErrMissingEnv)

	_, err = cityscape.NewNanoBananaToolset(&config.Config{})
	assert.ErrorIs(t, err, config.ErrMissingEnv)

	maps, err := cityscape.NewMapsToolset(validConfig())
	require.NoError(t, err)
	assert.Equal(t, "maps", maps.Name())
	assert.Zero(t, maps.Timeout(), "only image generation is time bounded")

	banana, err := cityscape.NewNanoBananaToolset(validConfig())
	require.NoError(t, err)
	assert.Equal(t, "nano_banana", banana.Name())
	assert.Equal(t, cityscape.NanoBananaTimeout, banana.Timeout())
}

func TestRoot_AnswersDirectly(t *testing.T) {
	llm := testutils.NewMockModel(testutils.TextResponse("Zurich sits on Lake Zurich."))
	deps := testDeps(llm)
	deps.Decider = routeragent.DeciderFunc(func(agent.InvocationContext, []routeragent.Target) (string, error) {
		return routeragent.TargetSelf, nil
	})

	root, err := cityscape.BuildRoot(context.Background(), validConfig(), deps)
	require.NoError(t, err)

	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: root, SessionService: session.InMemoryService()})
	require.NoError(t, err)

	content := agent.NewTextContent("Where is Zurich?", a2a.MessageRoleUser)
	events := testutils.Collect(t, r.Run(testutils.TestContext(t), "u1", "s1", content, agent.RunConfig{}))
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "city_guide", last.Author)
	assert.Equal(t, "Zurich sits on Lake Zurich.", last.TextContent())
	require.Len(t, llm.Requests(), 1)
}

func TestRoot_DelegatesToCityTrip(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		auth  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cfg := validConfig()
	cfg.CityTrip.URL = srv.URL + "/trip"

	var audience string
	deps := testDeps(testutils.NewMockModel())
	deps.TokenFetcher = func(_ context.Context, aud string) (string, error) {
		audience = aud
		return "id-token", nil
	}
	deps.Decider = routeragent.DeciderFunc(func(agent.InvocationContext, []routeragent.Target) (string, error) {
		return "city_trip_agent", nil
	})

	root, err := cityscape.BuildRoot(context.Background(), cfg, deps)
	require.NoError(t, err)

	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: root, SessionService: session.InMemoryService()})
	require.NoError(t, err)

	var runErr error
	content := agent.NewTextContent("Plan a weekend in Rome", a2a.MessageRoleUser)
	for _, err := range r.Run(testutils.TestContext(t), "u1", "s1", content, agent.RunConfig{}) {
		if err != nil {
			runErr = err
		}
	}
	require.Error(t, runErr)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.Equal(t, "/trip/.well-known/agent-card.json", paths[0])
	assert.Equal(t, "Bearer id-token", auth[0])
	assert.Equal(t, srv.URL, audience)
}
