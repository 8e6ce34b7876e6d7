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

// Package cityscape assembles the city guide agent graph.
//
//	city_guide (router)
//	├── cityscape_agent (sequential)
//	│   ├── city_info (parallel)
//	│   │   ├── city_researcher       -> state["city_profile"]
//	│   │   └── city_current_weather  -> state["city_weather"]
//	│   └── city_drawer
//	└── city_trip_agent (remote A2A, only when A2A_CITY_TRIP_URL is set)
package cityscape

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/llmagent"
	"github.com/kadirpekel/cityscape/pkg/agent/remoteagent"
	"github.com/kadirpekel/cityscape/pkg/agent/routeragent"
	"github.com/kadirpekel/cityscape/pkg/agent/workflowagent"
	"github.com/kadirpekel/cityscape/pkg/config"
	"github.com/kadirpekel/cityscape/pkg/instruction"
	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/model/gemini"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/tool"
	"github.com/kadirpekel/cityscape/pkg/tool/googlesearch"
)

// Models and tool endpoints.
const (
	DefaultModel      = config.DefaultModel
	NanoBananaModel   = config.DefaultImageModel
	MapsMCPURL        = config.DefaultMapsMCPURL
	NanoBananaCommand = "mcp-gemini-go"
	NanoBananaTimeout = 60 * time.Second
)

// Agent names and state keys.
const (
	RootAgentName     = "city_guide"
	PipelineAgentName = "cityscape_agent"
	InfoAgentName     = "city_info"
	ResearcherName    = "city_researcher"
	WeatherAgentName  = "city_current_weather"
	DrawerAgentName   = "city_drawer"
	CityTripAgentName = "city_trip_agent"

	CityProfileKey = "city_profile"
	CityWeatherKey = "city_weather"
)

// Deps are optional collaborators. Zero values are built from the config.
type Deps struct {
	// Model drives every agent. Default: Gemini with cfg.Google.Model.
	Model model.LLM

	// Decider overrides the model-backed routing decision.
	Decider routeragent.Decider

	// TokenFetcher signs requests to the city trip agent. Default: Google
	// identity tokens from application default credentials.
	TokenFetcher remoteagent.TokenFetcher

	// WorkDir is where generated images go. Default: the working directory.
	WorkDir string

	// Now is the clock used in the drawer prompt. Default: time.Now.
	Now func() time.Time

	// Tracer and Metrics record model and tool calls of every leaf agent.
	// Default: noop.
	Tracer  trace.Tracer
	Metrics observability.Metrics
}

// newLeafAgent builds an LLM agent with the model and instrumentation of
// deps.
func newLeafAgent(deps Deps, cfg llmagent.Config) (agent.Agent, error) {
	cfg.Model = deps.Model
	inst := observability.NewAgentInstrumentation(deps.Tracer, deps.Metrics, deps.Model.Name())
	cfg.BeforeModelCallbacks = append(cfg.BeforeModelCallbacks, inst.BeforeModel)
	cfg.AfterModelCallbacks = append(cfg.AfterModelCallbacks, inst.AfterModel)
	cfg.BeforeToolCallbacks = append(cfg.BeforeToolCallbacks, inst.BeforeTool)
	cfg.AfterToolCallbacks = append(cfg.AfterToolCallbacks, inst.AfterTool)
	return llmagent.New(cfg)
}

// BuildRoot validates cfg and builds the root router.
func BuildRoot(ctx context.Context, cfg *config.Config, deps Deps) (agent.Agent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if deps.Model == nil {
		llm, err := gemini.New(ctx, gemini.Config{
			Model:    cfg.Google.Model,
			APIKey:   cfg.Google.APIKey,
			Project:  cfg.Google.Project,
			Location: cfg.Google.Location,
		})
		if err != nil {
			return nil, err
		}
		deps.Model = llm
	}
	if deps.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		deps.WorkDir = wd
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("cityscape/agents")
	}

	pipeline, err := buildPipeline(cfg, deps)
	if err != nil {
		return nil, err
	}
	subAgents := []agent.Agent{pipeline}

	if cfg.CityTrip.Enabled() {
		trip, err := NewCityTripAgent(ctx, cfg.CityTrip.URL, deps.TokenFetcher)
		if err != nil {
			return nil, err
		}
		subAgents = append(subAgents, trip)
	}

	responder, err := newLeafAgent(deps, llmagent.Config{
		Name:        RootAgentName,
		Description: "Answers questions about cities directly.",
		Instruction: responderPrompt(cfg.CityTrip.Enabled()),
	})
	if err != nil {
		return nil, err
	}

	decider := deps.Decider
	if decider == nil {
		decider = routeragent.NewModelDecider(deps.Model, routerInstruction)
	}

	root, err := routeragent.New(routeragent.Config{
		Name:        RootAgentName,
		Description: "A city guide that draws cityscapes and plans city trips.",
		Decider:     decider,
		Responder:   responder,
		SubAgents:   subAgents,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Agent graph ready", "root", root.Name(), "sub_agents", len(subAgents), "model", deps.Model.Name())
	return root, nil
}

// buildPipeline builds cityscape_agent: research and weather in parallel,
// then drawing.
func buildPipeline(cfg *config.Config, deps Deps) (agent.Agent, error) {
	researcher, err := newLeafAgent(deps, llmagent.Config{
		Name:        ResearcherName,
		Description: "Find most iconic city attributes.",
		Instruction: researcherInstruction,
		Tools:       []tool.Tool{googlesearch.New()},
		OutputKey:   CityProfileKey,
	})
	if err != nil {
		return nil, err
	}

	maps, err := NewMapsToolset(cfg)
	if err != nil {
		return nil, err
	}
	weather, err := newLeafAgent(deps, llmagent.Config{
		Name:        WeatherAgentName,
		Description: "Looks up the current weather to be used in the city image.",
		Instruction: weatherInstruction,
		Toolsets:    []tool.Toolset{maps},
		OutputKey:   CityWeatherKey,
	})
	if err != nil {
		return nil, err
	}

	info, err := workflowagent.NewParallel(workflowagent.ParallelConfig{
		Name:      InfoAgentName,
		SubAgents: []agent.Agent{researcher, weather},
	})
	if err != nil {
		return nil, err
	}

	nanoBanana, err := NewNanoBananaToolset(cfg)
	if err != nil {
		return nil, err
	}
	display, err := NewDisplayImageTool()
	if err != nil {
		return nil, err
	}
	imageModel, workDir, now := cfg.Google.ImageModel, deps.WorkDir, deps.Now
	drawer, err := newLeafAgent(deps, llmagent.Config{
		Name:        DrawerAgentName,
		Description: "Draws the cityscape picture.",
		InstructionProvider: func(ctx agent.ReadonlyContext) (string, error) {
			return instruction.InjectState(ctx, drawerInstruction(now(), imageModel, workDir))
		},
		Tools:    []tool.Tool{display},
		Toolsets: []tool.Toolset{nanoBanana},
	})
	if err != nil {
		return nil, err
	}

	return workflowagent.NewSequential(workflowagent.SequentialConfig{
		Name:        PipelineAgentName,
		Description: "Creates AI-generated pictures of cities based on the current weather and their unique properties.",
		SubAgents:   []agent.Agent{info, drawer},
	})
}
