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

package routeragent_test

import (
	"errors"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/agent/routeragent"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/testutils"
)

func newRouter(t *testing.T, decider routeragent.Decider) agent.Agent {
	t.Helper()
	router, err := routeragent.New(routeragent.Config{
		Name:        "city_guide",
		Description: "Routes city requests.",
		Decider:     decider,
		Responder:   testutils.NewTextAgent(t, "city_guide_responder", "Hello traveller!", nil),
		SubAgents: []agent.Agent{
			testutils.NewTextAgent(t, "cityscape_agent", "Here is your picture.", nil),
			testutils.NewTextAgent(t, "city_trip_agent", "Here is your trip.", nil),
		},
	})
	require.NoError(t, err)
	return router
}

func run(t *testing.T, root agent.Agent, text string) ([]*agent.Event, error) {
	t.Helper()
	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: root, SessionService: session.InMemoryService()})
	require.NoError(t, err)

	var events []*agent.Event
	content := agent.NewTextContent(text, a2a.MessageRoleUser)
	for ev, err := range r.Run(testutils.TestContext(t), "user-1", "s1", content, agent.RunConfig{}) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func fixed(target string) routeragent.Decider {
	return routeragent.DeciderFunc(func(agent.InvocationContext, []routeragent.Target) (string, error) {
		return target, nil
	})
}

func TestNew_Validation(t *testing.T) {
	responder := testutils.NewTextAgent(t, "responder", "hi", nil)

	_, err := routeragent.New(routeragent.Config{Name: "city_guide", Responder: responder})
	assert.ErrorIs(t, err, routeragent.ErrNoDecider)

	_, err = routeragent.New(routeragent.Config{Name: "city_guide", Decider: fixed("self")})
	assert.Error(t, err)

	_, err = routeragent.New(routeragent.Config{
		Name:      "city_guide",
		Decider:   fixed("self"),
		Responder: responder,
		SubAgents: []agent.Agent{testutils.NewTextAgent(t, "self", "x", nil)},
	})
	assert.Error(t, err)
}

func TestTargets(t *testing.T) {
	router := newRouter(t, fixed("self"))
	targets := routeragent.Targets(router)
	require.Len(t, targets, 2)
	assert.Equal(t, "cityscape_agent", targets[0].Name)
	assert.Equal(t, "cityscape_agent test agent", targets[0].Description)
	assert.Equal(t, "city_trip_agent", targets[1].Name)
}

func TestRun_DelegatesToSubAgent(t *testing.T) {
	var offered []routeragent.Target
	decider := routeragent.DeciderFunc(func(_ agent.InvocationContext, targets []routeragent.Target) (string, error) {
		offered = targets
		return "cityscape_agent", nil
	})

	events, err := run(t, newRouter(t, decider), "Draw Paris")
	require.NoError(t, err)

	assert.Len(t, offered, 2)
	assert.Equal(t, []string{"city_guide", "cityscape_agent"}, testutils.Authors(events))
	assert.Equal(t, "cityscape_agent", events[0].Actions.TransferToAgent)
	assert.Equal(t, "Here is your picture.", events[1].TextContent())
}

func TestRun_SelfUsesResponder(t *testing.T) {
	events, err := run(t, newRouter(t, fixed(routeragent.TargetSelf)), "Hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"city_guide_responder"}, testutils.Authors(events))
	assert.Equal(t, "Hello traveller!", events[0].TextContent())
}

func TestRun_UnknownTarget(t *testing.T) {
	_, err := run(t, newRouter(t, fixed("nowhere")), "Hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown target "nowhere"`)
}

func TestRun_DeciderErrorPropagates(t *testing.T) {
	boom := errors.New("model unavailable")
	decider := routeragent.DeciderFunc(func(agent.InvocationContext, []routeragent.Target) (string, error) {
		return "", boom
	})
	_, err := run(t, newRouter(t, decider), "Hi")
	assert.ErrorIs(t, err, boom)
}

func TestModelDecider_RoutesFromModelAnswer(t *testing.T) {
	llm := testutils.NewMockModel(testutils.TextResponse(`{"target": "cityscape_agent", "reason": "wants a picture"}`))
	router := newRouter(t, routeragent.NewModelDecider(llm, "You are a city guide."))

	events, err := run(t, router, "Draw Paris")
	require.NoError(t, err)
	assert.Equal(t, []string{"city_guide", "cityscape_agent"}, testutils.Authors(events))

	reqs := llm.Requests()
	require.Len(t, reqs, 1)
	req := reqs[0]
	assert.Contains(t, req.SystemInstruction, "You are a city guide.")
	assert.Contains(t, req.SystemInstruction, "- cityscape_agent: cityscape_agent test agent")
	assert.Contains(t, req.SystemInstruction, "- self:")
	assert.Equal(t, "application/json", req.Config.ResponseMIMEType)

	props := req.Config.ResponseSchema["properties"].(map[string]any)
	enum := props["target"].(map[string]any)["enum"]
	assert.Equal(t, []any{"cityscape_agent", "city_trip_agent", "self"}, enum)

	require.Len(t, req.Messages, 1)
	assert.Equal(t, a2a.MessageRoleUser, req.Messages[0].Role)
	assert.Equal(t, "Draw Paris", req.Messages[0].Parts[0].(a2a.TextPart).Text)
}

func TestModelDecider_Answers(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		want    string
		wantErr bool
	}{
		{name: "self", answer: `{"target":"self"}`, want: "self"},
		{name: "fenced json", answer: "```json\n{\"target\":\"city_trip_agent\"}\n```", want: "city_trip_agent"},
		{name: "unknown target", answer: `{"target":"weather_agent"}`, wantErr: true},
		{name: "not json", answer: "I think the trip agent", wantErr: true},
	}
	targets := []routeragent.Target{{Name: "cityscape_agent"}, {Name: "city_trip_agent"}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := routeragent.NewModelDecider(testutils.NewMockModel(testutils.TextResponse(tt.answer)), "Route.")
			ctx := agent.NewInvocationContext(testutils.TestContext(t), agent.InvocationContextParams{
				UserContent: agent.NewTextContent("plan a trip", a2a.MessageRoleUser),
			})
			got, err := d.Decide(ctx, targets)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestModelDecider_ModelError(t *testing.T) {
	d := routeragent.NewModelDecider(testutils.NewMockModel(), "Route.")
	ctx := agent.NewInvocationContext(testutils.TestContext(t), agent.InvocationContextParams{})
	_, err := d.Decide(ctx, nil)
	assert.ErrorIs(t, err, testutils.ErrNoMoreResponses)
}
