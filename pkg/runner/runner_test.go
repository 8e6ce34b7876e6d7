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

package runner_test

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/testutils"
)

type runRecorder struct {
	observability.NoopMetrics
	agents []string
	errs   []error
}

func (r *runRecorder) RecordAgentRun(_ context.Context, name string, _ time.Duration, err error) {
	r.agents = append(r.agents, name)
	r.errs = append(r.errs, err)
}

func getSession(t *testing.T, svc session.Service, id string) session.Session {
	t.Helper()
	resp, err := svc.Get(context.Background(), &session.GetRequest{AppName: "cityscape", UserID: "user-1", SessionID: id})
	require.NoError(t, err)
	return resp.Session
}

func TestNew_Validation(t *testing.T) {
	_, err := runner.New(runner.Config{SessionService: session.InMemoryService()})
	assert.Error(t, err)

	_, err = runner.New(runner.Config{Agent: testutils.NewTextAgent(t, "a", "", nil)})
	assert.Error(t, err)

	dup, err := agent.New(agent.Config{
		Name: "city_guide",
		Run: func(agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(func(*agent.Event, error) bool) {}
		},
		SubAgents: []agent.Agent{
			testutils.NewTextAgent(t, "city_guide", "", nil),
		},
	})
	require.NoError(t, err)
	_, err = runner.New(runner.Config{Agent: dup, SessionService: session.InMemoryService()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate agent name")
}

func TestRun_CreatesSessionAndPersistsEvents(t *testing.T) {
	sessions := session.InMemoryService()
	metrics := &runRecorder{}
	root := testutils.NewTextAgent(t, "city_guide", "Hi there", map[string]any{"greeted": true, "temp:scratch": 1})

	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: root, SessionService: sessions, Metrics: metrics})
	require.NoError(t, err)
	assert.Equal(t, "cityscape", r.AppName())
	assert.Same(t, root, r.RootAgent())
	assert.Same(t, root, r.FindAgent("city_guide"))

	content := agent.NewTextContent("Hello", a2a.MessageRoleUser)
	events := testutils.Collect(t, r.Run(testutils.TestContext(t), "user-1", "s1", content, agent.RunConfig{}))
	require.Len(t, events, 1)

	sess := getSession(t, sessions, "s1")
	require.Equal(t, 2, sess.Events().Len())
	assert.Equal(t, agent.AuthorUser, sess.Events().At(0).Author)
	assert.Equal(t, "Hello", sess.Events().At(0).TextContent())
	assert.Equal(t, "city_guide", sess.Events().At(1).Author)
	assert.Equal(t, sess.Events().At(0).InvocationID, sess.Events().At(1).InvocationID)

	greeted, err := sess.State().Get("greeted")
	require.NoError(t, err)
	assert.Equal(t, true, greeted)
	_, err = sess.State().Get("temp:scratch")
	assert.ErrorIs(t, err, session.ErrStateKeyNotExist)

	assert.Equal(t, []string{"city_guide"}, metrics.agents)
	assert.Equal(t, []error{nil}, metrics.errs)
}

func TestRun_ReusesExistingSession(t *testing.T) {
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: testutils.NewTextAgent(t, "city_guide", "ok", nil), SessionService: sessions})
	require.NoError(t, err)

	for _, text := range []string{"first", "second"} {
		testutils.Collect(t, r.Run(testutils.TestContext(t), "user-1", "s1", agent.NewTextContent(text, a2a.MessageRoleUser), agent.RunConfig{}))
	}
	assert.Equal(t, 4, getSession(t, sessions, "s1").Events().Len())
}

func TestRun_GeneratesSessionID(t *testing.T) {
	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: testutils.NewTextAgent(t, "city_guide", "ok", nil), SessionService: sessions})
	require.NoError(t, err)

	testutils.Collect(t, r.Run(testutils.TestContext(t), "user-1", "", agent.NewTextContent("hi", a2a.MessageRoleUser), agent.RunConfig{}))

	resp, err := sessions.List(context.Background(), &session.ListRequest{AppName: "cityscape", UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, resp.Sessions, 1)
	assert.NotEmpty(t, resp.Sessions[0].ID())
}

func TestRun_PartialEventsAreNotPersisted(t *testing.T) {
	streamer, err := agent.New(agent.Config{
		Name: "city_guide",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				for i, text := range []string{"Hel", "Hello"} {
					ev := agent.NewEvent(ctx.InvocationID())
					ev.Author = "city_guide"
					ev.Partial = i == 0
					ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
					if !yield(ev, nil) {
						return
					}
				}
			}
		},
	})
	require.NoError(t, err)

	sessions := session.InMemoryService()
	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: streamer, SessionService: sessions})
	require.NoError(t, err)

	events := testutils.Collect(t, r.Run(testutils.TestContext(t), "user-1", "s1", agent.NewTextContent("hi", a2a.MessageRoleUser), agent.RunConfig{StreamingMode: agent.StreamingModeSSE}))
	assert.Len(t, events, 2)
	assert.Equal(t, 2, getSession(t, sessions, "s1").Events().Len())
}

func TestRun_AttachesSessionArtifacts(t *testing.T) {
	store := artifact.NewInMemoryService()
	saver, err := agent.New(agent.Config{
		Name: "city_drawer",
		Run: func(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) {
				resp, err := ctx.Artifacts().Save(ctx, "zurich.png", agent.NewBlobPart("zurich.png", "image/png", []byte("png")))
				if err != nil {
					yield(nil, err)
					return
				}
				ev := agent.NewEvent(ctx.InvocationID())
				ev.Author = "city_drawer"
				ev.Actions.ArtifactDelta[resp.Name] = resp.Version
				yield(ev, nil)
			}
		},
	})
	require.NoError(t, err)

	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: saver, SessionService: session.InMemoryService(), ArtifactService: store})
	require.NoError(t, err)
	testutils.Collect(t, r.Run(testutils.TestContext(t), "user-1", "s1", agent.NewTextContent("draw", a2a.MessageRoleUser), agent.RunConfig{}))

	names, err := store.List(context.Background(), "cityscape", "user-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"zurich.png"}, names)
}

func TestRun_AgentErrorIsReturned(t *testing.T) {
	boom := errors.New("model unavailable")
	failing, err := agent.New(agent.Config{
		Name: "city_guide",
		Run: func(agent.InvocationContext) iter.Seq2[*agent.Event, error] {
			return func(yield func(*agent.Event, error) bool) { yield(nil, boom) }
		},
	})
	require.NoError(t, err)

	metrics := &runRecorder{}
	r, err := runner.New(runner.Config{AppName: "cityscape", Agent: failing, SessionService: session.InMemoryService(), Metrics: metrics})
	require.NoError(t, err)

	var runErr error
	for _, err := range r.Run(testutils.TestContext(t), "user-1", "s1", agent.NewTextContent("hi", a2a.MessageRoleUser), agent.RunConfig{}) {
		runErr = err
	}
	assert.ErrorIs(t, runErr, boom)
	assert.Equal(t, []error{boom}, metrics.errs)
}
