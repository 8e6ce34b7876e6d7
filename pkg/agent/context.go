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

package agent

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
)

/*
InvocationContext carries everything an agent needs while it runs.

An invocation starts with one user message and ends when the root agent
stops yielding. It may span several agent calls:

	┌─────────────────────── invocation ───────────────────────┐
	┌── router ──┐ ┌────────── cityscape_agent ────────────────┐
	              ┌──── city_info ────┐ ┌──── city_drawer ────┐
	              [researcher][weather]  [call_llm] [call_tool]
*/
type InvocationContext interface {
	CallbackContext

	Agent() Agent
	Session() Session
	Memory() Memory
	RunConfig() *RunConfig

	// EndInvocation stops the invocation after the current event.
	EndInvocation()
	Ended() bool

	// WithAgent returns a child context running agent a.
	WithAgent(a Agent) InvocationContext

	// WithBranch returns a child context on an isolated history branch.
	WithBranch(branch string) InvocationContext

	// WithContext returns a copy bound to a different Go context.
	WithContext(ctx context.Context) InvocationContext
}

// ReadonlyContext provides read-only access to invocation data.
type ReadonlyContext interface {
	context.Context

	InvocationID() string
	AgentName() string
	UserContent() *Content
	ReadonlyState() ReadonlyState
	UserID() string
	AppName() string
	SessionID() string

	// Branch is the dot-separated agent path, e.g. "city_info.city_researcher".
	Branch() string
}

// CallbackContext adds mutable state and artifacts.
type CallbackContext interface {
	ReadonlyContext

	Artifacts() Artifacts
	State() State
}

// Session is a conversation between one user and one app.
type Session interface {
	ID() string
	AppName() string
	UserID() string
	State() State
	Events() Events
}

// State is a mutable key-value store for session state.
type State interface {
	Get(key string) (any, error)
	Set(key string, value any) error
	Delete(key string) error
	All() iter.Seq2[string, any]
}

// TempClearable is implemented by state stores holding "temp:" keys.
type TempClearable interface {
	ClearTempKeys()
}

// ReadonlyState is the read half of State.
type ReadonlyState interface {
	Get(key string) (any, error)
	All() iter.Seq2[string, any]
}

// Events is the ordered event history of a session.
type Events interface {
	All() iter.Seq[*Event]
	Len() int
	At(i int) *Event
}

// Artifacts stores named, versioned binary parts for the current session.
type Artifacts interface {
	Save(ctx context.Context, name string, part a2a.Part) (*ArtifactSaveResponse, error)
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (a2a.Part, error)
	LoadVersion(ctx context.Context, name string, version int64) (a2a.Part, error)
}

// ArtifactSaveResponse is returned when saving an artifact.
type ArtifactSaveResponse struct {
	Name    string
	Version int64
}

// Memory provides cross-session recall.
type Memory interface {
	AddSession(ctx context.Context, session Session) error
	Search(ctx context.Context, query string) ([]MemoryResult, error)
}

// MemoryResult is a single memory search hit.
type MemoryResult struct {
	Content string
	Author  string
}

// RunConfig contains runtime configuration for an invocation.
type RunConfig struct {
	StreamingMode StreamingMode
}

// StreamingMode controls whether partial events are produced.
type StreamingMode string

const (
	StreamingModeNone StreamingMode = "none"
	StreamingModeSSE  StreamingMode = "sse"
)

// InvocationContextParams contains parameters for NewInvocationContext.
type InvocationContextParams struct {
	Agent       Agent
	Session     Session
	Artifacts   Artifacts
	Memory      Memory
	Branch      string
	UserContent *Content
	RunConfig   *RunConfig
}

type invocationContext struct {
	context.Context

	agent        Agent
	session      Session
	artifacts    Artifacts
	memory       Memory
	invocationID string
	branch       string
	userContent  *Content
	runConfig    *RunConfig

	// shared by every derived context of one invocation
	ended *atomic.Bool
}

// NewInvocationContext creates the root context of an invocation.
func NewInvocationContext(ctx context.Context, params InvocationContextParams) InvocationContext {
	runConfig := params.RunConfig
	if runConfig == nil {
		runConfig = &RunConfig{StreamingMode: StreamingModeNone}
	}
	return &invocationContext{
		Context:      ctx,
		agent:        params.Agent,
		session:      params.Session,
		artifacts:    params.Artifacts,
		memory:       params.Memory,
		invocationID: "e-" + uuid.NewString(),
		branch:       params.Branch,
		userContent:  params.UserContent,
		runConfig:    runConfig,
		ended:        new(atomic.Bool),
	}
}

func (c *invocationContext) Agent() Agent          { return c.agent }
func (c *invocationContext) Session() Session      { return c.session }
func (c *invocationContext) Artifacts() Artifacts  { return c.artifacts }
func (c *invocationContext) Memory() Memory        { return c.memory }
func (c *invocationContext) InvocationID() string  { return c.invocationID }
func (c *invocationContext) Branch() string        { return c.branch }
func (c *invocationContext) UserContent() *Content { return c.userContent }
func (c *invocationContext) RunConfig() *RunConfig { return c.runConfig }
func (c *invocationContext) EndInvocation()        { c.ended.Store(true) }
func (c *invocationContext) Ended() bool           { return c.ended.Load() }

func (c *invocationContext) WithAgent(a Agent) InvocationContext {
	cp := *c
	cp.agent = a
	return &cp
}

func (c *invocationContext) WithBranch(branch string) InvocationContext {
	cp := *c
	cp.branch = branch
	return &cp
}

func (c *invocationContext) WithContext(ctx context.Context) InvocationContext {
	cp := *c
	cp.Context = ctx
	return &cp
}

func (c *invocationContext) AgentName() string {
	if c.agent != nil {
		return c.agent.Name()
	}
	return ""
}

func (c *invocationContext) ReadonlyState() ReadonlyState {
	if c.session != nil {
		return c.session.State()
	}
	return nil
}

func (c *invocationContext) State() State {
	if c.session != nil {
		return c.session.State()
	}
	return nil
}

func (c *invocationContext) UserID() string {
	if c.session != nil {
		return c.session.UserID()
	}
	return ""
}

func (c *invocationContext) AppName() string {
	if c.session != nil {
		return c.session.AppName()
	}
	return ""
}

func (c *invocationContext) SessionID() string {
	if c.session != nil {
		return c.session.ID()
	}
	return ""
}

// callbackContext records state writes as an event delta instead of
// mutating the session directly; the runner applies the delta on persist.
type callbackContext struct {
	InvocationContext
	actions *EventActions
}

func newCallbackContext(ctx InvocationContext) *callbackContext {
	return &callbackContext{
		InvocationContext: ctx,
		actions:           &EventActions{StateDelta: make(map[string]any)},
	}
}

// NewCallbackContext returns a CallbackContext whose state writes land in
// actions.StateDelta.
func NewCallbackContext(ctx InvocationContext, actions *EventActions) CallbackContext {
	if actions.StateDelta == nil {
		actions.StateDelta = make(map[string]any)
	}
	return &callbackContext{InvocationContext: ctx, actions: actions}
}

func (c *callbackContext) State() State {
	return &deltaState{actions: c.actions, base: c.InvocationContext.ReadonlyState()}
}

type deltaState struct {
	actions *EventActions
	base    ReadonlyState
}

func (s *deltaState) Get(key string) (any, error) {
	if v, ok := s.actions.StateDelta[key]; ok {
		return v, nil
	}
	if s.base == nil {
		return nil, ErrStateKeyNotExist
	}
	return s.base.Get(key)
}

func (s *deltaState) Set(key string, value any) error {
	s.actions.StateDelta[key] = value
	return nil
}

func (s *deltaState) Delete(key string) error {
	s.actions.StateDelta[key] = nil
	return nil
}

func (s *deltaState) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		if s.base != nil {
			for k, v := range s.base.All() {
				if _, overridden := s.actions.StateDelta[k]; overridden {
					continue
				}
				if !yield(k, v) {
					return
				}
			}
		}
		for k, v := range s.actions.StateDelta {
			if !yield(k, v) {
				return
			}
		}
	}
}

var (
	_ InvocationContext = (*invocationContext)(nil)
	_ CallbackContext   = (*callbackContext)(nil)
	_ State             = (*deltaState)(nil)
)
