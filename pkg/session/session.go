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

// Package session stores conversations between users and the agent graph.
//
// Each session has:
//   - an identifier scoped to an app and a user
//   - state, a key-value store with scope prefixes
//   - the ordered event history
//
// State keys prefixed with "app:" are shared by every session of the app,
// keys prefixed with "user:" by every session of the user. Keys prefixed
// with "temp:" live only for the current invocation and are never stored.
package session

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// State key prefixes.
const (
	KeyPrefixApp  = "app:"
	KeyPrefixUser = "user:"
	KeyPrefixTemp = "temp:"
)

var (
	// ErrSessionNotFound is returned when a session does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStateKeyNotExist is returned when a state key is missing.
	ErrStateKeyNotExist = agent.ErrStateKeyNotExist
)

// Session is a stored conversation.
type Session interface {
	agent.Session
	LastUpdateTime() time.Time
}

// Service manages session lifecycle and persistence.
type Service interface {
	Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error)
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	List(ctx context.Context, req *ListRequest) (*ListResponse, error)
	Delete(ctx context.Context, req *DeleteRequest) error

	// AppendEvent stores the event and applies its state delta to both the
	// store and the given session. Partial events are ignored.
	AppendEvent(ctx context.Context, session agent.Session, event *agent.Event) error
}

// CreateRequest contains parameters for creating a session.
type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string // generated when empty
	State     map[string]any
}

// CreateResponse contains the created session.
type CreateResponse struct {
	Session Session
}

// GetRequest contains parameters for retrieving a session.
type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string

	// NumRecentEvents limits the returned history. Zero returns everything.
	NumRecentEvents int
}

// GetResponse contains the retrieved session.
type GetResponse struct {
	Session Session
}

// ListRequest filters sessions by app and, optionally, user.
type ListRequest struct {
	AppName string
	UserID  string
}

// ListResponse contains sessions without their event history.
type ListResponse struct {
	Sessions []Session
}

// DeleteRequest identifies the session to remove.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// memorySession is the in-process representation shared by every service.
type memorySession struct {
	id      string
	appName string
	userID  string

	mu             sync.RWMutex
	state          *memoryState
	events         *memoryEvents
	lastUpdateTime time.Time
}

func newMemorySession(appName, userID, id string, state map[string]any, events []*agent.Event, updated time.Time) *memorySession {
	return &memorySession{
		id:             id,
		appName:        appName,
		userID:         userID,
		state:          newMemoryState(state),
		events:         &memoryEvents{events: events},
		lastUpdateTime: updated,
	}
}

func (s *memorySession) ID() string           { return s.id }
func (s *memorySession) AppName() string      { return s.appName }
func (s *memorySession) UserID() string       { return s.userID }
func (s *memorySession) State() agent.State   { return s.state }
func (s *memorySession) Events() agent.Events { return s.events }

func (s *memorySession) LastUpdateTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdateTime
}

// apply merges delta into state and appends event to the history.
func (s *memorySession) apply(delta map[string]any, event *agent.Event, at time.Time) {
	for k, v := range delta {
		if v == nil {
			_ = s.state.Delete(k)
			continue
		}
		_ = s.state.Set(k, v)
	}
	s.events.append(event)

	s.mu.Lock()
	s.lastUpdateTime = at
	s.mu.Unlock()
}

// applyToSession updates a caller-held session after a successful append.
// The live session keeps temp keys until the runner clears them.
func applyToSession(sess agent.Session, event *agent.Event, at time.Time) {
	if ms, ok := sess.(*memorySession); ok {
		ms.apply(event.Actions.StateDelta, event, at)
	}
}

type memoryState struct {
	mu   sync.RWMutex
	data map[string]any
}

func newMemoryState(data map[string]any) *memoryState {
	if data == nil {
		data = make(map[string]any)
	}
	return &memoryState{data: data}
}

func (s *memoryState) Get(key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, ErrStateKeyNotExist
	}
	return v, nil
}

func (s *memoryState) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memoryState) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryState) All() iter.Seq2[string, any] {
	s.mu.RLock()
	snapshot := maps.Clone(s.data)
	s.mu.RUnlock()
	return maps.All(snapshot)
}

// ClearTempKeys drops every "temp:" key.
func (s *memoryState) ClearTempKeys() {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.DeleteFunc(s.data, func(k string, _ any) bool {
		return strings.HasPrefix(k, KeyPrefixTemp)
	})
}

func (s *memoryState) snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.data)
}

type memoryEvents struct {
	mu     sync.RWMutex
	events []*agent.Event
}

func (e *memoryEvents) All() iter.Seq[*agent.Event] {
	e.mu.RLock()
	snapshot := slices.Clone(e.events)
	e.mu.RUnlock()
	return slices.Values(snapshot)
}

func (e *memoryEvents) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

func (e *memoryEvents) At(i int) *agent.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.events) {
		return nil
	}
	return e.events[i]
}

func (e *memoryEvents) append(event *agent.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *memoryEvents) recent(n int) []*agent.Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if n <= 0 || n >= len(e.events) {
		return slices.Clone(e.events)
	}
	return slices.Clone(e.events[len(e.events)-n:])
}

// InMemoryService returns a Service that keeps everything in process memory.
func InMemoryService() Service {
	return &inMemoryService{
		sessions:  make(map[string]*memorySession),
		appState:  make(map[string]map[string]any),
		userState: make(map[string]map[string]any),
	}
}

type inMemoryService struct {
	mu        sync.RWMutex
	sessions  map[string]*memorySession
	appState  map[string]map[string]any
	userState map[string]map[string]any
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + "/" + userID + "/" + sessionID
}

func (s *inMemoryService) Create(_ context.Context, req *CreateRequest) (*CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(req.AppName, req.UserID, sessionID)
	if _, exists := s.sessions[key]; exists {
		return nil, errors.New("session already exists: " + sessionID)
	}

	appDelta, userDelta, sessionState := extractStateDeltas(req.State)
	s.mergeScoped(req.AppName, req.UserID, appDelta, userDelta)

	now := time.Now()
	stored := newMemorySession(req.AppName, req.UserID, sessionID, sessionState, nil, now)
	s.sessions[key] = stored

	return &CreateResponse{Session: s.view(stored, 0)}, nil
}

func (s *inMemoryService) Get(_ context.Context, req *GetRequest) (*GetResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.sessions[sessionKey(req.AppName, req.UserID, req.SessionID)]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &GetResponse{Session: s.view(stored, req.NumRecentEvents)}, nil
}

func (s *inMemoryService) List(_ context.Context, req *ListRequest) (*ListResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Session
	for _, stored := range s.sessions {
		if stored.appName != req.AppName {
			continue
		}
		if req.UserID != "" && stored.userID != req.UserID {
			continue
		}
		view := s.view(stored, 0)
		view.events = &memoryEvents{}
		out = append(out, view)
	}
	slices.SortFunc(out, func(a, b Session) int {
		return b.LastUpdateTime().Compare(a.LastUpdateTime())
	})
	return &ListResponse{Sessions: out}, nil
}

func (s *inMemoryService) Delete(_ context.Context, req *DeleteRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(req.AppName, req.UserID, req.SessionID))
	return nil
}

func (s *inMemoryService) AppendEvent(_ context.Context, sess agent.Session, event *agent.Event) error {
	if sess == nil || event == nil {
		return errors.New("session and event are required")
	}
	if event.Partial {
		return nil
	}

	s.mu.Lock()
	stored, ok := s.sessions[sessionKey(sess.AppName(), sess.UserID(), sess.ID())]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}

	appDelta, userDelta, sessionDelta := extractStateDeltas(event.Actions.StateDelta)
	s.mergeScoped(sess.AppName(), sess.UserID(), appDelta, userDelta)

	now := time.Now()
	stored.apply(sessionDelta, event, now)
	s.mu.Unlock()

	applyToSession(sess, event, now)
	return nil
}

// mergeScoped folds app and user deltas into the shared maps. Callers hold s.mu.
func (s *inMemoryService) mergeScoped(appName, userID string, appDelta, userDelta map[string]any) {
	if len(appDelta) > 0 {
		if s.appState[appName] == nil {
			s.appState[appName] = make(map[string]any)
		}
		applyDelta(s.appState[appName], appDelta)
	}
	if len(userDelta) > 0 {
		key := appName + "/" + userID
		if s.userState[key] == nil {
			s.userState[key] = make(map[string]any)
		}
		applyDelta(s.userState[key], userDelta)
	}
}

// view returns a detached copy with app and user state merged in.
// Callers hold s.mu.
func (s *inMemoryService) view(stored *memorySession, numRecent int) *memorySession {
	merged := mergeStates(
		s.appState[stored.appName],
		s.userState[stored.appName+"/"+stored.userID],
		stored.state.snapshot(),
	)
	return newMemorySession(stored.appName, stored.userID, stored.id, merged,
		stored.events.recent(numRecent), stored.LastUpdateTime())
}

// extractStateDeltas splits state by prefix into app, user, and session
// deltas. Temp keys are dropped.
func extractStateDeltas(state map[string]any) (appDelta, userDelta, sessionDelta map[string]any) {
	appDelta = make(map[string]any)
	userDelta = make(map[string]any)
	sessionDelta = make(map[string]any)

	for key, value := range state {
		switch {
		case strings.HasPrefix(key, KeyPrefixApp):
			appDelta[strings.TrimPrefix(key, KeyPrefixApp)] = value
		case strings.HasPrefix(key, KeyPrefixUser):
			userDelta[strings.TrimPrefix(key, KeyPrefixUser)] = value
		case strings.HasPrefix(key, KeyPrefixTemp):
		default:
			sessionDelta[key] = value
		}
	}
	return appDelta, userDelta, sessionDelta
}

// mergeStates combines app, user, and session state with their prefixes.
func mergeStates(appState, userState, sessionState map[string]any) map[string]any {
	merged := make(map[string]any, len(appState)+len(userState)+len(sessionState))
	maps.Copy(merged, sessionState)
	for k, v := range appState {
		merged[KeyPrefixApp+k] = v
	}
	for k, v := range userState {
		merged[KeyPrefixUser+k] = v
	}
	return merged
}

// applyDelta writes delta into dst. A nil value deletes the key.
func applyDelta(dst, delta map[string]any) {
	for k, v := range delta {
		if v == nil {
			delete(dst, k)
			continue
		}
		dst[k] = v
	}
}

var (
	_ Service             = (*inMemoryService)(nil)
	_ Session             = (*memorySession)(nil)
	_ agent.TempClearable = (*memoryState)(nil)
)
