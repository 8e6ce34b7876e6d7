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

// Package artifact stores named binary parts (generated images, uploads)
// attached to a session. Every save creates a new version, starting at 0.
//
// Names prefixed with "user:" are scoped to the user instead of the
// session, so they are visible from every session of that user.
package artifact

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// ErrNotFound is returned when an artifact or version does not exist.
var ErrNotFound = errors.New("artifact not found")

// UserScopePrefix marks artifact names shared across a user's sessions.
const UserScopePrefix = "user:"

// Key identifies an artifact.
type Key struct {
	AppName   string
	UserID    string
	SessionID string
	Name      string
}

// Service stores versioned artifacts.
type Service interface {
	Save(ctx context.Context, key Key, part a2a.Part) (int64, error)

	// Load returns the given version, or the latest when version is negative.
	Load(ctx context.Context, key Key, version int64) (a2a.Part, error)

	// List returns artifact names visible from the session, sorted.
	List(ctx context.Context, appName, userID, sessionID string) ([]string, error)

	Versions(ctx context.Context, key Key) ([]int64, error)
	Delete(ctx context.Context, key Key) error
}

// InMemoryService keeps artifacts in process memory.
type InMemoryService struct {
	mu    sync.RWMutex
	parts map[string][]a2a.Part // storage path -> versions
}

// NewInMemoryService returns an empty in-memory artifact store.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{parts: make(map[string][]a2a.Part)}
}

func storagePath(k Key) string {
	if strings.HasPrefix(k.Name, UserScopePrefix) {
		return k.AppName + "/" + k.UserID + "/user/" + k.Name
	}
	return k.AppName + "/" + k.UserID + "/" + k.SessionID + "/" + k.Name
}

// Save appends a new version and returns its number.
func (s *InMemoryService) Save(_ context.Context, key Key, part a2a.Part) (int64, error) {
	if key.Name == "" {
		return 0, errors.New("artifact name is required")
	}
	if part == nil {
		return 0, errors.New("artifact part is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := storagePath(key)
	s.parts[path] = append(s.parts[path], part)
	return int64(len(s.parts[path]) - 1), nil
}

// Load returns a stored version.
func (s *InMemoryService) Load(_ context.Context, key Key, version int64) (a2a.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.parts[storagePath(key)]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	if version < 0 {
		return versions[len(versions)-1], nil
	}
	if version >= int64(len(versions)) {
		return nil, ErrNotFound
	}
	return versions[version], nil
}

// List returns session and user scoped names.
func (s *InMemoryService) List(_ context.Context, appName, userID, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionPrefix := appName + "/" + userID + "/" + sessionID + "/"
	userPrefix := appName + "/" + userID + "/user/"

	var names []string
	for path := range s.parts {
		switch {
		case strings.HasPrefix(path, sessionPrefix):
			names = append(names, strings.TrimPrefix(path, sessionPrefix))
		case strings.HasPrefix(path, userPrefix):
			names = append(names, strings.TrimPrefix(path, userPrefix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Versions returns the stored version numbers in ascending order.
func (s *InMemoryService) Versions(_ context.Context, key Key) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.parts[storagePath(key)])
	if n == 0 {
		return nil, ErrNotFound
	}
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(i)
	}
	return out, nil
}

// Delete drops every version of the artifact.
func (s *InMemoryService) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := storagePath(key)
	if _, ok := s.parts[path]; !ok {
		return ErrNotFound
	}
	delete(s.parts, path)
	return nil
}

// ForSession binds a Service to one session, producing the agent.Artifacts
// view handed to tools and callbacks.
func ForSession(svc Service, appName, userID, sessionID string) agent.Artifacts {
	return &sessionArtifacts{svc: svc, appName: appName, userID: userID, sessionID: sessionID}
}

type sessionArtifacts struct {
	svc       Service
	appName   string
	userID    string
	sessionID string
}

func (a *sessionArtifacts) key(name string) Key {
	return Key{AppName: a.appName, UserID: a.userID, SessionID: a.sessionID, Name: name}
}

func (a *sessionArtifacts) Save(ctx context.Context, name string, part a2a.Part) (*agent.ArtifactSaveResponse, error) {
	version, err := a.svc.Save(ctx, a.key(name), part)
	if err != nil {
		return nil, err
	}
	return &agent.ArtifactSaveResponse{Name: name, Version: version}, nil
}

func (a *sessionArtifacts) List(ctx context.Context) ([]string, error) {
	names, err := a.svc.List(ctx, a.appName, a.userID, a.sessionID)
	if err != nil {
		return nil, err
	}
	return slices.Clip(names), nil
}

func (a *sessionArtifacts) Load(ctx context.Context, name string) (a2a.Part, error) {
	return a.svc.Load(ctx, a.key(name), -1)
}

func (a *sessionArtifacts) LoadVersion(ctx context.Context, name string, version int64) (a2a.Part, error) {
	return a.svc.Load(ctx, a.key(name), version)
}

var (
	_ Service         = (*InMemoryService)(nil)
	_ agent.Artifacts = (*sessionArtifacts)(nil)
)
