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

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/a2aproject/a2a-go/a2asrv/eventqueue"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/auth"
	"github.com/kadirpekel/cityscape/pkg/runner"
	"github.com/kadirpekel/cityscape/pkg/session"
)

// DefaultA2AUser owns sessions of callers that send no user id.
const DefaultA2AUser = "a2a_user"

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	Runner         *runner.Runner
	SessionService session.Service

	// RunConfig contains runtime configuration for agent execution.
	RunConfig agent.RunConfig
}

// Executor runs the root agent for A2A requests. The A2A context id is the
// session id, so follow-up messages continue the same conversation.
type Executor struct {
	config ExecutorConfig
}

// NewExecutor creates an A2A agent executor.
func NewExecutor(config ExecutorConfig) *Executor {
	return &Executor{config: config}
}

// Execute emits submitted, working, one artifact stream and a terminal
// status for the request.
func (e *Executor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	msg := reqCtx.Message
	if msg == nil {
		return errors.New("message not provided")
	}
	content := &agent.Content{Parts: msg.Parts, Role: a2a.MessageRoleUser}

	if reqCtx.StoredTask == nil {
		event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateSubmitted, nil)
		if err := queue.Write(ctx, event); err != nil {
			return fmt.Errorf("failed to write submitted event: %w", err)
		}
	}

	meta := toInvocationMeta(ctx, reqCtx)
	if err := e.prepareSession(ctx, meta); err != nil {
		return queue.Write(ctx, toFailedStatusEvent(reqCtx, err, meta.eventMeta))
	}

	working := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
	working.Metadata = meta.eventMeta
	if err := queue.Write(ctx, working); err != nil {
		return err
	}

	return e.process(ctx, newEventProcessor(reqCtx, meta), content, queue)
}

// Cancel marks the task canceled.
func (e *Executor) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, queue eventqueue.Queue) error {
	event := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCanceled, nil)
	event.Final = true
	return queue.Write(ctx, event)
}

func (e *Executor) process(ctx context.Context, processor *eventProcessor, content *agent.Content, q eventqueue.Queue) error {
	meta := processor.meta

	for event, err := range e.config.Runner.Run(ctx, meta.userID, meta.sessionID, content, e.config.RunConfig) {
		if err != nil {
			slog.Error("A2A agent run failed", "session", meta.sessionID, "error", err)
			failed := processor.makeFailedEvent(fmt.Errorf("agent run failed: %w", err), nil)
			if writeErr := q.Write(ctx, failed); writeErr != nil {
				return fmt.Errorf("failed to write error event: %w (original: %w)", writeErr, err)
			}
			return nil
		}

		if a2aEvent := processor.process(event); a2aEvent != nil {
			if err := q.Write(ctx, a2aEvent); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
	}

	for _, ev := range processor.makeTerminalEvents() {
		if err := q.Write(ctx, ev); err != nil {
			return fmt.Errorf("failed to write terminal event: %w", err)
		}
	}
	return nil
}

func (e *Executor) prepareSession(ctx context.Context, meta invocationMeta) error {
	service := e.config.SessionService
	appName := e.config.Runner.AppName()

	_, err := service.Get(ctx, &session.GetRequest{AppName: appName, UserID: meta.userID, SessionID: meta.sessionID})
	if err == nil {
		return nil
	}
	if !errors.Is(err, session.ErrSessionNotFound) {
		return fmt.Errorf("failed to get session: %w", err)
	}

	_, err = service.Create(ctx, &session.CreateRequest{AppName: appName, UserID: meta.userID, SessionID: meta.sessionID})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

var _ a2asrv.AgentExecutor = (*Executor)(nil)

type invocationMeta struct {
	userID    string
	sessionID string
	eventMeta map[string]any
}

// toInvocationMeta resolves the caller: the validated token subject, else the
// user_id in message metadata, else DefaultA2AUser.
func toInvocationMeta(ctx context.Context, reqCtx *a2asrv.RequestContext) invocationMeta {
	meta := invocationMeta{
		sessionID: reqCtx.ContextID,
		eventMeta: make(map[string]any),
	}
	if claims := auth.ClaimsFromContext(ctx); claims != nil && claims.Subject != "" {
		meta.userID = claims.Subject
	} else if reqCtx.Message != nil && reqCtx.Message.Metadata != nil {
		if uid, ok := reqCtx.Message.Metadata["user_id"].(string); ok {
			meta.userID = uid
		}
	}
	if meta.userID == "" {
		meta.userID = DefaultA2AUser
	}
	meta.eventMeta[metaKeyUserID] = meta.userID
	meta.eventMeta[metaKeySessionID] = meta.sessionID
	return meta
}
