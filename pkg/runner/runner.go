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

// Package runner executes the agent tree within sessions.
//
// The Runner handles:
//   - session creation and retrieval
//   - appending the user message
//   - persisting every non-partial event before the agent resumes
//   - clearing temp: state when the invocation ends
package runner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/observability"
	"github.com/kadirpekel/cityscape/pkg/session"
)

// Config contains the configuration for creating a Runner.
type Config struct {
	// AppName identifies the application.
	AppName string

	// Agent is the root agent of every invocation.
	Agent agent.Agent

	SessionService session.Service

	// ArtifactService stores files produced by tools (optional).
	ArtifactService artifact.Service

	// Memory provides cross-session recall to tools (optional).
	Memory agent.Memory

	Tracer  trace.Tracer
	Metrics observability.Metrics
}

// Runner orchestrates agent execution within sessions.
type Runner struct {
	appName         string
	rootAgent       agent.Agent
	sessionService  session.Service
	artifactService artifact.Service
	memory          agent.Memory
	tracer          trace.Tracer
	metrics         observability.Metrics
}

// New creates a new Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Agent == nil {
		return nil, errors.New("root agent is required")
	}
	if cfg.SessionService == nil {
		return nil, errors.New("session service is required")
	}
	if err := checkUniqueNames(cfg.Agent); err != nil {
		return nil, fmt.Errorf("failed to build agent tree: %w", err)
	}

	r := &Runner{
		appName:         cfg.AppName,
		rootAgent:       cfg.Agent,
		sessionService:  cfg.SessionService,
		artifactService: cfg.ArtifactService,
		memory:          cfg.Memory,
		tracer:          cfg.Tracer,
		metrics:         cfg.Metrics,
	}
	if r.tracer == nil {
		r.tracer = noop.NewTracerProvider().Tracer("runner")
	}
	if r.metrics == nil {
		r.metrics = observability.NoopMetrics{}
	}
	return r, nil
}

// Run executes the root agent for the given user input, yielding events.
// Every non-partial event is persisted before it is yielded, so the agent
// that produced it resumes only once its state delta is visible.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, content *agent.Content, cfg agent.RunConfig) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		sess, err := r.getOrCreateSession(ctx, userID, sessionID)
		if err != nil {
			yield(nil, err)
			return
		}
		defer clearTempState(sess)

		var artifacts agent.Artifacts
		if r.artifactService != nil {
			artifacts = artifact.ForSession(r.artifactService, r.appName, userID, sess.ID())
		}

		ctx, span := r.tracer.Start(ctx, observability.SpanAgentRun, trace.WithAttributes(
			attribute.String("agent.name", r.rootAgent.Name()),
			attribute.String("session.id", sess.ID()),
		))
		defer span.End()

		invCtx := agent.NewInvocationContext(ctx, agent.InvocationContextParams{
			Agent:       r.rootAgent,
			Session:     sess,
			Artifacts:   artifacts,
			Memory:      r.memory,
			UserContent: content,
			RunConfig:   &cfg,
		})

		if err := r.appendUserMessage(ctx, sess, content, invCtx.InvocationID()); err != nil {
			yield(nil, err)
			return
		}

		start := time.Now()
		var runErr error
		defer func() {
			r.metrics.RecordAgentRun(ctx, r.rootAgent.Name(), time.Since(start), runErr)
			if runErr != nil {
				span.RecordError(runErr)
				span.SetStatus(codes.Error, runErr.Error())
			}
		}()

		for event, err := range r.rootAgent.Run(invCtx) {
			if err != nil {
				runErr = err
				slog.Error("Agent run failed", "agent", r.rootAgent.Name(), "session_id", sess.ID(), "error", err)
				yield(nil, err)
				return
			}
			if event == nil {
				continue
			}

			if !event.Partial {
				if err := r.sessionService.AppendEvent(ctx, sess, event); err != nil {
					runErr = fmt.Errorf("failed to persist event: %w", err)
					yield(nil, runErr)
					return
				}
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}

// RootAgent returns the root agent.
func (r *Runner) RootAgent() agent.Agent {
	return r.rootAgent
}

// AppName returns the application name.
func (r *Runner) AppName() string {
	return r.appName
}

// FindAgent searches the tree for an agent by name.
func (r *Runner) FindAgent(name string) agent.Agent {
	return agent.FindAgent(r.rootAgent, name)
}

func (r *Runner) getOrCreateSession(ctx context.Context, userID, sessionID string) (session.Session, error) {
	if sessionID != "" {
		resp, err := r.sessionService.Get(ctx, &session.GetRequest{
			AppName:   r.appName,
			UserID:    userID,
			SessionID: sessionID,
		})
		if err == nil {
			return resp.Session, nil
		}
		if !errors.Is(err, session.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
	}

	created, err := r.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   r.appName,
		UserID:    userID,
		SessionID: sessionID,
		State:     make(map[string]any),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return created.Session, nil
}

func (r *Runner) appendUserMessage(ctx context.Context, sess session.Session, content *agent.Content, invocationID string) error {
	if content == nil {
		return nil
	}

	event := agent.NewEvent(invocationID)
	event.Author = agent.AuthorUser
	event.Message = a2a.NewMessage(a2a.MessageRoleUser, content.Parts...)

	if err := r.sessionService.AppendEvent(ctx, sess, event); err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}
	return nil
}

func clearTempState(sess session.Session) {
	if clearable, ok := sess.State().(agent.TempClearable); ok {
		clearable.ClearTempKeys()
	}
}

func checkUniqueNames(root agent.Agent) error {
	seen := make(map[string]bool)
	for _, a := range agent.ListAgents(root) {
		if seen[a.Name()] {
			return fmt.Errorf("duplicate agent name in tree: %s", a.Name())
		}
		seen[a.Name()] = true
	}
	return nil
}
