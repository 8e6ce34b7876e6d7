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

package remoteagent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// DefaultTimeout bounds card discovery.
const DefaultTimeout = 30 * time.Second

// Config configures a remote A2A agent.
type Config struct {
	// Name is the local name for this remote agent.
	// Required.
	Name string

	// Description describes what this remote agent does.
	Description string

	// URL is the base URL of the remote deployment. The agent card is
	// fetched from CardURL(URL).
	URL string

	// AgentCard provides the agent card directly and skips discovery.
	AgentCard *a2a.AgentCard

	// HTTPClient is used for discovery and for every A2A call. Default:
	// http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds card discovery. Default: 30s.
	Timeout time.Duration

	// MessageSendConfig is attached to every message sent to the remote agent.
	MessageSendConfig *a2a.MessageSendConfig
}

// ErrNoSource is returned when neither a URL nor an agent card is given.
var ErrNoSource = errors.New("remote agent requires a URL or an agent card")

type a2aAgent struct {
	cfg    Config
	client *http.Client

	mu   sync.Mutex
	card *a2a.AgentCard
}

// NewA2A creates a remote A2A agent. No network call happens until the
// agent first runs.
func NewA2A(cfg Config) (agent.Agent, error) {
	if cfg.Name == "" {
		return nil, agent.ErrNoName
	}
	if cfg.URL == "" && cfg.AgentCard == nil {
		return nil, ErrNoSource
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	a := &a2aAgent{cfg: cfg, client: cfg.HTTPClient, card: cfg.AgentCard}
	if a.client == nil {
		a.client = http.DefaultClient
	}

	return agent.New(agent.Config{
		Name:        cfg.Name,
		Description: cfg.Description,
		Run:         a.run,
	})
}

func (a *a2aAgent) run(ctx agent.InvocationContext) iter.Seq2[*agent.Event, error] {
	return func(yield func(*agent.Event, error) bool) {
		card, err := a.resolveCard(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("remote agent %q: %w", a.cfg.Name, err))
			return
		}

		client, err := a2aclient.NewFromCard(ctx, card, a2aclient.WithJSONRPCTransport(a.client))
		if err != nil {
			yield(nil, fmt.Errorf("remote agent %q: client creation failed: %w", a.cfg.Name, err))
			return
		}
		defer func() { _ = client.Destroy() }()

		msg := a.buildMessage(ctx)
		if len(msg.Parts) == 0 {
			slog.Debug("Remote agent has nothing to send", "agent", a.cfg.Name)
			return
		}

		req := &a2a.MessageSendParams{
			Message: msg,
			Config:  a.cfg.MessageSendConfig,
		}
		// streamed holds artifact chunks not yet part of a final event.
		var streamed []a2a.Part
		for remote, err := range client.SendStreamingMessage(ctx, req) {
			if err != nil {
				yield(nil, fmt.Errorf("remote agent %q: %w", a.cfg.Name, err))
				return
			}
			if au, ok := remote.(*a2a.TaskArtifactUpdateEvent); ok && au.Artifact != nil {
				streamed = append(streamed, au.Artifact.Parts...)
			}
			ev := toEvent(ctx, remote)
			if ev == nil {
				continue
			}
			if !ev.Partial {
				if ev.Message == nil && len(streamed) > 0 {
					ev.Message = a2a.NewMessage(a2a.MessageRoleAgent, streamed...)
				}
				streamed = nil
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// resolveCard returns the configured card, or fetches it once. A failed
// fetch is retried on the next run.
func (a *a2aAgent) resolveCard(ctx context.Context) (*a2a.AgentCard, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.card != nil {
		return a.card, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	card, err := agentcard.NewResolver(a.client).Resolve(ctx, a.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card from %s: %w", CardURL(a.cfg.URL), err)
	}
	slog.Debug("Resolved remote agent card", "agent", a.cfg.Name, "card", card.Name, "url", card.URL)
	a.card = card
	return card, nil
}

// buildMessage forwards the user's message. The session ID is the A2A
// context ID so the remote side keeps one conversation per session.
func (a *a2aAgent) buildMessage(ctx agent.InvocationContext) *a2a.Message {
	uc := ctx.UserContent()
	if uc == nil {
		return a2a.NewMessage(a2a.MessageRoleUser)
	}
	msg := a2a.NewMessage(a2a.MessageRoleUser, uc.Parts...)
	msg.ContextID = ctx.SessionID()
	return msg
}
