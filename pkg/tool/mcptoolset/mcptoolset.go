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

// Package mcptoolset exposes the tools of an MCP server as a Toolset.
//
// The connection is established lazily on the first Tools call and reused
// afterwards. Two transports are supported:
//   - stdio: Command is spawned as a subprocess
//   - streamable-http: URL is called with optional static headers
package mcptoolset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// Config configures an MCP toolset.
type Config struct {
	// Name identifies this toolset in logs.
	Name string

	// URL of a streamable-http MCP server.
	URL string

	// Headers are sent with every HTTP request, e.g. API keys.
	Headers map[string]string

	// Command, Args and Env describe a stdio MCP server. Env entries use the
	// KEY=VALUE form of os.Environ.
	Command string
	Args    []string
	Env     []string

	// Filter limits which tools are exposed. Empty exposes all.
	Filter []string

	// Timeout bounds connecting and each tool call. Zero means no deadline
	// beyond the caller's context.
	Timeout time.Duration
}

// Toolset is an MCP-backed toolset.
type Toolset struct {
	cfg       Config
	predicate tool.Predicate

	mu     sync.Mutex
	client *client.Client
	tools  []tool.Tool
}

// New creates an MCP toolset. No connection is made until Tools is called.
func New(cfg Config) (*Toolset, error) {
	if cfg.URL == "" && cfg.Command == "" {
		return nil, errors.New("either url or command is required")
	}
	if cfg.URL != "" && cfg.Command != "" {
		return nil, errors.New("url and command are mutually exclusive")
	}
	if cfg.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.URL + cfg.Command
	}

	ts := &Toolset{cfg: cfg}
	if len(cfg.Filter) > 0 {
		ts.predicate = tool.StringPredicate(cfg.Filter)
	}
	return ts, nil
}

// Name returns the toolset name.
func (t *Toolset) Name() string {
	return t.cfg.Name
}

// Timeout returns the per-request deadline, zero when unbounded.
func (t *Toolset) Timeout() time.Duration {
	return t.cfg.Timeout
}

func (t *Toolset) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.cfg.Timeout == 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.cfg.Timeout)
}

// Tools connects on first use and returns the server's tools.
func (t *Toolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		var base context.Context = context.Background()
		if ctx != nil {
			base = ctx
		}
		if err := t.connect(base); err != nil {
			return nil, fmt.Errorf("failed to connect to MCP server %s: %w", t.cfg.Name, err)
		}
	}

	if t.predicate == nil {
		return t.tools, nil
	}
	var out []tool.Tool
	for _, tl := range t.tools {
		if t.predicate(ctx, tl) {
			out = append(out, tl)
		}
	}
	return out, nil
}

func (t *Toolset) connect(parent context.Context) error {
	ctx, cancel := t.withTimeout(parent)
	defer cancel()

	var (
		c   *client.Client
		err error
	)
	if t.cfg.Command != "" {
		// started by the constructor
		c, err = client.NewStdioMCPClientWithOptions(t.cfg.Command, t.cfg.Env, t.cfg.Args)
		if err != nil {
			return fmt.Errorf("failed to start %s: %w", t.cfg.Command, err)
		}
	} else {
		opts := []transport.StreamableHTTPCOption{transport.WithHTTPHeaders(t.cfg.Headers)}
		if t.cfg.Timeout > 0 {
			opts = append(opts, transport.WithHTTPTimeout(t.cfg.Timeout))
		}
		c, err = client.NewStreamableHttpClient(t.cfg.URL, opts...)
		if err != nil {
			return fmt.Errorf("failed to create MCP client: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return fmt.Errorf("failed to start MCP client: %w", err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "cityscape", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to initialize MCP: %w", err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to list tools: %w", err)
	}

	tools := make([]tool.Tool, 0, len(listResp.Tools))
	for _, mt := range listResp.Tools {
		tools = append(tools, &mcpTool{
			toolset: t,
			name:    mt.Name,
			desc:    mt.Description,
			schema:  inputSchema(mt),
		})
	}

	t.client = c
	t.tools = tools

	slog.Info("Connected to MCP server", "name", t.cfg.Name, "tools", len(tools))
	return nil
}

func (t *Toolset) currentClient() *client.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

// Close terminates the connection. The next Tools call reconnects.
func (t *Toolset) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	t.tools = nil
	return err
}

type mcpTool struct {
	toolset *Toolset
	name    string
	desc    string
	schema  map[string]any
}

func (w *mcpTool) Name() string           { return w.name }
func (w *mcpTool) Description() string    { return w.desc }
func (w *mcpTool) IsLongRunning() bool    { return false }
func (w *mcpTool) Schema() map[string]any { return w.schema }

func (w *mcpTool) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	c := w.toolset.currentClient()
	if c == nil {
		return nil, errors.New("MCP client not connected")
	}

	callCtx, cancel := w.toolset.withTimeout(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = w.name
	req.Params.Arguments = args

	resp, err := c.CallTool(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("MCP call %s failed: %w", w.name, err)
	}
	return toResult(resp), nil
}

// toResult flattens a tool result: a single text becomes "result", several
// become "results", errors become "error".
func toResult(resp *mcp.CallToolResult) map[string]any {
	var texts []string
	for _, content := range resp.Content {
		switch c := content.(type) {
		case mcp.TextContent:
			texts = append(texts, c.Text)
		case *mcp.TextContent:
			texts = append(texts, c.Text)
		}
	}

	out := make(map[string]any)
	if resp.IsError {
		if len(texts) > 0 {
			out["error"] = texts[0]
		} else {
			out["error"] = "unknown error"
		}
		return out
	}

	switch len(texts) {
	case 0:
	case 1:
		out["result"] = texts[0]
	default:
		out["results"] = texts
	}
	if resp.StructuredContent != nil {
		out["structured"] = resp.StructuredContent
	}
	return out
}

func inputSchema(t mcp.Tool) map[string]any {
	var data []byte
	var err error
	if len(t.RawInputSchema) > 0 {
		data = t.RawInputSchema
	} else {
		data, err = json.Marshal(t.InputSchema)
		if err != nil {
			return nil
		}
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

var (
	_ tool.Toolset      = (*Toolset)(nil)
	_ tool.CallableTool = (*mcpTool)(nil)
)
