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

// Package functiontool turns typed Go functions into callable tools.
//
// The argument schema is reflected from the Args struct:
//
//	type displayArgs struct {
//	    ImagePath string `json:"image_path" jsonschema:"required,description=Path of the PNG to display"`
//	}
//
//	display, err := functiontool.New(
//	    functiontool.Config{Name: "display_image_with_adk", Description: "..."},
//	    func(ctx tool.Context, args displayArgs) (map[string]any, error) { ... },
//	)
package functiontool

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/cityscape/pkg/tool"
)

// Config configures a function tool.
type Config struct {
	Name        string
	Description string

	IsLongRunning bool
}

// Func is the body of a function tool.
type Func[Args any] func(ctx tool.Context, args Args) (map[string]any, error)

// New creates a CallableTool from fn.
func New[Args any](cfg Config, fn Func[Args]) (tool.CallableTool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if cfg.Description == "" {
		return nil, fmt.Errorf("tool %q: description is required", cfg.Name)
	}
	if fn == nil {
		return nil, fmt.Errorf("tool %q: function is required", cfg.Name)
	}

	schema, err := reflectSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema for %s: %w", cfg.Name, err)
	}

	return &functionTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

// Must is like New but panics on error. Meant for package-level tools.
func Must[Args any](cfg Config, fn Func[Args]) tool.CallableTool {
	t, err := New(cfg, fn)
	if err != nil {
		panic(err)
	}
	return t
}

type functionTool[Args any] struct {
	cfg    Config
	fn     Func[Args]
	schema map[string]any
}

func (t *functionTool[Args]) Name() string           { return t.cfg.Name }
func (t *functionTool[Args]) Description() string    { return t.cfg.Description }
func (t *functionTool[Args]) IsLongRunning() bool    { return t.cfg.IsLongRunning }
func (t *functionTool[Args]) Schema() map[string]any { return t.schema }

func (t *functionTool[Args]) Call(ctx tool.Context, args map[string]any) (map[string]any, error) {
	var typed Args
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.cfg.Name, err)
		}
		if err := json.Unmarshal(data, &typed); err != nil {
			return nil, fmt.Errorf("invalid arguments for %s: %w", t.cfg.Name, err)
		}
	}
	return t.fn(ctx, typed)
}

// reflectSchema returns a flat object schema: type, properties, required.
func reflectSchema[T any]() (map[string]any, error) {
	r := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	// Expansion looks the root up by type name, so anonymous structs are
	// reflected inline.
	if reflect.TypeFor[T]().Name() != "" {
		r.ExpandedStruct = true
	}

	data, err := json.Marshal(r.Reflect(new(T)))
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if raw["type"] != "object" {
		delete(raw, "$schema")
		delete(raw, "$id")
		return raw, nil
	}

	out := map[string]any{"type": "object", "properties": raw["properties"]}
	if out["properties"] == nil {
		out["properties"] = map[string]any{}
	}
	if req, ok := raw["required"]; ok {
		out["required"] = req
	}
	return out, nil
}

var _ tool.CallableTool = (*functionTool[struct{}])(nil)
