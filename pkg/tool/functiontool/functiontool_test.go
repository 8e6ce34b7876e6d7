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

package functiontool_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/tool"
	"github.com/kadirpekel/cityscape/pkg/tool/functiontool"
)

type weatherArgs struct {
	City  string `json:"city" jsonschema:"required,description=City name"`
	Units string `json:"units,omitempty" jsonschema:"description=Temperature units"`
}

func newToolContext(t *testing.T) (tool.Context, *agent.EventActions) {
	t.Helper()
	inv := agent.NewInvocationContext(context.Background(), agent.InvocationContextParams{})
	actions := &agent.EventActions{}
	return tool.NewContext(inv, "call-1", actions), actions
}

func TestNew_Schema(t *testing.T) {
	weather, err := functiontool.New(
		functiontool.Config{Name: "get_weather", Description: "Current weather of a city"},
		func(ctx tool.Context, args weatherArgs) (map[string]any, error) {
			return map[string]any{"city": args.City}, nil
		},
	)
	require.NoError(t, err)

	assert.Equal(t, "get_weather", weather.Name())
	assert.Equal(t, "Current weather of a city", weather.Description())
	assert.False(t, weather.IsLongRunning())

	schema := weather.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Equal(t, []any{"city"}, schema["required"])

	def := tool.ToDefinition(weather)
	assert.Equal(t, "get_weather", def.Name)
	assert.Equal(t, schema, def.Parameters)
}

func TestNew_AnonymousArgs(t *testing.T) {
	empty, err := functiontool.New(
		functiontool.Config{Name: "ping", Description: "No arguments"},
		func(ctx tool.Context, args struct{}) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "object", empty.Schema()["type"])
	assert.Equal(t, map[string]any{}, empty.Schema()["properties"])

	inline, err := functiontool.New(
		functiontool.Config{Name: "lookup", Description: "Inline arguments"},
		func(ctx tool.Context, args struct {
			City string `json:"city" jsonschema:"required"`
		}) (map[string]any, error) {
			return map[string]any{"city": args.City}, nil
		},
	)
	require.NoError(t, err)

	schema := inline.Schema()
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Equal(t, []any{"city"}, schema["required"])

	ctx, _ := newToolContext(t)
	out, err := inline.Call(ctx, map[string]any{"city": "Zurich"})
	require.NoError(t, err)
	assert.Equal(t, "Zurich", out["city"])
}

func TestCall_TypedArgsAndState(t *testing.T) {
	weather := functiontool.Must(
		functiontool.Config{Name: "get_weather", Description: "weather"},
		func(ctx tool.Context, args weatherArgs) (map[string]any, error) {
			require.NoError(t, ctx.State().Set("last_city", args.City))
			return map[string]any{"summary": "sunny in " + args.City, "call": ctx.FunctionCallID()}, nil
		},
	)

	ctx, actions := newToolContext(t)
	out, err := weather.Call(ctx, map[string]any{"city": "Zurich"})
	require.NoError(t, err)
	assert.Equal(t, "sunny in Zurich", out["summary"])
	assert.Equal(t, "call-1", out["call"])
	assert.Equal(t, "Zurich", actions.StateDelta["last_city"])
}

func TestCall_InvalidArgs(t *testing.T) {
	weather := functiontool.Must(
		functiontool.Config{Name: "get_weather", Description: "weather"},
		func(ctx tool.Context, args weatherArgs) (map[string]any, error) {
			return nil, nil
		},
	)

	ctx, _ := newToolContext(t)
	_, err := weather.Call(ctx, map[string]any{"city": 42})
	assert.Error(t, err)
}

func TestCall_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	failing := functiontool.Must(
		functiontool.Config{Name: "fail", Description: "always fails"},
		func(ctx tool.Context, args struct{}) (map[string]any, error) {
			return nil, boom
		},
	)

	ctx, _ := newToolContext(t)
	_, err := failing.Call(ctx, nil)
	assert.ErrorIs(t, err, boom)
}

func TestNew_Validation(t *testing.T) {
	fn := func(ctx tool.Context, args struct{}) (map[string]any, error) { return nil, nil }

	_, err := functiontool.New(functiontool.Config{Description: "x"}, fn)
	assert.Error(t, err)

	_, err = functiontool.New(functiontool.Config{Name: "x"}, fn)
	assert.Error(t, err)

	_, err = functiontool.New[struct{}](functiontool.Config{Name: "x", Description: "x"}, nil)
	assert.Error(t, err)
}
