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

package instruction_test

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/artifact"
	"github.com/kadirpekel/cityscape/pkg/instruction"
	"github.com/kadirpekel/cityscape/pkg/session"
)

func newContext(t *testing.T, state map[string]any) agent.InvocationContext {
	t.Helper()
	ctx := context.Background()
	created, err := session.InMemoryService().Create(ctx, &session.CreateRequest{
		AppName: "cityscape", UserID: "u", SessionID: "s", State: state,
	})
	require.NoError(t, err)

	arts := artifact.ForSession(artifact.NewInMemoryService(), "cityscape", "u", "s")
	_, err = arts.Save(ctx, "notes.txt", a2a.TextPart{Text: "bring an umbrella"})
	require.NoError(t, err)

	return agent.NewInvocationContext(ctx, agent.InvocationContextParams{
		Session:   created.Session,
		Artifacts: arts,
	})
}

func TestInjectState(t *testing.T) {
	ctx := newContext(t, map[string]any{
		"city_profile":  "1. Grossmünster",
		"user:language": "de",
	})

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"required", "Landmarks: {city_profile}", "Landmarks: 1. Grossmünster"},
		{"optional missing", "Weather: {city_weather?}.", "Weather: ."},
		{"scoped", "lang={user:language}", "lang=de"},
		{"artifact", "Note: {artifact.notes.txt}", "Note: bring an umbrella"},
		{"literal braces", `JSON like {"a": 1} stays`, `JSON like {"a": 1} stays`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instruction.InjectState(ctx, tt.template)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInjectState_MissingRequired(t *testing.T) {
	ctx := newContext(t, nil)
	_, err := instruction.InjectState(ctx, "{city_profile}")
	assert.ErrorIs(t, err, agent.ErrStateKeyNotExist)

	_, err = instruction.InjectState(ctx, "{artifact.missing.txt}")
	assert.Error(t, err)

	got, err := instruction.InjectState(ctx, "{artifact.missing.txt?}")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t,
		[]string{"city_profile", "city_weather"},
		instruction.Placeholders("{city_profile?} {city_weather?} {city_profile}"))
}
