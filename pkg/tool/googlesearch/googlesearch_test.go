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

package googlesearch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

func TestProcessRequest(t *testing.T) {
	cfg := &model.GenerateConfig{}
	require.NoError(t, New().ProcessRequest(nil, &tool.Request{Config: cfg}))
	assert.True(t, cfg.GoogleSearch)
}

func TestProcessRequest_RejectsUnknownConfig(t *testing.T) {
	err := New().ProcessRequest(nil, &tool.Request{Config: map[string]any{}})
	assert.Error(t, err)
}

func TestToolIsNotCallable(t *testing.T) {
	var tl tool.Tool = New()
	_, callable := tl.(tool.CallableTool)
	assert.False(t, callable)
	assert.Equal(t, "google_search", tl.Name())
}
