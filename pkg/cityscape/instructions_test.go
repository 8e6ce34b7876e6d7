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

package cityscape

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/cityscape/pkg/instruction"
)

func TestDrawerInstruction(t *testing.T) {
	now := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	text := drawerInstruction(now, NanoBananaModel, "/srv/cityscape")

	assert.Contains(t, text, "Current Date: Saturday, March 07, 2026")
	assert.Contains(t, text, "Image Model: gemini-3-pro-image-preview")
	assert.Contains(t, text, filepath.Join("/srv/cityscape", "generated")+"/zurich/")
	assert.Contains(t, text, "`display_image_with_adk`")
	assert.NotContains(t, text, "%")
	assert.ElementsMatch(t, []string{"city_weather", "city_profile"}, instruction.Placeholders(text))
}

func TestResponderPrompt(t *testing.T) {
	assert.NotContains(t, responderPrompt(false), "trip")
	assert.Contains(t, responderPrompt(true), "plan a trip")
	assert.NotContains(t, responderPrompt(true), "%TRIP%")
}
