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
	"strings"
	"time"
)

// DrawerDateLayout formats the date shown on the picture, e.g.
// "Monday, January 02, 2006".
const DrawerDateLayout = "Monday, January 02, 2006"

const researcherInstruction = "Use the Google search tool to figure out the most iconic landmark and " +
	"immediate geographical attributes (lakes, major rivers, hills etc.) in a given city and return " +
	"an ordered list starting with the most important landmarks."

const weatherInstruction = "Use the available tool to get a summary of current weather conditions " +
	"in a city to provide the image with up to date information."

const drawerTemplate = `
Image Context:
- Current Date: %DATE%
- Current Weather: {city_weather?}
- Most Prominent Landmarks in that City: {city_profile?}

Image Model: %MODEL%

Instructions:
1. Come up with an absolute file path for the cityscape of the current city
   and make sure it's added to the current folders 'generated' folder
   e.g. %GENERATED%/zurich/ for a cityscape of Zurich.
2. Use the ` + "`nano_banana`" + ` tool with the specified image model to create the image
   in the above path by following these instructions carefully:

   Present a clear, 45° top-down isometric miniature 3D cartoon scene of [CITY],
   featuring its most iconic landmarks and architectural elements. Use soft,
   refined textures with realistic PBR materials and gentle, lifelike
   lighting and shadows. Integrate the current weather conditions directly
   into the city environment to create an immersive atmospheric mood.
   Use a clean, minimalistic composition with a soft, solid-colored background.
   At the top-center, place the title "[CITY]" in large bold text, a prominent
   weather icon beneath it, then the current date and temperature (medium text).
   All text must be centered with consistent spacing, and may subtly overlap the
   tops of the buildings.
   Square 1080x1080 dimension.

3. Use the ` + "`" + DisplayImageToolName + "`" + ` tool with the absolute file path of the generated image.
`

// drawerInstruction renders the drawer prompt. The {city_*?} placeholders
// are left for state injection.
func drawerInstruction(now time.Time, imageModel, workDir string) string {
	return strings.NewReplacer(
		"%DATE%", now.Format(DrawerDateLayout),
		"%MODEL%", imageModel,
		"%GENERATED%", filepath.Join(workDir, "generated"),
	).Replace(drawerTemplate)
}

const routerInstruction = `You are city_guide, a friendly assistant for everything about cities.

Decide who handles the latest user message:
- Delegate to cityscape_agent when the user wants a picture, drawing or
  cityscape of a city.
- Delegate to city_trip_agent when the user wants to plan a trip or an
  itinerary for a city, if that target is listed.
- Otherwise answer directly.`

const responderInstruction = `You are city_guide, a friendly assistant for everything about cities.
Answer questions about cities briefly. You can also draw a picture of any
city for the user. %TRIP%If a request is unrelated to cities, politely say so.`

func responderPrompt(tripEnabled bool) string {
	trip := ""
	if tripEnabled {
		trip = "You can also help plan a trip to a city. "
	}
	return strings.Replace(responderInstruction, "%TRIP%", trip, 1)
}
