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
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kadirpekel/cityscape/pkg/agent"
	"github.com/kadirpekel/cityscape/pkg/tool"
	"github.com/kadirpekel/cityscape/pkg/tool/functiontool"
)

// DisplayImageToolName is the tool the drawer calls after generating an image.
const DisplayImageToolName = "display_image_with_adk"

// Display statuses.
const (
	DisplayStatusSuccess = "success"
	DisplayStatusFailed  = "failed"
)

// DisplayResult is the outcome of DisplayImage. It is one of DisplaySuccess,
// DisplayNotFound or DisplayFailure.
type DisplayResult interface {
	// ToMap renders the result as the tool response.
	ToMap() map[string]any

	displayResult()
}

// DisplaySuccess means the image was stored as an artifact.
type DisplaySuccess struct {
	Name    string
	Version int64
}

// DisplayNotFound means no file exists at Path.
type DisplayNotFound struct {
	Path string
}

// DisplayFailure covers every other read or save error.
type DisplayFailure struct {
	Message string
}

func (DisplaySuccess) displayResult()  {}
func (DisplayNotFound) displayResult() {}
func (DisplayFailure) displayResult()  {}

func (r DisplaySuccess) ToMap() map[string]any {
	return map[string]any{
		"status": DisplayStatusSuccess,
		"detail": `Image "` + r.Name + `" displayed successfully.`,
	}
}

func (r DisplayNotFound) ToMap() map[string]any {
	return map[string]any{
		"status": DisplayStatusFailed,
		"detail": "Image file not found at path: " + r.Path,
	}
}

func (r DisplayFailure) ToMap() map[string]any {
	return map[string]any{
		"status": DisplayStatusFailed,
		"detail": "An error occurred: " + r.Message,
	}
}

// DisplayImage reads a PNG from disk and saves it as an artifact named after
// the file. Errors never escape: they are reported through the result.
func DisplayImage(ctx context.Context, artifacts agent.Artifacts, path string) DisplayResult {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DisplayNotFound{Path: path}
	}
	if err != nil {
		return DisplayFailure{Message: err.Error()}
	}
	if artifacts == nil {
		return DisplayFailure{Message: "artifact service is not available"}
	}

	name := filepath.Base(path)
	resp, err := artifacts.Save(ctx, name, agent.NewBlobPart(name, "image/png", data))
	if err != nil {
		return DisplayFailure{Message: err.Error()}
	}
	return DisplaySuccess{Name: name, Version: resp.Version}
}

type displayImageArgs struct {
	ImagePath string `json:"image_path" jsonschema:"required,description=Absolute path of the generated PNG image"`
}

// NewDisplayImageTool returns the display_image_with_adk tool. A successful
// save is recorded in the artifact delta of the tool response.
func NewDisplayImageTool() (tool.CallableTool, error) {
	return functiontool.New(functiontool.Config{
		Name:        DisplayImageToolName,
		Description: "Reads an image file from the local disk and displays it in the chat as an artifact.",
	}, func(ctx tool.Context, args displayImageArgs) (map[string]any, error) {
		result := DisplayImage(ctx, ctx.Artifacts(), args.ImagePath)
		switch r := result.(type) {
		case DisplaySuccess:
			ctx.Actions().ArtifactDelta[r.Name] = r.Version
			slog.Info("Displayed image", "artifact", r.Name, "version", r.Version)
		default:
			slog.Warn("Image display failed", "path", args.ImagePath, "detail", r.ToMap()["detail"])
		}
		return result.ToMap(), nil
	})
}
