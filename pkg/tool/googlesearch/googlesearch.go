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

// Package googlesearch provides the built-in Google Search grounding tool.
//
// The tool is never called locally. It switches on search grounding in the
// Gemini request, and the model runs the search on the provider side.
package googlesearch

import (
	"fmt"

	"github.com/kadirpekel/cityscape/pkg/model"
	"github.com/kadirpekel/cityscape/pkg/tool"
)

// Name is the tool name shown in logs.
const Name = "google_search"

// Tool is the Google Search built-in.
type Tool struct{}

// New returns the Google Search tool.
func New() *Tool { return &Tool{} }

func (*Tool) Name() string { return Name }

func (*Tool) Description() string {
	return "Searches the web with Google and grounds the answer in the results."
}

func (*Tool) IsLongRunning() bool { return false }

// ProcessRequest enables search grounding on the request config.
func (*Tool) ProcessRequest(_ tool.Context, req *tool.Request) error {
	cfg, ok := req.Config.(*model.GenerateConfig)
	if !ok || cfg == nil {
		return fmt.Errorf("%s: unsupported request config %T", Name, req.Config)
	}
	cfg.GoogleSearch = true
	return nil
}

var (
	_ tool.Tool             = (*Tool)(nil)
	_ tool.RequestProcessor = (*Tool)(nil)
)
