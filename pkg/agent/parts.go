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

package agent

import (
	"encoding/base64"
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"
)

// PartJSON is the storage and REST shape of an a2a part.
type PartJSON struct {
	Kind     string         `json:"kind"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Name     string         `json:"name,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
	Bytes    string         `json:"bytes,omitempty"`
	URI      string         `json:"uri,omitempty"`
}

// EncodePart converts an a2a part into its JSON shape.
func EncodePart(part a2a.Part) (PartJSON, error) {
	switch p := part.(type) {
	case a2a.TextPart:
		return PartJSON{Kind: "text", Text: p.Text}, nil
	case a2a.DataPart:
		return PartJSON{Kind: "data", Data: p.Data}, nil
	case a2a.FilePart:
		switch f := p.File.(type) {
		case a2a.FileBytes:
			return PartJSON{Kind: "file", Name: f.Name, MimeType: f.MimeType, Bytes: f.Bytes}, nil
		case a2a.FileURI:
			return PartJSON{Kind: "file", Name: f.Name, MimeType: f.MimeType, URI: f.URI}, nil
		}
	}
	return PartJSON{}, fmt.Errorf("unsupported part type %T", part)
}

// DecodePart converts the JSON shape back into an a2a part.
func DecodePart(p PartJSON) (a2a.Part, error) {
	switch p.Kind {
	case "text":
		return a2a.TextPart{Text: p.Text}, nil
	case "data":
		return a2a.DataPart{Data: p.Data}, nil
	case "file":
		meta := a2a.FileMeta{Name: p.Name, MimeType: p.MimeType}
		if p.URI != "" {
			return a2a.FilePart{File: a2a.FileURI{FileMeta: meta, URI: p.URI}}, nil
		}
		return a2a.FilePart{File: a2a.FileBytes{FileMeta: meta, Bytes: p.Bytes}}, nil
	}
	return nil, fmt.Errorf("unknown part kind %q", p.Kind)
}

// NewBlobPart wraps raw bytes into a file part. The payload is base64
// encoded as the a2a wire format requires.
func NewBlobPart(name, mimeType string, data []byte) a2a.FilePart {
	return a2a.FilePart{File: a2a.FileBytes{
		FileMeta: a2a.FileMeta{Name: name, MimeType: mimeType},
		Bytes:    base64.StdEncoding.EncodeToString(data),
	}}
}

// BlobBytes returns the decoded payload of an inline file part.
func BlobBytes(part a2a.Part) ([]byte, string, error) {
	fp, ok := part.(a2a.FilePart)
	if !ok {
		return nil, "", fmt.Errorf("not a file part: %T", part)
	}
	fb, ok := fp.File.(a2a.FileBytes)
	if !ok {
		return nil, "", fmt.Errorf("file part has no inline bytes")
	}
	data, err := base64.StdEncoding.DecodeString(fb.Bytes)
	if err != nil {
		return nil, "", fmt.Errorf("decode file bytes: %w", err)
	}
	return data, fb.MimeType, nil
}
