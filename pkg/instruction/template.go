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

// Package instruction resolves placeholders in agent instructions.
//
//	{city_profile}       - session state value, error when missing
//	{city_weather?}      - optional, empty when missing
//	{user:home_city}     - app:, user: and temp: scoped keys
//	{artifact.notes.txt} - text content of an artifact
//
// Anything between braces that is not a valid key is left untouched, so
// literal braces in a prompt are safe.
package instruction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

var placeholderRegex = regexp.MustCompile(`{+[^{}]*}+`)

var scopePrefixes = []string{"app:", "user:", "temp:"}

// InjectState replaces every placeholder in template with its value.
func InjectState(ctx agent.ReadonlyContext, template string) (string, error) {
	if template == "" {
		return "", nil
	}

	var (
		b    strings.Builder
		last int
	)
	for _, m := range placeholderRegex.FindAllStringIndex(template, -1) {
		b.WriteString(template[last:m[0]])
		repl, err := replace(ctx, template[m[0]:m[1]])
		if err != nil {
			return "", err
		}
		b.WriteString(repl)
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

// Placeholders lists the distinct keys referenced by template.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRegex.FindAllString(template, -1) {
		name := strings.TrimSuffix(strings.TrimSpace(strings.Trim(m, "{}")), "?")
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func replace(ctx agent.ReadonlyContext, match string) (string, error) {
	name := strings.TrimSpace(strings.Trim(match, "{}"))
	name, optional := strings.CutSuffix(name, "?")

	if filename, ok := strings.CutPrefix(name, "artifact."); ok {
		return artifactText(ctx, filename, optional)
	}
	if !validStateName(name) {
		return match, nil
	}

	state := ctx.ReadonlyState()
	if state == nil {
		if optional {
			return "", nil
		}
		return "", errors.New("session state not available")
	}

	value, err := state.Get(name)
	if err != nil {
		if optional {
			return "", nil
		}
		return "", fmt.Errorf("state key %q: %w", name, err)
	}
	if value == nil {
		return "", nil
	}
	return fmt.Sprint(value), nil
}

func artifactText(ctx agent.ReadonlyContext, filename string, optional bool) (string, error) {
	fail := func(err error) (string, error) {
		if optional {
			return "", nil
		}
		return "", err
	}

	cb, ok := ctx.(agent.CallbackContext)
	if !ok || cb.Artifacts() == nil || filename == "" {
		return fail(fmt.Errorf("artifact %q not available", filename))
	}
	part, err := cb.Artifacts().Load(ctx, filename)
	if err != nil {
		return fail(fmt.Errorf("failed to load artifact %q: %w", filename, err))
	}
	if tp, ok := part.(a2a.TextPart); ok {
		return tp.Text, nil
	}
	return "", nil
}

func validStateName(name string) bool {
	for _, prefix := range scopePrefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return isIdentifier(rest)
		}
	}
	return isIdentifier(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
