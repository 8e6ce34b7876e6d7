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

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Middleware validates the bearer token of every request not in
// excludedPaths. With requireAuth false, requests without a token pass
// through unauthenticated; a bad token is always rejected.
func Middleware(validator TokenValidator, excludedPaths []string, requireAuth bool) func(http.Handler) http.Handler {
	excluded := make(map[string]bool, len(excludedPaths))
	for _, path := range excludedPaths {
		excluded[strings.TrimSuffix(path, "/")] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcluded(excluded, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				if requireAuth {
					writeAuthError(w, "Missing Authorization header", http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractToken(header)
			if !ok {
				writeAuthError(w, "Invalid Authorization format, expected: Bearer <token>", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				writeAuthError(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// isExcluded matches exact paths and, for agent cards, any path ending in
// an excluded suffix such as /a2a/cityscape/.well-known/agent-card.json.
func isExcluded(excluded map[string]bool, path string) bool {
	path = strings.TrimSuffix(path, "/")
	if excluded[path] {
		return true
	}
	if i := strings.Index(path, "/.well-known/"); i > 0 {
		return excluded[path[i:]]
	}
	return false
}

func extractToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeAuthError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
