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

package remoteagent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a2aproject/a2a-go/a2asrv"
	"google.golang.org/api/idtoken"
)

// TokenFetcher returns a bearer identity token for audience.
type TokenFetcher func(ctx context.Context, audience string) (string, error)

// Origin returns the scheme and host of rawURL, e.g.
// "https://trip.example.com" for "https://trip.example.com/a2a/trip".
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: scheme and host are required", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// CardURL returns the agent card location: base followed by the well-known
// card path, without normalization.
func CardURL(base string) string {
	return base + a2asrv.WellKnownAgentCardPath
}

// GoogleIDToken fetches a Google-signed identity token using application
// default credentials.
func GoogleIDToken(ctx context.Context, audience string) (string, error) {
	ts, err := idtoken.NewTokenSource(ctx, audience)
	if err != nil {
		return "", err
	}
	tok, err := ts.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// NewIDTokenClient returns an HTTP client that attaches a freshly fetched
// identity token to every request. A nil fetcher uses GoogleIDToken.
func NewIDTokenClient(ctx context.Context, audience string, fetch TokenFetcher) (*http.Client, error) {
	if audience == "" {
		return nil, errors.New("identity token audience is required")
	}
	if fetch == nil {
		fetch = GoogleIDToken
	}
	return &http.Client{
		Transport: &idTokenTransport{
			base:     http.DefaultTransport,
			audience: audience,
			fetch:    fetch,
		},
	}, nil
}

type idTokenTransport struct {
	base     http.RoundTripper
	audience string
	fetch    TokenFetcher
}

func (t *idTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.fetch(req.Context(), t.audience)
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, fmt.Errorf("fetch identity token for %s: %w", t.audience, err)
	}

	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(authed)
}
