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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/cityscape/pkg/config"
)

const (
	testIssuer   = "https://auth.example.com"
	testAudience = "cityscape"
	testKeyID    = "test-key-id"
)

type fixture struct {
	key       *rsa.PrivateKey
	jwksURL   string
	validator *JWTValidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pub, err := jwk.FromRaw(&key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, pub.Set(jwk.KeyIDKey, testKeyID))
	require.NoError(t, pub.Set(jwk.AlgorithmKey, jwa.RS256))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(pub))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)

	jwksURL := srv.URL + "/.well-known/jwks.json"
	v, err := NewJWTValidator(JWTValidatorConfig{JWKSURL: jwksURL, Issuer: testIssuer, Audience: testAudience})
	require.NoError(t, err)
	t.Cleanup(v.Close)

	return &fixture{key: key, jwksURL: jwksURL, validator: v}
}

func (f *fixture) sign(t *testing.T, mutate func(jwt.Token)) string {
	t.Helper()

	tok := jwt.New()
	require.NoError(t, tok.Set(jwt.IssuerKey, testIssuer))
	require.NoError(t, tok.Set(jwt.AudienceKey, testAudience))
	require.NoError(t, tok.Set(jwt.SubjectKey, "user-1"))
	require.NoError(t, tok.Set(jwt.IssuedAtKey, time.Now()))
	require.NoError(t, tok.Set(jwt.ExpirationKey, time.Now().Add(time.Hour)))
	if mutate != nil {
		mutate(tok)
	}

	key, err := jwk.FromRaw(f.key)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, testKeyID))

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestJWTValidator_ValidToken(t *testing.T) {
	f := newFixture(t)
	token := f.sign(t, func(tok jwt.Token) {
		_ = tok.Set("email", "traveler@example.com")
		_ = tok.Set("role", "admin")
		_ = tok.Set("home_city", "Zurich")
	})

	claims, err := f.validator.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "traveler@example.com", claims.Email)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "Zurich", claims.GetStringClaim("home_city"))
	_, ok := claims.GetClaim("email")
	assert.False(t, ok)
}

func TestJWTValidator_Rejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(jwt.Token)
		want   error
	}{
		{"expired", func(tok jwt.Token) { _ = tok.Set(jwt.ExpirationKey, time.Now().Add(-time.Hour)) }, ErrTokenExpired},
		{"wrong issuer", func(tok jwt.Token) { _ = tok.Set(jwt.IssuerKey, "https://evil.example.com") }, ErrInvalidToken},
		{"wrong audience", func(tok jwt.Token) { _ = tok.Set(jwt.AudienceKey, "other") }, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.validator.ValidateToken(context.Background(), f.sign(t, tt.mutate))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.validator.ValidateToken(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTValidator_FetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewJWTValidator(JWTValidatorConfig{JWKSURL: srv.URL + "/jwks.json"})
	assert.Error(t, err)

	_, err = NewJWTValidator(JWTValidatorConfig{})
	assert.Error(t, err)
}

func TestNewValidatorFromConfig(t *testing.T) {
	v, err := NewValidatorFromConfig(&config.AuthConfig{})
	require.NoError(t, err)
	assert.Nil(t, v)

	f := newFixture(t)
	v, err = NewValidatorFromConfig(&config.AuthConfig{
		Enabled:  true,
		JWKSURL:  f.jwksURL,
		Issuer:   testIssuer,
		Audience: testAudience,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
	v.Close()
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	valid := f.sign(t, nil)

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	excluded := []string{"/health", "/.well-known/agent-card.json"}

	tests := []struct {
		name        string
		requireAuth bool
		path        string
		header      string
		wantStatus  int
		wantClaims  bool
	}{
		{"valid token", true, "/run", "Bearer " + valid, http.StatusOK, true},
		{"lowercase scheme", true, "/run", "bearer " + valid, http.StatusOK, true},
		{"missing token", true, "/run", "", http.StatusUnauthorized, false},
		{"missing token optional", false, "/run", "", http.StatusOK, false},
		{"bad token optional", false, "/run", "Bearer nope", http.StatusUnauthorized, false},
		{"basic scheme", true, "/run", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, false},
		{"health excluded", true, "/health", "", http.StatusOK, false},
		{"agent card excluded", true, "/a2a/cityscape/.well-known/agent-card.json", "", http.StatusOK, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			Middleware(f.validator, excluded, tt.requireAuth)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantClaims, seen != nil)
			if rec.Code == http.StatusUnauthorized {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestInterceptor(t *testing.T) {
	claims := &Claims{Subject: "user-1"}

	callCtx := &a2asrv.CallContext{}
	_, err := NewInterceptor(true).Before(ContextWithClaims(context.Background(), claims), callCtx, &a2asrv.Request{})
	require.NoError(t, err)
	user := UserFromCallContext(callCtx)
	require.NotNil(t, user)
	assert.Equal(t, "user-1", user.Name())
	assert.True(t, user.Authenticated())
	assert.Same(t, claims, user.Claims())

	_, err = NewInterceptor(true).Before(context.Background(), &a2asrv.CallContext{}, &a2asrv.Request{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	anon := &a2asrv.CallContext{}
	_, err = NewInterceptor(false).Before(context.Background(), anon, &a2asrv.Request{})
	require.NoError(t, err)
	assert.Nil(t, UserFromCallContext(anon))
}
