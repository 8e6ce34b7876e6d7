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

	"github.com/a2aproject/a2a-go/a2asrv"
)

// Interceptor bridges HTTP claims into the A2A call context.
type Interceptor struct {
	// RequireAuth rejects calls that reach the A2A handler without claims.
	RequireAuth bool
}

// NewInterceptor creates an A2A call interceptor.
func NewInterceptor(requireAuth bool) *Interceptor {
	return &Interceptor{RequireAuth: requireAuth}
}

// Before sets the authenticated user from the claims stored by Middleware.
func (i *Interceptor) Before(ctx context.Context, callCtx *a2asrv.CallContext, _ *a2asrv.Request) (context.Context, error) {
	claims := ClaimsFromContext(ctx)
	if claims != nil {
		callCtx.User = &User{claims: claims}
	} else if i.RequireAuth {
		return ctx, ErrUnauthorized
	}
	return ctx, nil
}

// After is a no-op.
func (i *Interceptor) After(context.Context, *a2asrv.CallContext, *a2asrv.Response) error {
	return nil
}

var _ a2asrv.CallInterceptor = (*Interceptor)(nil)

// User is an a2asrv.User backed by validated claims.
type User struct {
	claims *Claims
}

// Name returns the token subject.
func (u *User) Name() string {
	if u.claims == nil {
		return ""
	}
	return u.claims.Subject
}

func (u *User) Authenticated() bool { return true }

// Claims returns the underlying claims.
func (u *User) Claims() *Claims { return u.claims }

var _ a2asrv.User = (*User)(nil)

// UserFromCallContext returns the authenticated user, or nil.
func UserFromCallContext(callCtx *a2asrv.CallContext) *User {
	if callCtx == nil || callCtx.User == nil {
		return nil
	}
	user, _ := callCtx.User.(*User)
	return user
}
