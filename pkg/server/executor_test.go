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

package server

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"
	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/cityscape/pkg/auth"
)

func TestToInvocationMeta_UserResolution(t *testing.T) {
	withUser := func(uid string) *a2a.Message {
		msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: "Draw Zurich"})
		msg.Metadata = map[string]any{"user_id": uid}
		return msg
	}
	authed := auth.ContextWithClaims(context.Background(), &auth.Claims{Subject: "alice"})

	tests := []struct {
		name string
		ctx  context.Context
		msg  *a2a.Message
		want string
	}{
		{"claims beat metadata", authed, withUser("mallory"), "alice"},
		{"claims without metadata", authed, a2a.NewMessage(a2a.MessageRoleUser), "alice"},
		{"metadata without claims", context.Background(), withUser("bob"), "bob"},
		{"empty subject falls back to metadata", auth.ContextWithClaims(context.Background(), &auth.Claims{}), withUser("bob"), "bob"},
		{"anonymous", context.Background(), a2a.NewMessage(a2a.MessageRoleUser), DefaultA2AUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := toInvocationMeta(tt.ctx, &a2asrv.RequestContext{Message: tt.msg, ContextID: "ctx-1"})
			assert.Equal(t, tt.want, meta.userID)
			assert.Equal(t, "ctx-1", meta.sessionID)
			assert.Equal(t, tt.want, meta.eventMeta[metaKeyUserID])
		})
	}
}
