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

package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		dialect string
		driver  string
		dsn     string
	}{
		{"default", "", DialectSQLite, "sqlite3", "file:./sessions.db?_busy_timeout=5000"},
		{"relative sqlite", "sqlite:///./sessions.db", DialectSQLite, "sqlite3", "file:./sessions.db?_busy_timeout=5000"},
		{"absolute sqlite", "sqlite:////var/lib/app/s.db", DialectSQLite, "sqlite3", "file:/var/lib/app/s.db?_busy_timeout=5000"},
		{"sqlite memory", "sqlite:///:memory:", DialectSQLite, "sqlite3", ":memory:"},
		{"postgres", "postgres://u:p@db:5432/app", DialectPostgres, "postgres", "postgres://u:p@db:5432/app"},
		{"postgresql alias", "postgresql://u:p@db/app", DialectPostgres, "postgres", "postgres://u:p@db/app"},
		{"memory", "memory://", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := ParseURI(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.dialect, target.Dialect)
			assert.Equal(t, tt.driver, target.Driver)
			assert.Equal(t, tt.dsn, target.DSN)
		})
	}
}

func TestParseURI_MySQL(t *testing.T) {
	target, err := ParseURI("mysql://app:secret@db:3306/sessions")
	require.NoError(t, err)
	assert.Equal(t, DialectMySQL, target.Dialect)
	assert.Equal(t, "mysql", target.Driver)
	assert.True(t, strings.HasPrefix(target.DSN, "app:secret@tcp(db:3306)/sessions"), target.DSN)
	assert.Contains(t, target.DSN, "parseTime=true")
}

func TestParseURI_Errors(t *testing.T) {
	for _, uri := range []string{"no-scheme", "redis://localhost", "sqlite://"} {
		_, err := ParseURI(uri)
		assert.Error(t, err, uri)
	}
}

func TestNewFromURI_Memory(t *testing.T) {
	svc, err := NewFromURI("memory://")
	require.NoError(t, err)
	_, ok := svc.(*inMemoryService)
	assert.True(t, ok)
}
