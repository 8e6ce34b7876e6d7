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

package task_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/cityscape/pkg/session"
	"github.com/kadirpekel/cityscape/pkg/task"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	store, err := task.NewSQLStore(openDB(t), "sqlite3")
	require.NoError(t, err)
	ctx := context.Background()

	tk := &a2a.Task{
		ID:        a2a.TaskID("task-1"),
		ContextID: "session-1",
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking},
		Artifacts: []*a2a.Artifact{{
			Parts: []a2a.Part{a2a.TextPart{Text: "Zurich"}},
		}},
	}
	require.NoError(t, store.Save(ctx, tk))

	tk.Status = a2a.TaskStatus{State: a2a.TaskStateCompleted}
	require.NoError(t, store.Save(ctx, tk))

	got, err := store.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)
	assert.Equal(t, "session-1", got.ContextID)
	assert.Equal(t, a2a.TaskStateCompleted, got.Status.State)
	require.Len(t, got.Artifacts, 1)
	require.Len(t, got.Artifacts[0].Parts, 1)
	assert.Equal(t, a2a.TextPart{Text: "Zurich"}, got.Artifacts[0].Parts[0])
}

func TestSQLStore_NotFound(t *testing.T) {
	store, err := task.NewSQLStore(openDB(t), session.DialectSQLite)
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, a2a.ErrTaskNotFound)
}

func TestNewSQLStore_Validation(t *testing.T) {
	_, err := task.NewSQLStore(nil, session.DialectSQLite)
	assert.Error(t, err)

	_, err = task.NewSQLStore(openDB(t), "oracle")
	assert.Error(t, err)
}

func TestNewStoreForSessions(t *testing.T) {
	store, err := task.NewStoreForSessions(session.InMemoryService())
	require.NoError(t, err)
	assert.Nil(t, store)

	svc, err := session.NewSQLService(openDB(t), session.DialectSQLite)
	require.NoError(t, err)
	store, err = task.NewStoreForSessions(svc)
	require.NoError(t, err)
	assert.NotNil(t, store)
}
