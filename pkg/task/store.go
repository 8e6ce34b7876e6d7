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

// Package task persists A2A tasks next to the sessions they belong to.
package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/kadirpekel/cityscape/pkg/session"
)

const createTasksSQL = `
CREATE TABLE IF NOT EXISTS a2a_tasks (
    id VARCHAR(255) PRIMARY KEY,
    context_id VARCHAR(255) NOT NULL,
    state VARCHAR(32) NOT NULL,
    task_json TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createTasksContextIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_a2a_tasks_context_id ON a2a_tasks(context_id)`

// SQLStore implements a2asrv.TaskStore on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

var _ a2asrv.TaskStore = (*SQLStore)(nil)

// NewSQLStore creates the schema if needed. The connection is usually the
// one of the session service, so sqlite sees a single writer.
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	switch dialect {
	case session.DialectSQLite, "sqlite3":
		dialect = session.DialectSQLite
	case session.DialectPostgres, session.DialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &SQLStore{db: db, dialect: dialect}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	stmts := []string{createTasksSQL}
	// mysql has no CREATE INDEX IF NOT EXISTS
	if dialect != session.DialectMySQL {
		stmts = append(stmts, createTasksContextIndexSQL)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize task schema: %w", err)
		}
	}
	return s, nil
}

// NewStoreForSessions returns a task store sharing the database of a SQL
// session service, or nil for any other service. A nil store makes the A2A
// handler fall back to memory.
func NewStoreForSessions(svc session.Service) (a2asrv.TaskStore, error) {
	sqlSvc, ok := svc.(*session.SQLService)
	if !ok {
		return nil, nil
	}
	store, err := NewSQLStore(sqlSvc.DB(), sqlSvc.Dialect())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Save inserts or replaces task.
func (s *SQLStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return errors.New("task is required")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	now := time.Now().UTC()

	var query string
	switch s.dialect {
	case session.DialectPostgres:
		query = `INSERT INTO a2a_tasks (id, context_id, state, task_json, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, task_json = EXCLUDED.task_json, updated_at = EXCLUDED.updated_at`
	case session.DialectMySQL:
		query = `INSERT INTO a2a_tasks (id, context_id, state, task_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE state = VALUES(state), task_json = VALUES(task_json), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO a2a_tasks (id, context_id, state, task_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET state = excluded.state, task_json = excluded.task_json, updated_at = excluded.updated_at`
	}

	if _, err := s.db.ExecContext(ctx, query,
		string(task.ID), task.ContextID, string(task.Status.State), string(data), now, now); err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	return nil
}

// Get loads a task. Unknown IDs return a2a.ErrTaskNotFound.
func (s *SQLStore) Get(ctx context.Context, taskID a2a.TaskID) (*a2a.Task, error) {
	query := `SELECT task_json FROM a2a_tasks WHERE id = ?`
	if s.dialect == session.DialectPostgres {
		query = `SELECT task_json FROM a2a_tasks WHERE id = $1`
	}

	var data string
	err := s.db.QueryRowContext(ctx, query, string(taskID)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	var task a2a.Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	slog.Debug("Loaded A2A task", "task", taskID, "state", task.Status.State)
	return &task, nil
}
