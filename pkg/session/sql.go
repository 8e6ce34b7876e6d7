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
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/cityscape/pkg/agent"
)

// SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// SQLService implements Service on database/sql. Concurrency is handled
// by transactions.
type SQLService struct {
	db      *sql.DB
	dialect string
}

const createSessionsSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    id VARCHAR(255) NOT NULL,
    state_json TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, id)
)`

const createAppStatesSQL = `
CREATE TABLE IF NOT EXISTS app_states (
    app_name VARCHAR(255) PRIMARY KEY,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createUserStatesSQL = `
CREATE TABLE IF NOT EXISTS user_states (
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    state_json TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id)
)`

const createEventsSQL = `
CREATE TABLE IF NOT EXISTS session_events (
    id VARCHAR(255) NOT NULL,
    app_name VARCHAR(255) NOT NULL,
    user_id VARCHAR(255) NOT NULL,
    session_id VARCHAR(255) NOT NULL,
    invocation_id VARCHAR(255),
    author VARCHAR(255),
    branch VARCHAR(255),
    message_json TEXT,
    actions_json TEXT,
    turn_complete BOOLEAN DEFAULT FALSE,
    error_code VARCHAR(100),
    error_message TEXT,
    metadata_json TEXT,
    sequence_num INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (app_name, user_id, session_id, id)
)`

// NewSQLService creates the schema if needed and returns the service.
func NewSQLService(db *sql.DB, dialect string) (*SQLService, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	switch dialect {
	case DialectSQLite, "sqlite3":
		dialect = DialectSQLite
	case DialectPostgres, DialectMySQL:
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", dialect)
	}

	s := &SQLService{db: db, dialect: dialect}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLService) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// one statement per Exec for sqlite
	for _, stmt := range []string{createSessionsSQL, createAppStatesSQL, createUserStatesSQL, createEventsSQL} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// DB returns the underlying connection so other stores can share it.
func (s *SQLService) DB() *sql.DB { return s.db }

// Dialect returns the normalized SQL dialect.
func (s *SQLService) Dialect() string { return s.dialect }

// Close closes the database connection.
func (s *SQLService) Close() error {
	return s.db.Close()
}

// Create creates a new session.
func (s *SQLService) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now().UTC()

	appDelta, userDelta, sessionState := extractStateDeltas(req.State)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.mergeScopedTx(ctx, tx, req.AppName, req.UserID, appDelta, userDelta, now); err != nil {
		return nil, err
	}

	stateJSON, err := json.Marshal(sessionState)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.rebind(
		`INSERT INTO sessions (app_name, user_id, id, state_json, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		req.AppName, req.UserID, sessionID, string(stateJSON), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	appState, err := s.loadScoped(ctx, "app_states", "app_name = ?", req.AppName)
	if err != nil {
		return nil, err
	}
	userState, err := s.loadScoped(ctx, "user_states", "app_name = ? AND user_id = ?", req.AppName, req.UserID)
	if err != nil {
		return nil, err
	}

	sess := newMemorySession(req.AppName, req.UserID, sessionID,
		mergeStates(appState, userState, sessionState), nil, now)
	return &CreateResponse{Session: sess}, nil
}

// Get loads a session with merged state and its event history.
func (s *SQLService) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	var (
		stateJSON sql.NullString
		updated   time.Time
	)
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT state_json, updated_at FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`),
		req.AppName, req.UserID, req.SessionID).Scan(&stateJSON, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sessionState, err := decodeState(stateJSON.String)
	if err != nil {
		return nil, err
	}
	appState, err := s.loadScoped(ctx, "app_states", "app_name = ?", req.AppName)
	if err != nil {
		return nil, err
	}
	userState, err := s.loadScoped(ctx, "user_states", "app_name = ? AND user_id = ?", req.AppName, req.UserID)
	if err != nil {
		return nil, err
	}

	events, err := s.loadEvents(ctx, req.AppName, req.UserID, req.SessionID, req.NumRecentEvents)
	if err != nil {
		return nil, err
	}

	sess := newMemorySession(req.AppName, req.UserID, req.SessionID,
		mergeStates(appState, userState, sessionState), events, updated)
	return &GetResponse{Session: sess}, nil
}

// List returns sessions of an app, optionally filtered by user, newest first.
func (s *SQLService) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	query := `SELECT user_id, id, state_json, updated_at FROM sessions WHERE app_name = ?`
	args := []any{req.AppName}
	if req.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, req.UserID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			userID, id string
			stateJSON  sql.NullString
			updated    time.Time
		)
		if err := rows.Scan(&userID, &id, &stateJSON, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		state, err := decodeState(stateJSON.String)
		if err != nil {
			return nil, err
		}
		out = append(out, newMemorySession(req.AppName, userID, id, state, nil, updated))
	}
	return &ListResponse{Sessions: out}, rows.Err()
}

// Delete removes a session and its events.
func (s *SQLService) Delete(ctx context.Context, req *DeleteRequest) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	args := []any{req.AppName, req.UserID, req.SessionID}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`), args...); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`), args...); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// AppendEvent persists the event and its state delta in one transaction.
func (s *SQLService) AppendEvent(ctx context.Context, sess agent.Session, event *agent.Event) error {
	if sess == nil || event == nil {
		return errors.New("session and event are required")
	}
	if event.Partial {
		return nil
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	appDelta, userDelta, sessionDelta := extractStateDeltas(event.Actions.StateDelta)
	if err := s.mergeScopedTx(ctx, tx, sess.AppName(), sess.UserID(), appDelta, userDelta, now); err != nil {
		return err
	}

	var stateJSON sql.NullString
	err = tx.QueryRowContext(ctx, s.rebind(
		`SELECT state_json FROM sessions WHERE app_name = ? AND user_id = ? AND id = ?`),
		sess.AppName(), sess.UserID(), sess.ID()).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load session state: %w", err)
	}
	state, err := decodeState(stateJSON.String)
	if err != nil {
		return err
	}
	applyDelta(state, sessionDelta)
	encoded, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE sessions SET state_json = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND id = ?`),
		string(encoded), now, sess.AppName(), sess.UserID(), sess.ID()); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	var seq int
	if err := tx.QueryRowContext(ctx, s.rebind(
		`SELECT COALESCE(MAX(sequence_num), 0) + 1 FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?`),
		sess.AppName(), sess.UserID(), sess.ID()).Scan(&seq); err != nil {
		return fmt.Errorf("failed to get sequence number: %w", err)
	}

	row, err := encodeEvent(event)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(
		`INSERT INTO session_events (id, app_name, user_id, session_id, invocation_id, author, branch,
		 message_json, actions_json, turn_complete, error_code, error_message, metadata_json, sequence_num, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		event.ID, sess.AppName(), sess.UserID(), sess.ID(), event.InvocationID, event.Author, event.Branch,
		row.message, row.actions, event.TurnComplete, event.ErrorCode, event.ErrorMessage, row.metadata,
		seq, event.Timestamp.UTC()); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	applyToSession(sess, event, now)
	return nil
}

func (s *SQLService) loadEvents(ctx context.Context, appName, userID, sessionID string, numRecent int) ([]*agent.Event, error) {
	query := `SELECT id, invocation_id, author, branch, message_json, actions_json, turn_complete,
	          error_code, error_message, metadata_json, created_at
	          FROM session_events WHERE app_name = ? AND user_id = ? AND session_id = ?
	          ORDER BY sequence_num DESC`
	if numRecent > 0 {
		query += ` LIMIT ` + strconv.Itoa(numRecent)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), appName, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var events []*agent.Event
	for rows.Next() {
		var (
			ev                           agent.Event
			invocationID, author, branch sql.NullString
			message, actions, metadata   sql.NullString
			errorCode, errorMessage      sql.NullString
		)
		if err := rows.Scan(&ev.ID, &invocationID, &author, &branch, &message, &actions,
			&ev.TurnComplete, &errorCode, &errorMessage, &metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.InvocationID = invocationID.String
		ev.Author = author.String
		ev.Branch = branch.String
		ev.ErrorCode = errorCode.String
		ev.ErrorMessage = errorMessage.String
		if err := decodeEvent(&ev, message.String, actions.String, metadata.String); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// rows come newest first so LIMIT keeps the tail
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

func (s *SQLService) loadScoped(ctx context.Context, table, where string, args ...any) (map[string]any, error) {
	var stateJSON string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT state_json FROM `+table+` WHERE `+where), args...).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	return decodeState(stateJSON)
}

func (s *SQLService) mergeScopedTx(ctx context.Context, tx *sql.Tx, appName, userID string, appDelta, userDelta map[string]any, now time.Time) error {
	if len(appDelta) > 0 {
		if err := s.upsertScopedTx(ctx, tx, "app_states", []string{"app_name"}, []any{appName}, appDelta, now); err != nil {
			return fmt.Errorf("failed to save app state: %w", err)
		}
	}
	if len(userDelta) > 0 {
		if err := s.upsertScopedTx(ctx, tx, "user_states", []string{"app_name", "user_id"}, []any{appName, userID}, userDelta, now); err != nil {
			return fmt.Errorf("failed to save user state: %w", err)
		}
	}
	return nil
}

func (s *SQLService) upsertScopedTx(ctx context.Context, tx *sql.Tx, table string, keys []string, keyArgs []any, delta map[string]any, now time.Time) error {
	where := strings.Join(keys, " = ? AND ") + " = ?"

	var current string
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT state_json FROM `+table+` WHERE `+where), keyArgs...).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	state, err := decodeState(current)
	if err != nil {
		return err
	}
	applyDelta(state, delta)
	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}

	cols := strings.Join(keys, ", ")
	placeholders := strings.Repeat("?, ", len(keys)) + "?, ?"
	var query string
	switch s.dialect {
	case DialectMySQL:
		query = `INSERT INTO ` + table + ` (` + cols + `, state_json, updated_at) VALUES (` + placeholders + `)
		         ON DUPLICATE KEY UPDATE state_json = VALUES(state_json), updated_at = VALUES(updated_at)`
	default:
		query = `INSERT INTO ` + table + ` (` + cols + `, state_json, updated_at) VALUES (` + placeholders + `)
		         ON CONFLICT (` + cols + `) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`
	}

	args := append(append([]any{}, keyArgs...), string(encoded), now)
	_, err = tx.ExecContext(ctx, s.rebind(query), args...)
	return err
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (s *SQLService) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 1
	for _, c := range query {
		if c == '?' {
			b.WriteString("$" + strconv.Itoa(n))
			n++
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func decodeState(raw string) (map[string]any, error) {
	state := make(map[string]any)
	if raw == "" || raw == "null" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

var _ Service = (*SQLService)(nil)
