package projectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"bondarchitect/internal/state"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS project_threads (
  thread_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  agent_state JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_project_threads_user_id ON project_threads (user_id);
`)
	})
	return s.schemaErr
}

func (s *Store) getDB(ctx context.Context, threadID string) (Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT thread_id, user_id, created_at, agent_state
FROM project_threads WHERE thread_id = $1`, threadID)
	return scanRecord(row)
}

func (s *Store) putDB(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	blob, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO project_threads (thread_id, user_id, created_at, agent_state)
VALUES ($1,$2,$3,$4)
ON CONFLICT (thread_id)
DO UPDATE SET agent_state=EXCLUDED.agent_state`,
		rec.ThreadID, rec.UserID, rec.CreatedAt, blob)
	return err
}

func (s *Store) listDB(ctx context.Context, userID string) ([]Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT thread_id, user_id, created_at, agent_state
FROM project_threads WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) deleteDB(ctx context.Context, userID, threadID string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM project_threads WHERE thread_id = $1 AND user_id = $2`, threadID, userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var blob []byte
	err := row.Scan(&rec.ThreadID, &rec.UserID, &rec.CreatedAt, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w", ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	rec.State = &state.AgentState{}
	if err := json.Unmarshal(blob, rec.State); err != nil {
		return Record{}, fmt.Errorf("projectstore: corrupt state for %s: %w", rec.ThreadID, err)
	}
	return normalizeRecord(rec), nil
}
