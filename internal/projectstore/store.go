// Package projectstore persists one AgentState per (user, thread) pair.
// It is the single source of truth for project progress: reads and writes
// are atomic at whole-record granularity and last-writer-wins, which is
// sound because the workflow runs at most one stage per thread at a time.
//
// Two backends share the Store type: a JSON-file tree for local use and
// Postgres (pgx through database/sql) selected by DSN.
package projectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"bondarchitect/internal/state"
)

var (
	ErrNotFound  = errors.New("projectstore: thread not found")
	ErrInvalidID = errors.New("projectstore: invalid identifier")
)

type Store struct {
	dir string
	db  *sql.DB

	mu sync.Mutex

	schemaOnce sync.Once
	schemaErr  error
}

// NewFile stores records as JSON files under dir/<user>/<thread>.json.
func NewFile(dir string) *Store {
	return &Store{dir: dir}
}

// NewPostgres connects to Postgres via the pgx stdlib driver.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// NewFromEnv picks Postgres when PROJECT_STORE_PG_DSN is set and reachable,
// falling back to the file backend.
func NewFromEnv(dir string) *Store {
	dsn := strings.TrimSpace(os.Getenv("PROJECT_STORE_PG_DSN"))
	if dsn == "" {
		return NewFile(dir)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return NewFile(dir)
	}
	return s
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Create allocates a fresh thread id and persists the initial state.
func (s *Store) Create(ctx context.Context, userID string, st *state.AgentState) (Record, error) {
	userID = strings.TrimSpace(userID)
	if err := checkID(userID); err != nil {
		return Record{}, err
	}
	rec := normalizeRecord(Record{
		ThreadID:  uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now().UnixMilli(),
		State:     st,
	})
	if err := s.put(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Load returns the record, or ErrNotFound when the thread is absent or
// owned by a different user.
func (s *Store) Load(ctx context.Context, userID, threadID string) (Record, error) {
	userID = strings.TrimSpace(userID)
	threadID = strings.TrimSpace(threadID)
	if err := checkID(userID); err != nil {
		return Record{}, err
	}
	if err := checkID(threadID); err != nil {
		return Record{}, err
	}
	var (
		rec Record
		err error
	)
	if s.db != nil {
		rec, err = s.getDB(ctx, threadID)
	} else {
		rec, err = s.getFile(userID, threadID)
	}
	if err != nil {
		return Record{}, err
	}
	if rec.UserID != userID {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return rec, nil
}

// Save overwrites the thread's state wholesale and bumps LastUpdated.
func (s *Store) Save(ctx context.Context, userID, threadID string, st *state.AgentState) (Record, error) {
	rec, err := s.Load(ctx, userID, threadID)
	if err != nil {
		return Record{}, err
	}
	st.Touch()
	rec.State = st
	if err := s.put(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns the user's threads, most recently updated first.
func (s *Store) List(ctx context.Context, userID string) ([]Summary, error) {
	userID = strings.TrimSpace(userID)
	if err := checkID(userID); err != nil {
		return nil, err
	}
	var (
		recs []Record
		err  error
	)
	if s.db != nil {
		recs, err = s.listDB(ctx, userID)
	} else {
		recs, err = s.listFile(userID)
	}
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated > out[j].LastUpdated })
	return out, nil
}

// Delete removes the thread. Removing an absent thread is not an error.
func (s *Store) Delete(ctx context.Context, userID, threadID string) error {
	userID = strings.TrimSpace(userID)
	threadID = strings.TrimSpace(threadID)
	if err := checkID(userID); err != nil {
		return err
	}
	if err := checkID(threadID); err != nil {
		return err
	}
	if s.db != nil {
		return s.deleteDB(ctx, userID, threadID)
	}
	return s.deleteFile(userID, threadID)
}

func (s *Store) put(ctx context.Context, rec Record) error {
	if s.db != nil {
		return s.putDB(ctx, rec)
	}
	return s.putFile(rec)
}

// checkID rejects identifiers that could escape the storage namespace.
func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}
