package projectstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func (s *Store) recordPath(userID, threadID string) string {
	return filepath.Join(s.dir, userID, threadID+".json")
}

func (s *Store) getFile(userID, threadID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.recordPath(userID, threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("projectstore: corrupt record %s: %w", threadID, err)
	}
	return normalizeRecord(rec), nil
}

// putFile writes the record through a temp file + rename so a poll never
// observes a partially written state.
func (s *Store) putFile(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	path := s.recordPath(rec.UserID, rec.ThreadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) listFile(userID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(s.dir, userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, userID, e.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(b, &rec); err != nil {
			continue
		}
		out = append(out, normalizeRecord(rec))
	}
	return out, nil
}

func (s *Store) deleteFile(userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.recordPath(userID, threadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
