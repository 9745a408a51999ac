package projectstore

import (
	"strings"
	"time"

	"bondarchitect/internal/state"
)

// Record is the durable unit of storage: one project thread and its full
// agent state, owned by exactly one user.
type Record struct {
	ThreadID  string            `json:"thread_id"`
	UserID    string            `json:"user_id"`
	CreatedAt int64             `json:"created_at"`
	State     *state.AgentState `json:"state"`
}

// Summary is the lightweight listing view of a thread.
type Summary struct {
	ThreadID    string `json:"id"`
	Name        string `json:"name"`
	Notes       string `json:"notes,omitempty"`
	CurrentNode string `json:"currentNode"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"created_at"`
	LastUpdated int64  `json:"lastUpdated"`
}

func (r Record) summary() Summary {
	s := Summary{
		ThreadID:  r.ThreadID,
		CreatedAt: r.CreatedAt,
	}
	if r.State != nil {
		s.Name = r.State.ProjectName
		s.Notes = r.State.ProjectNotes
		s.CurrentNode = string(r.State.CurrentNode)
		s.Status = string(r.State.Status)
		s.LastUpdated = r.State.LastUpdated
	}
	if s.Name == "" {
		s.Name = "Untitled Project"
	}
	return s
}

func normalizeRecord(r Record) Record {
	r.ThreadID = strings.TrimSpace(r.ThreadID)
	r.UserID = strings.TrimSpace(r.UserID)
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().UnixMilli()
	}
	return r
}
