// Package service is the application layer between the HTTP handlers and
// the workflow machine: it owns per-thread serialization, persistence of
// every state transition, change notification, and best-effort archiving
// of terminal artifacts.
package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"bondarchitect/internal/library"
	"bondarchitect/internal/projectstore"
	"bondarchitect/internal/reportstore"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

// updatableFields is the closed set of state slots a client may overwrite
// directly. Everything else only changes through a stage run.
var updatableFields = map[string]struct{}{
	"spec":             {},
	"project_notes":    {},
	"generated_code":   {},
	"physicist_output": {},
	"curator_output":   {},
}

type Service struct {
	store   *projectstore.Store
	machine *workflow.Machine
	library *library.Registry
	// archive is nil when artifact archiving is not configured.
	archive *reportstore.Store

	hub *watchHub

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(store *projectstore.Store, machine *workflow.Machine, lib *library.Registry, archive *reportstore.Store) *Service {
	return &Service{
		store:   store,
		machine: machine,
		library: lib,
		archive: archive,
		hub:     newWatchHub(),
		busy:    make(map[string]struct{}),
	}
}

// acquire marks the thread as running one stage pipeline. A second run
// request while the first is in flight is a client error, not a queue.
func (s *Service) acquire(userID, threadID string) error {
	key := watchKey(userID, threadID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.busy[key]; running {
		return workflow.NewValidationError("thread %s is already running a stage", threadID)
	}
	s.busy[key] = struct{}{}
	return nil
}

func (s *Service) release(userID, threadID string) {
	s.mu.Lock()
	delete(s.busy, watchKey(userID, threadID))
	s.mu.Unlock()
}

// Start creates a new project thread and runs the Planner once.
func (s *Service) Start(ctx context.Context, userID, projectName, request string) (projectstore.Record, error) {
	if strings.TrimSpace(request) == "" {
		return projectstore.Record{}, workflow.NewValidationError("request text is required")
	}
	st := state.New(projectName, request)
	rec, err := s.store.Create(ctx, userID, st)
	if err != nil {
		return projectstore.Record{}, err
	}
	return s.runStage(ctx, userID, rec.ThreadID, st, func(runCtx context.Context) error {
		return s.machine.Start(runCtx, st)
	})
}

// Resume advances a paused or errored thread by one pipeline segment.
func (s *Service) Resume(ctx context.Context, userID, threadID string) (projectstore.Record, error) {
	rec, err := s.store.Load(ctx, userID, threadID)
	if err != nil {
		return projectstore.Record{}, err
	}
	st := rec.State
	return s.runStage(ctx, userID, threadID, st, func(runCtx context.Context) error {
		return s.machine.Resume(runCtx, st)
	})
}

// Refine replaces the spec with a human-edited one, clears downstream
// artifacts and re-runs the Planner.
func (s *Service) Refine(ctx context.Context, userID, threadID string, edited *spec.BiologicalSpec) (projectstore.Record, error) {
	rec, err := s.store.Load(ctx, userID, threadID)
	if err != nil {
		return projectstore.Record{}, err
	}
	st := rec.State
	return s.runStage(ctx, userID, threadID, st, func(runCtx context.Context) error {
		return s.machine.Refine(runCtx, st, edited)
	})
}

// runStage serializes the run per thread, detaches the stage from the
// request's cancellation, and persists the resulting state whether the
// stage succeeded or failed. Stage failures live in the state's status and
// message log, not in the returned error.
func (s *Service) runStage(ctx context.Context, userID, threadID string, st *state.AgentState, fn func(context.Context) error) (projectstore.Record, error) {
	if err := s.acquire(userID, threadID); err != nil {
		return projectstore.Record{}, err
	}
	defer s.release(userID, threadID)

	// A dropped client must not abort a stage that is already paying for
	// an external call; the result is persisted and picked up by polling.
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Printf("thread %s: stage run: %v", threadID, err)
	}
	rec, err := s.store.Save(ctx, userID, threadID, st)
	if err != nil {
		return projectstore.Record{}, err
	}
	s.notify(userID, rec)
	if st.Terminal() {
		s.archiveArtifacts(userID, threadID, st)
	}
	return rec, nil
}

// Poll returns the thread's current record.
func (s *Service) Poll(ctx context.Context, userID, threadID string) (projectstore.Record, error) {
	return s.store.Load(ctx, userID, threadID)
}

// List returns the user's project summaries, most recently updated first.
func (s *Service) List(ctx context.Context, userID string) ([]projectstore.Summary, error) {
	return s.store.List(ctx, userID)
}

// Delete removes the thread and tells watchers it is gone.
func (s *Service) Delete(ctx context.Context, userID, threadID string) error {
	if err := s.store.Delete(ctx, userID, threadID); err != nil {
		return err
	}
	s.hub.Publish(userID, threadID, Event{ThreadID: threadID, Deleted: true})
	return nil
}

// Rename sets the project display name.
func (s *Service) Rename(ctx context.Context, userID, threadID, name string) (projectstore.Record, error) {
	if strings.TrimSpace(name) == "" {
		return projectstore.Record{}, workflow.NewValidationError("project name is required")
	}
	rec, err := s.store.Load(ctx, userID, threadID)
	if err != nil {
		return projectstore.Record{}, err
	}
	rec.State.ProjectName = strings.TrimSpace(name)
	saved, err := s.store.Save(ctx, userID, threadID, rec.State)
	if err != nil {
		return projectstore.Record{}, err
	}
	s.notify(userID, saved)
	return saved, nil
}

// UpdateField overwrites one whitelisted state slot with a client-supplied
// value. The write is whole-record atomic like every other save.
func (s *Service) UpdateField(ctx context.Context, userID, threadID, field string, value json.RawMessage) (projectstore.Record, error) {
	field = strings.TrimSpace(field)
	if _, ok := updatableFields[field]; !ok {
		return projectstore.Record{}, workflow.NewValidationError("field %q is not updatable", field)
	}
	rec, err := s.store.Load(ctx, userID, threadID)
	if err != nil {
		return projectstore.Record{}, err
	}
	st := rec.State
	if err := applyField(st, field, value); err != nil {
		return projectstore.Record{}, err
	}
	saved, err := s.store.Save(ctx, userID, threadID, st)
	if err != nil {
		return projectstore.Record{}, err
	}
	s.notify(userID, saved)
	return saved, nil
}

func applyField(st *state.AgentState, field string, value json.RawMessage) error {
	switch field {
	case "spec":
		var sp spec.BiologicalSpec
		if err := json.Unmarshal(value, &sp); err != nil {
			return workflow.NewValidationError("invalid spec payload: %v", err)
		}
		sp.Normalize()
		st.Spec = &sp
	case "project_notes":
		var notes string
		if err := json.Unmarshal(value, &notes); err != nil {
			return workflow.NewValidationError("invalid project_notes payload: %v", err)
		}
		st.ProjectNotes = notes
	case "generated_code":
		var code string
		if err := json.Unmarshal(value, &code); err != nil {
			return workflow.NewValidationError("invalid generated_code payload: %v", err)
		}
		st.GeneratedCode = code
	case "physicist_output":
		var out state.PhysicistOutput
		if err := json.Unmarshal(value, &out); err != nil {
			return workflow.NewValidationError("invalid physicist_output payload: %v", err)
		}
		st.PhysicistOutput = &out
	case "curator_output":
		var out state.CuratorOutput
		if err := json.Unmarshal(value, &out); err != nil {
			return workflow.NewValidationError("invalid curator_output payload: %v", err)
		}
		st.CuratorOutput = &out
	}
	return nil
}

// UpdateScore records a user confidence override in the match matrix and
// keeps the dependent mechanism assignment in sync.
func (s *Service) UpdateScore(ctx context.Context, userID, threadID, libraryID, mechanismID string, score float64) (projectstore.Record, error) {
	rec, err := s.store.Load(ctx, userID, threadID)
	if err != nil {
		return projectstore.Record{}, err
	}
	st := rec.State
	if st.Spec == nil {
		return projectstore.Record{}, workflow.NewValidationError("thread %s has no spec yet", threadID)
	}
	if err := st.Spec.ApplyScore(libraryID, mechanismID, score); err != nil {
		return projectstore.Record{}, err
	}
	saved, err := s.store.Save(ctx, userID, threadID, st)
	if err != nil {
		return projectstore.Record{}, err
	}
	s.notify(userID, saved)
	return saved, nil
}

// Library returns the registry mapping served to the client.
func (s *Service) Library() map[string]library.LibraryModel {
	return s.library.All()
}

// LibraryDetail returns one model's full declaration.
func (s *Service) LibraryDetail(id string) (*library.DetailedLibraryModel, error) {
	return s.library.Detailed(id)
}

// RefreshLibrary re-reads the registry from disk.
func (s *Service) RefreshLibrary() error {
	return s.library.Refresh()
}

// Watch subscribes to a thread's change events.
func (s *Service) Watch(userID, threadID string) chan Event {
	return s.hub.Subscribe(userID, threadID)
}

// Unwatch releases a subscription created by Watch.
func (s *Service) Unwatch(userID, threadID string, ch chan Event) {
	s.hub.Unsubscribe(userID, threadID, ch)
}

func (s *Service) notify(userID string, rec projectstore.Record) {
	s.hub.Publish(userID, rec.ThreadID, Event{
		ThreadID:    rec.ThreadID,
		CurrentNode: string(rec.State.CurrentNode),
		Status:      string(rec.State.Status),
		LastUpdated: rec.State.LastUpdated,
	})
}

// archiveArtifacts pushes the terminal artifacts to the report bucket.
// Failures are logged and never surfaced to the client.
func (s *Service) archiveArtifacts(userID, threadID string, st *state.AgentState) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if st.SimulationReport != "" {
		if err := s.archive.Put(ctx, userID, threadID, "simulation_report.md", []byte(st.SimulationReport), "text/markdown"); err != nil {
			log.Printf("thread %s: archive report: %v", threadID, err)
		}
	}
	if st.GeneratedCode != "" {
		if err := s.archive.Put(ctx, userID, threadID, "model_code.py", []byte(st.GeneratedCode), "text/x-python"); err != nil {
			log.Printf("thread %s: archive code: %v", threadID, err)
		}
	}
}
