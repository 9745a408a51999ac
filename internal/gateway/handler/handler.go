// Package handler exposes the service as a JSON-over-HTTP API. Clients
// drive the workflow with POSTs and read progress by polling or through
// the watch websocket.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"bondarchitect/internal/gateway/service"
	"bondarchitect/internal/library"
	"bondarchitect/internal/projectstore"
	"bondarchitect/internal/spec"
	"bondarchitect/internal/state"
	"bondarchitect/internal/workflow"
)

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register mounts every API route on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/start", h.start)
	mux.HandleFunc("POST /api/resume", h.resume)
	mux.HandleFunc("POST /api/refine", h.refine)
	mux.HandleFunc("POST /api/update_state", h.updateState)
	mux.HandleFunc("POST /api/score", h.score)
	mux.HandleFunc("POST /api/rename", h.rename)
	mux.HandleFunc("POST /api/delete", h.delete)
	mux.HandleFunc("GET /api/poll/{user}/{thread}", h.poll)
	mux.HandleFunc("GET /api/projects/{user}", h.projects)
	mux.HandleFunc("GET /api/library", h.library)
	mux.HandleFunc("GET /api/library/{id}", h.libraryDetail)
	mux.HandleFunc("POST /api/library/refresh", h.libraryRefresh)
	mux.HandleFunc("GET /api/watch", h.watch)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// threadResponse is the envelope every state-bearing endpoint returns.
type threadResponse struct {
	ThreadID string            `json:"thread_id"`
	State    *state.AgentState `json:"state"`
}

func toResponse(rec projectstore.Record) threadResponse {
	return threadResponse{ThreadID: rec.ThreadID, State: rec.State}
}

type startRequest struct {
	UserID      string `json:"user_id"`
	ProjectName string `json:"project_name"`
	Request     string `json:"request"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.Start(r.Context(), req.UserID, req.ProjectName, req.Request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

type threadRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
}

func (h *Handler) resume(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.Resume(r.Context(), req.UserID, req.ThreadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

type refineRequest struct {
	UserID   string               `json:"user_id"`
	ThreadID string               `json:"thread_id"`
	Spec     *spec.BiologicalSpec `json:"spec"`
}

func (h *Handler) refine(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.Refine(r.Context(), req.UserID, req.ThreadID, req.Spec)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

type updateStateRequest struct {
	UserID   string          `json:"user_id"`
	ThreadID string          `json:"thread_id"`
	Field    string          `json:"field"`
	Value    json.RawMessage `json:"value"`
}

func (h *Handler) updateState(w http.ResponseWriter, r *http.Request) {
	var req updateStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateField(r.Context(), req.UserID, req.ThreadID, req.Field, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

type scoreRequest struct {
	UserID      string  `json:"user_id"`
	ThreadID    string  `json:"thread_id"`
	LibraryID   string  `json:"library_id"`
	MechanismID string  `json:"mechanism_id"`
	Score       float64 `json:"score"`
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.UpdateScore(r.Context(), req.UserID, req.ThreadID, req.LibraryID, req.MechanismID, req.Score)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

type renameRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Name     string `json:"name"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := h.svc.Rename(r.Context(), req.UserID, req.ThreadID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	var req threadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Delete(r.Context(), req.UserID, req.ThreadID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "thread_id": req.ThreadID})
}

func (h *Handler) poll(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Poll(r.Context(), r.PathValue("user"), r.PathValue("thread"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

func (h *Handler) projects(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": list})
}

func (h *Handler) library(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Library())
}

func (h *Handler) libraryDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.LibraryDetail(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) libraryRefresh(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.RefreshLibrary(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// writeError maps the service's error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var ve *workflow.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, projectstore.ErrInvalidID),
		errors.Is(err, spec.ErrScoreOutOfRange),
		errors.Is(err, spec.ErrUnknownRow),
		errors.Is(err, spec.ErrUnknownColumn):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, projectstore.ErrNotFound), errors.Is(err, library.ErrModelNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		log.Printf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func trimQuery(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
