package rappel

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/rappel/observability"
	"github.com/hazyhaar/rappel/shield"
)

// Service exposes the todo store over HTTP and MCP. The store is injected;
// there is no ambient global.
type Service struct {
	store  *Store
	events *observability.EventLogger
}

// Option configures a Service.
type Option func(*Service)

// WithEvents enables business event logging for mutations.
func WithEvents(ev *observability.EventLogger) Option {
	return func(s *Service) { s.events = ev }
}

// New creates a Service around the given store.
func New(store *Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) logEvent(ctx context.Context, eventType, action, id string) {
	if s.events == nil {
		return
	}
	s.events.LogEvent(ctx, observability.BusinessEvent{
		EventType:   eventType,
		ServiceName: "rappel",
		EntityType:  "todo",
		EntityID:    id,
		Action:      action,
		Success:     true,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeNotFound(w http.ResponseWriter) {
	writeMessage(w, http.StatusNotFound, "Not found")
}

// parseListOptions extracts filtering, sorting, and pagination from query
// parameters. Malformed integers fall back to the defaults (page 1, 20 per
// page). A present completed parameter is true for 1/true/yes/y
// (case-insensitive), false for anything else.
func parseListOptions(r *http.Request) ListOptions {
	q := r.URL.Query()
	opts := ListOptions{
		Search:  q.Get("search"),
		SortBy:  "created_at",
		SortDir: "desc",
		Page:    1,
		PerPage: 20,
	}
	if q.Has("completed") {
		switch strings.ToLower(q.Get("completed")) {
		case "1", "true", "yes", "y":
			v := true
			opts.Completed = &v
		default:
			v := false
			opts.Completed = &v
		}
	}
	if v := q.Get("sort_by"); v != "" {
		opts.SortBy = v
	}
	if v := q.Get("sort_dir"); v != "" {
		opts.SortDir = v
	}
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		opts.Page = n
	}
	if n, err := strconv.Atoi(q.Get("per_page")); err == nil {
		opts.PerPage = n
	}
	return opts
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	items, meta := s.store.List(parseListOptions(r))
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "meta": meta})
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	todo, err := s.store.Create(req)
	if err != nil {
		shield.GetLogger(r.Context()).Error("create todo", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.logEvent(r.Context(), "todo.created", "create", todo.ID)

	w.Header().Set("Location", "/todos/"+todo.ID)
	writeJSON(w, http.StatusCreated, todo)
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	todo, ok := s.store.Get(chi.URLParam(r, "todoID"))
	if !ok {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (s *Service) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "todoID")

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	todo, found, err := s.store.Update(id, req)
	if err != nil {
		shield.GetLogger(r.Context()).Error("update todo", "id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeNotFound(w)
		return
	}
	s.logEvent(r.Context(), "todo.updated", "update", id)
	writeJSON(w, http.StatusOK, todo)
}

func (s *Service) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "todoID")

	todo, found, err := s.store.Toggle(id)
	if err != nil {
		shield.GetLogger(r.Context()).Error("toggle todo", "id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeNotFound(w)
		return
	}
	s.logEvent(r.Context(), "todo.toggled", "toggle", id)
	writeJSON(w, http.StatusOK, todo)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "todoID")

	found, err := s.store.Delete(id)
	if err != nil {
		shield.GetLogger(r.Context()).Error("delete todo", "id", id, "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeNotFound(w)
		return
	}
	s.logEvent(r.Context(), "todo.deleted", "delete", id)
	w.WriteHeader(http.StatusNoContent)
}
