package rappel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/rappel/idgen"
)

// Persistence modes.
const (
	ModeFile   = "file"
	ModeMemory = "memory"
)

// timeLayout is fixed-width UTC microsecond precision, so lexicographic
// order on stored timestamps equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// StoreConfig selects the persistence mode and, for file mode, the target
// path (DataDir/DataFile).
type StoreConfig struct {
	Mode     string
	DataDir  string
	DataFile string
}

// Store owns the todo collection. One exclusive lock serializes every
// operation, including the persist step of mutations, so a reader can never
// observe a half-applied write and concurrent mutations cannot lose updates
// on the replace step.
type Store struct {
	mu    sync.Mutex
	todos []Todo

	mode string
	path string // empty in memory mode

	newID idgen.Generator
	now   func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator sets a custom ID generator for new todos.
func WithIDGenerator(gen idgen.Generator) StoreOption {
	return func(s *Store) { s.newID = gen }
}

// WithNow sets the clock used for created_at/updated_at stamps (tests).
func WithNow(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store. In file mode the data directory is created and
// the collection is loaded from disk; a missing or malformed file yields an
// empty collection and never fails startup. Memory mode never touches
// storage.
func NewStore(cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	s := &Store{
		todos: []Todo{},
		mode:  strings.ToLower(strings.TrimSpace(cfg.Mode)),
		newID: idgen.Prefixed("todo_", idgen.Default),
		now:   time.Now,
	}
	if s.mode == "" {
		s.mode = ModeFile
	}
	for _, o := range opts {
		o(s)
	}

	switch s.mode {
	case ModeFile:
		dir := cfg.DataDir
		if dir == "" {
			dir = "./data"
		}
		file := cfg.DataFile
		if file == "" {
			file = "todos.json"
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("rappel: create data dir %s: %w", dir, err)
		}
		s.path = filepath.Join(dir, file)
		s.loadFromDisk()
	case ModeMemory:
		// Nothing to do.
	default:
		return nil, fmt.Errorf("rappel: unsupported persistence mode %q (use file or memory)", cfg.Mode)
	}
	return s, nil
}

// loadFromDisk populates the collection from the data file. Corrupt content
// degrades to an empty collection; a missing file is created with an empty
// list so the path is writable from the start.
func (s *Store) loadFromDisk() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("todo store: read failed, starting empty", "path", s.path, "error", err)
		}
		s.todos = []Todo{}
		if err := s.persistLocked(); err != nil {
			slog.Warn("todo store: initial write failed", "path", s.path, "error", err)
		}
		return
	}

	var payload struct {
		Todos []Todo `json:"todos"`
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Warn("todo store: corrupt data file, starting empty", "path", s.path, "error", err)
			s.todos = []Todo{}
			return
		}
	}
	if payload.Todos == nil {
		payload.Todos = []Todo{}
	}
	s.todos = payload.Todos
}

// persistLocked writes the whole collection to disk via temp-file-then-rename
// so the rename is the only visible state transition. Must be called with the
// lock held (or from the constructor before the store is shared).
func (s *Store) persistLocked() error {
	if s.mode != ModeFile {
		return nil
	}
	payload := struct {
		Todos []Todo `json:"todos"`
	}{Todos: s.todos}
	if payload.Todos == nil {
		payload.Todos = []Todo{}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("rappel: marshal todos: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("rappel: write tmp: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rappel: rename: %w", err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Create appends a new todo with a fresh ID and stamps, persists, and
// returns a copy. Completed always starts false; no uniqueness check on
// title.
func (s *Store) Create(req CreateRequest) (Todo, error) {
	now := s.timestamp()
	t := Todo{
		ID:        s.newID(),
		Title:     strings.TrimSpace(req.Title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Description != nil {
		v := *req.Description
		t.Description = &v
	}
	if req.DueDate != nil {
		v := *req.DueDate
		t.DueDate = &v
	}
	if req.Priority != nil {
		v := *req.Priority
		t.Priority = &v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append(s.todos, t)
	if err := s.persistLocked(); err != nil {
		return Todo{}, err
	}
	return t.clone(), nil
}

// Get returns a copy of the todo with the given id.
func (s *Store) Get(id string) (Todo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.todos {
		if t.ID == id {
			return t.clone(), true
		}
	}
	return Todo{}, false
}

// List snapshots the collection under the lock, then filters, sorts, and
// paginates lock-free on the snapshot.
func (s *Store) List(opts ListOptions) ([]Todo, PageMeta) {
	s.mu.Lock()
	items := make([]Todo, 0, len(s.todos))
	for _, t := range s.todos {
		items = append(items, t.clone())
	}
	s.mu.Unlock()

	if opts.Search != "" {
		q := strings.ToLower(opts.Search)
		filtered := items[:0]
		for _, t := range items {
			desc := ""
			if t.Description != nil {
				desc = *t.Description
			}
			if strings.Contains(strings.ToLower(t.Title), q) || strings.Contains(strings.ToLower(desc), q) {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}
	if opts.Completed != nil {
		filtered := items[:0]
		for _, t := range items {
			if t.Completed == *opts.Completed {
				filtered = append(filtered, t)
			}
		}
		items = filtered
	}

	sortTodos(items, opts.SortBy, opts.SortDir)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PerPage
	if perPage == 0 {
		perPage = 20
	}
	if perPage < 1 {
		perPage = 1
	}

	total := len(items)
	pages := (total + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}

	start := (page - 1) * perPage
	end := start + perPage
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	meta := PageMeta{Page: page, PerPage: perPage, Total: total, Pages: pages}
	return items[start:end], meta
}

// sortTodos sorts in place. Unknown sortBy falls back to created_at. The
// direction contract is literal: sortDir == "desc" (case-insensitive)
// reverses, anything else is ascending. Missing timestamps compare as empty
// strings; missing priority as +inf, so unprioritized items trail ascending
// order. The sort is stable.
func sortTodos(items []Todo, sortBy, sortDir string) {
	switch sortBy {
	case "created_at", "updated_at", "title", "priority":
	default:
		sortBy = "created_at"
	}
	desc := strings.EqualFold(sortDir, "desc")

	less := func(a, b Todo) bool {
		switch sortBy {
		case "updated_at":
			return a.UpdatedAt < b.UpdatedAt
		case "title":
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case "priority":
			return priorityKey(a) < priorityKey(b)
		default:
			return a.CreatedAt < b.CreatedAt
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

func priorityKey(t Todo) float64 {
	if t.Priority == nil {
		return math.Inf(1)
	}
	return float64(*t.Priority)
}

// Update applies the fields present in req to the todo with the given id,
// stamps updated_at, replaces the record atomically, and persists. The
// second return is false when no record matches.
func (s *Store) Update(id string, req UpdateRequest) (Todo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, t := range s.todos {
		if t.ID != id {
			continue
		}
		updated := t.clone()
		if req.Title.Set && !req.Title.Null {
			updated.Title = strings.TrimSpace(req.Title.Value)
		}
		if req.Description.Set {
			if req.Description.Null {
				updated.Description = nil
			} else {
				v := req.Description.Value
				updated.Description = &v
			}
		}
		if req.Completed.Set && !req.Completed.Null {
			updated.Completed = req.Completed.Value
		}
		if req.DueDate.Set {
			if req.DueDate.Null {
				updated.DueDate = nil
			} else {
				v := req.DueDate.Value
				updated.DueDate = &v
			}
		}
		if req.Priority.Set {
			if req.Priority.Null {
				updated.Priority = nil
			} else {
				v := req.Priority.Value
				updated.Priority = &v
			}
		}
		updated.UpdatedAt = s.timestamp()

		s.todos[idx] = updated
		if err := s.persistLocked(); err != nil {
			return Todo{}, true, err
		}
		return updated.clone(), true, nil
	}
	return Todo{}, false, nil
}

// Toggle flips completed and stamps updated_at, with the same persistence
// and return contract as Update.
func (s *Store) Toggle(id string) (Todo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, t := range s.todos {
		if t.ID != id {
			continue
		}
		updated := t.clone()
		updated.Completed = !updated.Completed
		updated.UpdatedAt = s.timestamp()

		s.todos[idx] = updated
		if err := s.persistLocked(); err != nil {
			return Todo{}, true, err
		}
		return updated.clone(), true, nil
	}
	return Todo{}, false, nil
}

// Delete removes the todo with the given id and persists. Returns false when
// no record matches.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for idx, t := range s.todos {
		if t.ID == id {
			s.todos = slices.Delete(s.todos, idx, idx+1)
			if err := s.persistLocked(); err != nil {
				return true, err
			}
			return true, nil
		}
	}
	return false, nil
}
