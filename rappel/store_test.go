package rappel

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

// testClock returns a clock that advances one millisecond per call, so every
// stamp in a test is strictly later than the previous one.
func testClock() func() time.Time {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func newMemStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	opts = append([]StoreOption{WithNow(testClock())}, opts...)
	s, err := NewStore(StoreConfig{Mode: ModeMemory}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := newMemStore(t)

	created, err := s.Create(CreateRequest{
		Title:       "  buy groceries  ",
		Description: strPtr("milk and bread"),
		DueDate:     strPtr("2026-09-01"),
		Priority:    intPtr(2),
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.ID == "" {
		t.Fatal("empty id")
	}
	if !strings.HasPrefix(created.ID, "todo_") {
		t.Fatalf("unexpected id format: %q", created.ID)
	}
	if created.Title != "buy groceries" {
		t.Fatalf("title not trimmed: %q", created.Title)
	}
	if created.Completed {
		t.Fatal("new todo must start incomplete")
	}
	if created.CreatedAt == "" || created.CreatedAt != created.UpdatedAt {
		t.Fatalf("bad stamps: created=%q updated=%q", created.CreatedAt, created.UpdatedAt)
	}

	got, ok := s.Get(created.ID)
	if !ok {
		t.Fatal("created todo not found")
	}
	if got.Description == nil || *got.Description != "milk and bread" {
		t.Fatalf("unexpected description: %v", got.Description)
	}
	if got.Priority == nil || *got.Priority != 2 {
		t.Fatalf("unexpected priority: %v", got.Priority)
	}

	// Mutating the returned copy must not leak into the store.
	*got.Description = "changed"
	again, _ := s.Get(created.ID)
	if *again.Description != "milk and bread" {
		t.Fatal("Get returned a shared pointer")
	}
}

func TestGetUnknown(t *testing.T) {
	s := newMemStore(t)
	if _, ok := s.Get("todo_missing"); ok {
		t.Fatal("expected not found")
	}
}

func TestToggle(t *testing.T) {
	s := newMemStore(t)
	created, _ := s.Create(CreateRequest{Title: "flip me"})

	first, found, err := s.Toggle(created.ID)
	if err != nil || !found {
		t.Fatalf("toggle: found=%v err=%v", found, err)
	}
	if !first.Completed {
		t.Fatal("first toggle should complete the todo")
	}
	if !(first.UpdatedAt > created.UpdatedAt) {
		t.Fatalf("updated_at not advanced: %q -> %q", created.UpdatedAt, first.UpdatedAt)
	}

	second, _, _ := s.Toggle(created.ID)
	if second.Completed {
		t.Fatal("second toggle should revert to incomplete")
	}

	if _, found, _ := s.Toggle("todo_missing"); found {
		t.Fatal("expected not found")
	}
}

func TestUpdatePartial(t *testing.T) {
	s := newMemStore(t)
	created, _ := s.Create(CreateRequest{
		Title:       "original",
		Description: strPtr("keep me"),
		Priority:    intPtr(3),
	})

	// Only title present: description and priority untouched.
	updated, found, err := s.Update(created.ID, UpdateRequest{
		Title: Optional[string]{Set: true, Value: "renamed"},
	})
	if err != nil || !found {
		t.Fatalf("update: found=%v err=%v", found, err)
	}
	if updated.Title != "renamed" {
		t.Fatalf("title not applied: %q", updated.Title)
	}
	if updated.Description == nil || *updated.Description != "keep me" {
		t.Fatal("absent field was modified")
	}
	if updated.Priority == nil || *updated.Priority != 3 {
		t.Fatal("absent priority was modified")
	}
	if !(updated.UpdatedAt > created.UpdatedAt) {
		t.Fatal("updated_at not advanced")
	}
	if updated.CreatedAt != created.CreatedAt {
		t.Fatal("created_at must never change")
	}

	// Explicit nulls clear optional fields.
	cleared, _, err := s.Update(created.ID, UpdateRequest{
		Description: Optional[string]{Set: true, Null: true},
		Priority:    Optional[int]{Set: true, Null: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if cleared.Description != nil {
		t.Fatalf("description not cleared: %v", *cleared.Description)
	}
	if cleared.Priority != nil {
		t.Fatalf("priority not cleared: %v", *cleared.Priority)
	}
	if cleared.Title != "renamed" {
		t.Fatal("title must survive a clearing update")
	}

	if _, found, _ := s.Update("todo_missing", UpdateRequest{}); found {
		t.Fatal("expected not found")
	}
}

func TestDelete(t *testing.T) {
	s := newMemStore(t)
	created, _ := s.Create(CreateRequest{Title: "doomed"})

	found, err := s.Delete(created.ID)
	if err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}
	if _, ok := s.Get(created.ID); ok {
		t.Fatal("deleted todo still retrievable")
	}
	if found, _ := s.Delete(created.ID); found {
		t.Fatal("second delete must report not found")
	}
}

func TestListEmpty(t *testing.T) {
	s := newMemStore(t)

	items, meta := s.List(ListOptions{Page: 1, PerPage: 20})
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if meta.Total != 0 || meta.Pages != 1 || meta.Page != 1 || meta.PerPage != 20 {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestListPagination(t *testing.T) {
	s := newMemStore(t)
	for i := 0; i < 25; i++ {
		if _, err := s.Create(CreateRequest{Title: "task"}); err != nil {
			t.Fatal(err)
		}
	}

	items, meta := s.List(ListOptions{SortBy: "created_at", SortDir: "asc", Page: 3, PerPage: 10})
	if len(items) != 5 {
		t.Fatalf("page 3 of 25 with per_page 10: expected 5 items, got %d", len(items))
	}
	if meta.Total != 25 || meta.Pages != 3 {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	// Out-of-range page yields an empty slice, not an error.
	items, meta = s.List(ListOptions{Page: 9, PerPage: 10})
	if len(items) != 0 || meta.Pages != 3 {
		t.Fatalf("out-of-range page: items=%d meta=%+v", len(items), meta)
	}

	// Clamps: page < 1 becomes 1, per_page 0 becomes 20, negative becomes 1.
	_, meta = s.List(ListOptions{Page: -2, PerPage: 0})
	if meta.Page != 1 || meta.PerPage != 20 {
		t.Fatalf("clamp failed: %+v", meta)
	}
	_, meta = s.List(ListOptions{Page: 1, PerPage: -5})
	if meta.PerPage != 1 {
		t.Fatalf("negative per_page clamp failed: %+v", meta)
	}
}

func TestListSearch(t *testing.T) {
	s := newMemStore(t)
	s.Create(CreateRequest{Title: "Buy Milk"})
	s.Create(CreateRequest{Title: "errands", Description: strPtr("get MILK and eggs")})
	s.Create(CreateRequest{Title: "unrelated"})

	items, meta := s.List(ListOptions{Search: "milk", Page: 1, PerPage: 20})
	if meta.Total != 2 {
		t.Fatalf("expected 2 matches, got %d", meta.Total)
	}
	for _, it := range items {
		desc := ""
		if it.Description != nil {
			desc = *it.Description
		}
		if !strings.Contains(strings.ToLower(it.Title+" "+desc), "milk") {
			t.Fatalf("non-matching item returned: %+v", it)
		}
	}
}

func TestListCompletedFilter(t *testing.T) {
	s := newMemStore(t)
	a, _ := s.Create(CreateRequest{Title: "done"})
	s.Create(CreateRequest{Title: "pending"})
	s.Toggle(a.ID)

	items, meta := s.List(ListOptions{Completed: boolPtr(true), Page: 1, PerPage: 20})
	if meta.Total != 1 || items[0].ID != a.ID {
		t.Fatalf("completed filter: meta=%+v", meta)
	}

	items, _ = s.List(ListOptions{Completed: boolPtr(false), Page: 1, PerPage: 20})
	if len(items) != 1 || items[0].Title != "pending" {
		t.Fatalf("incomplete filter returned %d items", len(items))
	}
}

func TestListSortTitle(t *testing.T) {
	s := newMemStore(t)
	s.Create(CreateRequest{Title: "banana"})
	s.Create(CreateRequest{Title: "Apple"})
	s.Create(CreateRequest{Title: "cherry"})

	items, _ := s.List(ListOptions{SortBy: "title", SortDir: "asc", Page: 1, PerPage: 20})
	got := []string{items[0].Title, items[1].Title, items[2].Title}
	want := []string{"Apple", "banana", "cherry"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("asc title order: got %v", got)
		}
	}

	// Direction is literal: only "desc" (any case) reverses.
	items, _ = s.List(ListOptions{SortBy: "title", SortDir: "DESC", Page: 1, PerPage: 20})
	if items[0].Title != "cherry" {
		t.Fatalf("desc title order: got %q first", items[0].Title)
	}
	items, _ = s.List(ListOptions{SortBy: "title", SortDir: "descending", Page: 1, PerPage: 20})
	if items[0].Title != "Apple" {
		t.Fatalf(`"descending" must sort ascending, got %q first`, items[0].Title)
	}
}

func TestListSortPriorityMissingLast(t *testing.T) {
	s := newMemStore(t)
	s.Create(CreateRequest{Title: "no priority"})
	s.Create(CreateRequest{Title: "urgent", Priority: intPtr(1)})
	s.Create(CreateRequest{Title: "later", Priority: intPtr(4)})

	items, _ := s.List(ListOptions{SortBy: "priority", SortDir: "asc", Page: 1, PerPage: 20})
	if items[0].Title != "urgent" || items[2].Title != "no priority" {
		t.Fatalf("asc priority: got %q, %q, %q", items[0].Title, items[1].Title, items[2].Title)
	}

	items, _ = s.List(ListOptions{SortBy: "priority", SortDir: "desc", Page: 1, PerPage: 20})
	if items[0].Title != "no priority" {
		t.Fatalf("desc priority must put missing first, got %q", items[0].Title)
	}
}

func TestListSortUnknownKeyFallsBack(t *testing.T) {
	s := newMemStore(t)
	first, _ := s.Create(CreateRequest{Title: "first"})
	s.Create(CreateRequest{Title: "second"})

	items, _ := s.List(ListOptions{SortBy: "nonsense", SortDir: "asc", Page: 1, PerPage: 20})
	if items[0].ID != first.ID {
		t.Fatal("unknown sort key must fall back to created_at")
	}
}

func TestFileModePersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := StoreConfig{Mode: ModeFile, DataDir: dir, DataFile: "todos.json"}

	s1, err := NewStore(cfg, WithNow(testClock()))
	if err != nil {
		t.Fatal(err)
	}
	created, err := s1.Create(CreateRequest{Title: "survive restart", Priority: intPtr(1)})
	if err != nil {
		t.Fatal(err)
	}
	s1.Toggle(created.ID)

	// A second store on the same path must see the persisted state.
	s2, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := s2.Get(created.ID)
	if !ok {
		t.Fatal("todo lost across restart")
	}
	if !got.Completed {
		t.Fatal("toggle not persisted")
	}
	if got.Priority == nil || *got.Priority != 1 {
		t.Fatal("priority not persisted")
	}

	// The write path must not leave temp files behind.
	if _, err := os.Stat(filepath.Join(dir, "todos.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}

func TestFileModeInitializesEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewStore(StoreConfig{Mode: ModeFile, DataDir: dir, DataFile: "todos.json"}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "todos.json"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"todos"`) {
		t.Fatalf("unexpected initial file: %s", raw)
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todos.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(StoreConfig{Mode: ModeFile, DataDir: dir, DataFile: "todos.json"})
	if err != nil {
		t.Fatal(err)
	}
	if _, meta := s.List(ListOptions{Page: 1, PerPage: 20}); meta.Total != 0 {
		t.Fatalf("expected empty collection, got %d", meta.Total)
	}

	// The first successful mutation replaces the corrupt file.
	if _, err := s.Create(CreateRequest{Title: "fresh"}); err != nil {
		t.Fatal(err)
	}
	raw, _ := os.ReadFile(path)
	if !strings.Contains(string(raw), "fresh") {
		t.Fatalf("mutation not persisted over corrupt file: %s", raw)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	if _, err := NewStore(StoreConfig{Mode: "redis"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestMemoryModeWritesNothing(t *testing.T) {
	s := newMemStore(t)
	if _, err := s.Create(CreateRequest{Title: "ephemeral"}); err != nil {
		t.Fatal(err)
	}
	if s.path != "" {
		t.Fatalf("memory store has a path: %q", s.path)
	}
}
