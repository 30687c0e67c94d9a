package rappel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Todo is one task record. Optional fields are pointers and serialize as
// JSON null, matching the persisted file layout exactly.
type Todo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
	DueDate     *string `json:"due_date"`
	Priority    *int    `json:"priority"`
}

// clone returns a deep copy so callers can never mutate store state through
// a returned record.
func (t Todo) clone() Todo {
	c := t
	if t.Description != nil {
		v := *t.Description
		c.Description = &v
	}
	if t.DueDate != nil {
		v := *t.DueDate
		c.DueDate = &v
	}
	if t.Priority != nil {
		v := *t.Priority
		c.Priority = &v
	}
	return c
}

// Optional is a presence-tracking field for partial payloads. It
// distinguishes three states the wire format can carry: key absent
// (Set=false), key present with null (Set=true, Null=true), and key present
// with a value.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// UnmarshalJSON is only invoked when the key is present, which is what makes
// the absent/null distinction work with encoding/json.
func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

// MarshalJSON round-trips the value; an unset or null Optional renders as
// null (used only by the MCP surface when echoing requests).
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// CreateRequest is the payload for creating a todo. Completed is not
// accepted: new todos always start incomplete.
type CreateRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	Priority    *int    `json:"priority"`
}

// Validate checks boundary constraints: required title, priority range.
func (r *CreateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if r.Priority != nil && (*r.Priority < 1 || *r.Priority > 5) {
		return fmt.Errorf("priority must be between 1 and 5")
	}
	return nil
}

// UpdateRequest is a partial update: only fields whose key is present in the
// payload are applied. A null description, due_date, or priority clears the
// field; a null title or completed is ignored.
type UpdateRequest struct {
	Title       Optional[string] `json:"title"`
	Description Optional[string] `json:"description"`
	Completed   Optional[bool]   `json:"completed"`
	DueDate     Optional[string] `json:"due_date"`
	Priority    Optional[int]    `json:"priority"`
}

// Validate checks boundary constraints on the fields that are present.
func (r *UpdateRequest) Validate() error {
	if r.Title.Set && !r.Title.Null && strings.TrimSpace(r.Title.Value) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if r.Priority.Set && !r.Priority.Null && (r.Priority.Value < 1 || r.Priority.Value > 5) {
		return fmt.Errorf("priority must be between 1 and 5")
	}
	return nil
}

// ListOptions controls filtering, sorting, and pagination for List.
type ListOptions struct {
	Search    string
	Completed *bool
	SortBy    string // created_at | updated_at | title | priority
	SortDir   string // "desc" (case-insensitive) reverses; anything else is ascending
	Page      int
	PerPage   int
}

// PageMeta describes the slice a List call returned.
type PageMeta struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
}
