package rappel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/rappel/kit"
)

// RegisterMCP registers todo tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListTool(srv)
	s.registerCreateTool(srv)
	s.registerGetTool(srv)
	s.registerUpdateTool(srv)
	s.registerToggleTool(srv)
	s.registerDeleteTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func errNotFound(id string) error {
	return fmt.Errorf("todo not found: %s", id)
}

// --- list ---

type listToolReq struct {
	Search    string `json:"search"`
	Completed *bool  `json:"completed"`
	SortBy    string `json:"sort_by"`
	SortDir   string `json:"sort_dir"`
	Page      int    `json:"page"`
	PerPage   int    `json:"per_page"`
}

func (s *Service) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_list",
		Description: "List todos with optional search, completion filter, sorting, and pagination.",
		InputSchema: inputSchema(map[string]any{
			"search":    map[string]any{"type": "string", "description": "Substring match on title or description"},
			"completed": map[string]any{"type": "boolean", "description": "Filter by completion state"},
			"sort_by":   map[string]any{"type": "string", "description": "created_at, updated_at, title or priority"},
			"sort_dir":  map[string]any{"type": "string", "description": "asc or desc"},
			"page":      map[string]any{"type": "integer"},
			"per_page":  map[string]any{"type": "integer"},
		}, nil),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*listToolReq)
		opts := ListOptions{
			Search:    r.Search,
			Completed: r.Completed,
			SortBy:    r.SortBy,
			SortDir:   r.SortDir,
			Page:      r.Page,
			PerPage:   r.PerPage,
		}
		if opts.SortBy == "" {
			opts.SortBy = "created_at"
		}
		if opts.SortDir == "" {
			opts.SortDir = "desc"
		}
		if opts.Page == 0 {
			opts.Page = 1
		}
		if opts.PerPage == 0 {
			opts.PerPage = 20
		}
		items, meta := s.store.List(opts)
		return map[string]any{"items": items, "meta": meta}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r listToolReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- create ---

func (s *Service) registerCreateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_create",
		Description: "Create a todo.",
		InputSchema: inputSchema(map[string]any{
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"due_date":    map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "integer", "description": "1 (highest) to 5 (lowest)"},
		}, []string{"title"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*CreateRequest)
		if err := r.Validate(); err != nil {
			return nil, err
		}
		todo, err := s.store.Create(*r)
		if err != nil {
			return nil, err
		}
		s.logEvent(ctx, "todo.created", "create", todo.ID)
		return todo, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r CreateRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- get ---

type idToolReq struct {
	ID string `json:"id"`
}

func idOnlySchema() map[string]any {
	return inputSchema(map[string]any{
		"id": map[string]any{"type": "string", "description": "Todo identifier"},
	}, []string{"id"})
}

func decodeIDReq(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r idToolReq
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

func (s *Service) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_get",
		Description: "Fetch a single todo by id.",
		InputSchema: idOnlySchema(),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*idToolReq)
		todo, ok := s.store.Get(r.ID)
		if !ok {
			return nil, errNotFound(r.ID)
		}
		return todo, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeIDReq)
}

// --- update ---

type updateToolReq struct {
	ID      string `json:"id"`
	Changes UpdateRequest
}

func (r *updateToolReq) UnmarshalJSON(data []byte) error {
	var id struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	r.ID = id.ID
	return json.Unmarshal(data, &r.Changes)
}

func (s *Service) registerUpdateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_update",
		Description: "Partially update a todo. Omitted fields are unchanged; explicit nulls clear optional fields.",
		InputSchema: inputSchema(map[string]any{
			"id":          map[string]any{"type": "string", "description": "Todo identifier"},
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"completed":   map[string]any{"type": "boolean"},
			"due_date":    map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "integer"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*updateToolReq)
		if err := r.Changes.Validate(); err != nil {
			return nil, err
		}
		todo, found, err := s.store.Update(r.ID, r.Changes)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errNotFound(r.ID)
		}
		s.logEvent(ctx, "todo.updated", "update", r.ID)
		return todo, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r updateToolReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- toggle ---

func (s *Service) registerToggleTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_toggle",
		Description: "Flip the completed flag of a todo.",
		InputSchema: idOnlySchema(),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*idToolReq)
		todo, found, err := s.store.Toggle(r.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errNotFound(r.ID)
		}
		s.logEvent(ctx, "todo.toggled", "toggle", r.ID)
		return todo, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeIDReq)
}

// --- delete ---

func (s *Service) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "todo_delete",
		Description: "Delete a todo by id.",
		InputSchema: idOnlySchema(),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*idToolReq)
		found, err := s.store.Delete(r.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errNotFound(r.ID)
		}
		s.logEvent(ctx, "todo.deleted", "delete", r.ID)
		return map[string]any{"deleted": true, "id": r.ID}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeIDReq)
}
