package rappel

import (
	"encoding/json"
	"testing"
)

func TestUpdateRequestUnmarshalStates(t *testing.T) {
	var req UpdateRequest
	payload := `{"title":"new name","description":null,"priority":2}`
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		t.Fatal(err)
	}

	if !req.Title.Set || req.Title.Null || req.Title.Value != "new name" {
		t.Fatalf("title state: %+v", req.Title)
	}
	if !req.Description.Set || !req.Description.Null {
		t.Fatalf("null description state: %+v", req.Description)
	}
	if !req.Priority.Set || req.Priority.Null || req.Priority.Value != 2 {
		t.Fatalf("priority state: %+v", req.Priority)
	}
	// Keys absent from the payload stay unset.
	if req.Completed.Set || req.DueDate.Set {
		t.Fatalf("absent keys marked set: completed=%+v due_date=%+v", req.Completed, req.DueDate)
	}
}

func TestCreateRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     CreateRequest
		wantErr bool
	}{
		{"valid", CreateRequest{Title: "ok"}, false},
		{"valid with priority", CreateRequest{Title: "ok", Priority: intPtr(5)}, false},
		{"empty title", CreateRequest{Title: ""}, true},
		{"whitespace title", CreateRequest{Title: "   "}, true},
		{"priority too low", CreateRequest{Title: "ok", Priority: intPtr(0)}, true},
		{"priority too high", CreateRequest{Title: "ok", Priority: intPtr(6)}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestUpdateRequestValidate(t *testing.T) {
	empty := UpdateRequest{Title: Optional[string]{Set: true, Value: "  "}}
	if err := empty.Validate(); err == nil {
		t.Fatal("blank title must be rejected")
	}

	badPrio := UpdateRequest{Priority: Optional[int]{Set: true, Value: 9}}
	if err := badPrio.Validate(); err == nil {
		t.Fatal("out-of-range priority must be rejected")
	}

	// A null priority clears the field and is always valid.
	nullPrio := UpdateRequest{Priority: Optional[int]{Set: true, Null: true}}
	if err := nullPrio.Validate(); err != nil {
		t.Fatal(err)
	}

	if err := (&UpdateRequest{}).Validate(); err != nil {
		t.Fatalf("empty update must validate: %v", err)
	}
}

func TestTodoMarshalNullFields(t *testing.T) {
	data, err := json.Marshal(Todo{ID: "todo_x", Title: "bare"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	// Optional fields serialize as explicit nulls, never disappear.
	for _, key := range []string{"description", "due_date", "priority"} {
		v, present := m[key]
		if !present {
			t.Fatalf("key %q missing from serialized todo", key)
		}
		if v != nil {
			t.Fatalf("key %q expected null, got %v", key, v)
		}
	}
}
