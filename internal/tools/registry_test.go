package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noop(ctx context.Context, args map[string]any) (string, error) { return "", nil }

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Category:    CategoryGeneral,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "success", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Priority != 50 {
		t.Errorf("default priority = %d, want 50", got.Priority)
	}
	if !reg.Has("test_tool") || reg.Has("other") {
		t.Error("Has returned the wrong answer")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	tool := &Tool{Name: "dupe", Category: CategoryGeneral, Execute: noop}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := reg.Register(tool); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Fatalf("expected ErrToolAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{"empty name", &Tool{Name: "", Execute: noop}, ErrToolNameEmpty},
		{"nil execute", &Tool{Name: "test", Execute: nil}, ErrToolExecuteNil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.tool); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected error %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()

	for _, tool := range []*Tool{
		{Name: "write_file", Category: CategoryFiles, Priority: 60, Execute: noop},
		{Name: "read_file", Category: CategoryFiles, Priority: 80, Execute: noop},
		{Name: "run_in_sandbox", Category: CategorySandbox, Execute: noop},
	} {
		reg.MustRegister(tool)
	}

	files := reg.GetByCategory(CategoryFiles)
	if len(files) != 2 {
		t.Fatalf("expected 2 file tools, got %d", len(files))
	}
	if files[0].Name != "read_file" {
		t.Errorf("expected read_file first (priority 80), got %s", files[0].Name)
	}
	if diff := cmp.Diff([]string{"read_file", "run_in_sandbox", "write_file"}, reg.Names()); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
	if got := reg.GetMultiple([]string{"run_in_sandbox", "missing"}); len(got) != 1 {
		t.Errorf("GetMultiple returned %d tools, want 1", len(got))
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()

	reg.MustRegister(&Tool{
		Name:     "echo",
		Category: CategoryGeneral,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "Echo: " + msg, nil
		},
		Schema: ToolSchema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: "string"}},
		},
	})

	result, err := reg.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "Echo: hello" {
		t.Errorf("got result %q, want %q", result.Result, "Echo: hello")
	}
	if !result.IsSuccess() {
		t.Error("expected IsSuccess to be true")
	}

	result, err = reg.Execute(context.Background(), "echo", map[string]any{"message": nil})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("expected ErrMissingRequiredArg, got %v", err)
	}
	if result == nil || result.IsSuccess() {
		t.Error("a failed validation should still return a result")
	}

	if _, err := reg.Execute(context.Background(), "nonexistent", nil); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

type memRecorder struct {
	mu      sync.Mutex
	results []*ToolResult
	args    []map[string]any
	err     error
}

func (m *memRecorder) Record(ctx context.Context, result *ToolResult, args map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	m.args = append(m.args, args)
	return m.err
}

func TestSetRecorder(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name: "fail",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("nope")
		},
	})
	reg.MustRegister(&Tool{Name: "ok", Execute: noop})

	rec := &memRecorder{err: errors.New("disk full")}
	reg.SetRecorder(rec)

	ctx := WithSession(context.Background(), "sess-1")
	if _, err := reg.Execute(ctx, "ok", map[string]any{"a": 1.0}); err != nil {
		t.Fatalf("recorder errors must not fail the tool: %v", err)
	}
	if _, err := reg.Execute(ctx, "fail", nil); err == nil {
		t.Fatal("expected tool error")
	}

	if len(rec.results) != 2 {
		t.Fatalf("recorded %d results, want 2", len(rec.results))
	}
	if rec.results[0].SessionID != "sess-1" {
		t.Errorf("SessionID = %q", rec.results[0].SessionID)
	}
	if rec.results[1].Error == nil {
		t.Error("failed execution should be recorded with its error")
	}
	if rec.args[0]["a"] != 1.0 {
		t.Errorf("args not passed to recorder: %v", rec.args[0])
	}

	reg.SetRecorder(nil)
	reg.Execute(context.Background(), "ok", nil)
	if len(rec.results) != 2 {
		t.Error("recording should stop after SetRecorder(nil)")
	}
}

func TestDefinitions(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(&Tool{
		Name:        "read_file",
		Description: "Read a file",
		Execute:     noop,
		Schema: ToolSchema{
			Required:   []string{"path"},
			Properties: map[string]Property{"path": {Type: "string", Description: "File path"}},
		},
	})
	reg.MustRegister(&Tool{Name: "doctor", Execute: noop})

	defs := reg.Definitions()
	if len(defs) != 2 || defs[0].Name != "doctor" || defs[1].Name != "read_file" {
		t.Fatalf("unexpected definitions: %+v", defs)
	}

	data, err := json.Marshal(defs[0])
	if err != nil {
		t.Fatal(err)
	}
	want := `{"name":"doctor","description":"","parameters":{"type":"object","properties":{},"required":[]}}`
	if string(data) != want {
		t.Errorf("definition JSON:\n got %s\nwant %s", data, want)
	}
	if defs[1].Parameters.Properties["path"].Description != "File path" {
		t.Error("properties should be carried into the definition")
	}
}

func TestGlobalRegistry(t *testing.T) {
	globalRegistry = NewRegistry()

	tool := &Tool{
		Name:     "global_test",
		Category: CategoryGeneral,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "global", nil
		},
	}

	if err := Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if Get("global_test") == nil {
		t.Fatal("Get returned nil for globally registered tool")
	}

	result, err := Execute(context.Background(), "global_test", map[string]any{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "global" {
		t.Errorf("got result %q, want %q", result.Result, "global")
	}
}
