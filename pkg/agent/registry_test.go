package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/trc-ai/riskgraph/pkg/ai"
)

func echoTool(name string) ai.Tool {
	return ai.Tool{
		Name:        name,
		Description: "echoes its arguments",
		Parameters:  mustSchema(entityIDArgs{}),
		Handler: func(ctx context.Context, arguments string) (string, error) {
			return arguments, nil
		},
	}
}

func TestRegistry_RejectsDuplicateNames(t *testing.T) {
	if _, err := NewRegistry(echoTool("a"), echoTool("a")); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistry_RejectsMissingHandler(t *testing.T) {
	tool := echoTool("a")
	tool.Handler = nil
	if _, err := NewRegistry(tool); err == nil {
		t.Fatal("expected missing handler error")
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r, err := NewRegistry(echoTool("a"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := r.Invoke(context.Background(), "b", `{}`); err == nil {
		t.Fatal("expected unknown tool error")
	}
}

func TestRegistry_ValidateArgs(t *testing.T) {
	r, err := NewRegistry(echoTool("a"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	tests := []struct {
		name    string
		args    string
		wantErr string
	}{
		{"valid", `{"entity_id": "CONTROL_AC-2"}`, ""},
		{"missing required", `{}`, "missing required"},
		{"empty treated as object", ``, "missing required"},
		{"unknown property", `{"entity_id": "x", "bogus": 1}`, "unknown argument"},
		{"not an object", `[1,2]`, "not a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Invoke(context.Background(), "a", tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegistry_DescribeListsEveryTool(t *testing.T) {
	r, err := NewRegistry(echoTool("first_tool"), echoTool("second_tool"))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	described := r.Describe()
	for _, name := range []string{"first_tool", "second_tool", "entity_id"} {
		if !strings.Contains(described, name) {
			t.Fatalf("Describe() missing %q:\n%s", name, described)
		}
	}
}
