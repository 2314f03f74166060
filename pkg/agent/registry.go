package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trc-ai/riskgraph/pkg/ai"
)

// Registry is the static mapping from tool name to schema and handler. It is
// built once per graph and read-only afterwards, so lookups need no locking.
type Registry struct {
	tools map[string]ai.Tool
	order []string
}

// NewRegistry indexes the given tools. Duplicate or empty names and tools
// without a handler are programming errors and rejected.
func NewRegistry(tools ...ai.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]ai.Tool, len(tools))}
	for _, tool := range tools {
		if tool.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if tool.Handler == nil {
			return nil, fmt.Errorf("tool %s has no handler", tool.Name)
		}
		if _, exists := r.tools[tool.Name]; exists {
			return nil, fmt.Errorf("duplicate tool name %s", tool.Name)
		}
		r.tools[tool.Name] = tool
		r.order = append(r.order, tool.Name)
	}
	return r, nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (ai.Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists the tool names in registration order.
func (r *Registry) Names() []string {
	return r.order
}

// Describe renders the tool list for the agent system prompt: one block per
// tool with its description and parameter schema.
func (r *Registry) Describe() string {
	var sb strings.Builder
	for _, name := range r.order {
		tool := r.tools[name]
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
		if schema, err := json.Marshal(tool.Parameters); err == nil {
			fmt.Fprintf(&sb, "  parameters: %s\n", schema)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ValidateArgs checks an argument object against the tool's parameter
// schema: it must be a JSON object, carry every required property, and name
// no property outside the schema.
func (r *Registry) ValidateArgs(tool ai.Tool, argsJSON string) error {
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return fmt.Errorf("arguments for %s are not a JSON object: %w", tool.Name, err)
	}

	properties, _ := tool.Parameters["properties"].(map[string]any)
	for key := range args {
		if _, ok := properties[key]; !ok {
			return fmt.Errorf("unknown argument %q for tool %s", key, tool.Name)
		}
	}

	required, _ := tool.Parameters["required"].([]any)
	for _, entry := range required {
		name, ok := entry.(string)
		if !ok {
			continue
		}
		if _, present := args[name]; !present {
			return fmt.Errorf("missing required argument %q for tool %s", name, tool.Name)
		}
	}
	return nil
}

// Invoke validates the arguments and runs the tool.
func (r *Registry) Invoke(ctx context.Context, name, argsJSON string) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown tool %s", name)
	}
	if strings.TrimSpace(argsJSON) == "" {
		argsJSON = "{}"
	}
	if err := r.ValidateArgs(tool, argsJSON); err != nil {
		return "", err
	}
	result, err := tool.Handler(ctx, argsJSON)
	if err != nil {
		return "", &ToolExecutionError{Tool: name, Err: err}
	}
	return result, nil
}
