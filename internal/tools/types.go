// Package tools provides the tool registry used by LLM tool-calling layers.
//
// A Tool is a named function over JSON-shaped arguments. Tools are grouped
// by category, described with a JSON schema for function calling, and run
// through a Registry that validates arguments and records every execution.
package tools

import (
	"context"
)

// ToolCategory classifies tools.
type ToolCategory string

const (
	// CategoryFiles covers workspace file reading, writing and listing.
	CategoryFiles ToolCategory = "/files"

	// CategorySandbox covers command and code execution in containers.
	CategorySandbox ToolCategory = "/sandbox"

	// CategoryGeneral is for everything else.
	CategoryGeneral ToolCategory = "/general"
)

// Property describes a single parameter property for JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	// Items describes array element schema (required for type="array")
	Items *PropertyItems `json:"items,omitempty"`
}

// PropertyItems describes the schema for array elements.
type PropertyItems struct {
	Type string `json:"type"`
}

// ToolSchema defines the JSON schema for tool arguments.
type ToolSchema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a tool that a model can call.
type Tool struct {
	// Name is the unique identifier for the tool.
	Name string

	// Description explains what the tool does.
	// Used for LLM tool calling and documentation.
	Description string

	// Category classifies the tool.
	Category ToolCategory

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema

	// Priority orders tools within a category.
	// Higher priority tools are listed first (default 50).
	Priority int
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// WithPriority returns a copy of the tool with the given priority.
func (t *Tool) WithPriority(priority int) *Tool {
	c := *t
	c.Priority = priority
	return &c
}

// Definition returns the function-calling definition of the tool.
func (t *Tool) Definition() FunctionDefinition {
	props := t.Schema.Properties
	if props == nil {
		props = map[string]Property{}
	}
	required := t.Schema.Required
	if required == nil {
		required = []string{}
	}
	return FunctionDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters: ParametersSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// FunctionDefinition is the JSON shape model APIs expect for a callable tool.
type FunctionDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  ParametersSchema `json:"parameters"`
}

// ParametersSchema is a JSON-schema object describing tool arguments.
type ParametersSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// ToolResult wraps the result of tool execution with metadata.
type ToolResult struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// SessionID is taken from the context, see WithSession.
	SessionID string

	// Result is the string output from the tool.
	Result string

	// Error is set if the tool failed.
	Error error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *ToolResult) IsSuccess() bool {
	return r.Error == nil
}

// Recorder persists tool executions.
type Recorder interface {
	Record(ctx context.Context, result *ToolResult, args map[string]any) error
}

type sessionKey struct{}

// WithSession tags ctx with a session ID that ends up in ToolResult.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// SessionFromContext returns the session ID set by WithSession.
func SessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}
