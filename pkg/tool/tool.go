// Package tool defines the tool invocation contract: named callables with
// JSON-schema-describable signatures, a registry, and schema export in the
// OpenAI, Anthropic and raw JSON-schema wire shapes.
package tool

import (
	"context"
	"fmt"
)

// ToolInfo describes a tool to planners and schema exporters.
type ToolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters,omitempty"`
}

// ToolParameter declares a single named input.
type ToolParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // JSON type: string, integer, number, boolean, array, object, null
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// Tool is a named function callable with a mapping of arguments. Execute
// returns an opaque output; failures are ordinary errors and become
// step-level failures in the executor.
type Tool interface {
	GetInfo() ToolInfo

	Execute(ctx context.Context, args map[string]any) (any, error)

	GetName() string

	GetDescription() string
}

// ToolError wraps failures raised inside the tool layer (bad inputs, tool
// panics surfaced as errors, decode failures).
type ToolError struct {
	Tool    string
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Message, e.Err)
	}
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

func NewToolError(tool, message string, err error) *ToolError {
	return &ToolError{Tool: tool, Message: message, Err: err}
}
