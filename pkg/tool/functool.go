package tool

import (
	"context"

	"github.com/mitchellh/mapstructure"
)

// FuncTool adapts a plain Go function to the Tool interface with an
// explicit parameter declaration.
type FuncTool struct {
	name        string
	description string
	parameters  []ToolParameter
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

func NewFuncTool(name, description string, parameters []ToolParameter, fn func(ctx context.Context, args map[string]any) (any, error)) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

func (t *FuncTool) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateInputKeys(t.parameters, args); err != nil {
		return nil, err
	}
	return t.fn(ctx, args)
}

func (t *FuncTool) GetName() string {
	return t.name
}

func (t *FuncTool) GetDescription() string {
	return t.description
}

// validateInputKeys enforces the invocation contract: supplied keys must be
// a subset of declared parameters and every required parameter must be
// present.
func validateInputKeys(parameters []ToolParameter, args map[string]any) error {
	declared := make(map[string]ToolParameter, len(parameters))
	for _, p := range parameters {
		declared[p.Name] = p
	}

	for key := range args {
		if _, ok := declared[key]; !ok {
			return NewToolError("", "unexpected input '"+key+"'", nil)
		}
	}

	for _, p := range parameters {
		if !p.Required {
			continue
		}
		if _, ok := args[p.Name]; !ok {
			return NewToolError("", "missing required input '"+p.Name+"'", nil)
		}
	}

	return nil
}

// TypedTool adapts a function taking a typed parameter struct. Inputs are
// decoded from the argument map with mapstructure; the schema is reflected
// from the struct's fields and jsonschema tags.
type TypedTool[P any] struct {
	name        string
	description string
	parameters  []ToolParameter
	fn          func(ctx context.Context, params P) (any, error)
}

func NewTypedTool[P any](name, description string, fn func(ctx context.Context, params P) (any, error)) *TypedTool[P] {
	var zero P
	return &TypedTool[P]{
		name:        name,
		description: description,
		parameters:  reflectParameters(zero),
		fn:          fn,
	}
}

func (t *TypedTool[P]) GetInfo() ToolInfo {
	return ToolInfo{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *TypedTool[P]) Execute(ctx context.Context, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := validateInputKeys(t.parameters, args); err != nil {
		return nil, err
	}

	var params P
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &params,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, NewToolError(t.name, "failed to build input decoder", err)
	}
	if err := decoder.Decode(args); err != nil {
		return nil, NewToolError(t.name, "invalid inputs", err)
	}

	return t.fn(ctx, params)
}

func (t *TypedTool[P]) GetName() string {
	return t.name
}

func (t *TypedTool[P]) GetDescription() string {
	return t.description
}
