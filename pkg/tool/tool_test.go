package tool

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *FuncTool {
	return NewFuncTool(name, "echoes its input",
		[]ToolParameter{
			{Name: "text", Type: "string", Description: "text to echo", Required: true},
			{Name: "repeat", Type: "integer", Description: "repeat count"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		},
	)
}

func TestFuncToolExecute(t *testing.T) {
	out, err := echoTool("echo").Execute(context.Background(), map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestFuncToolRejectsUndeclaredInput(t *testing.T) {
	_, err := echoTool("echo").Execute(context.Background(), map[string]any{"text": "hi", "volume": 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected input 'volume'")
}

func TestFuncToolRejectsMissingRequiredInput(t *testing.T) {
	_, err := echoTool("echo").Execute(context.Background(), map[string]any{"repeat": 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required input 'text'")
}

type addParams struct {
	A int `json:"a" jsonschema:"description=first addend"`
	B int `json:"b" jsonschema:"description=second addend"`
}

func TestTypedToolDecodesInputs(t *testing.T) {
	add := NewTypedTool("add", "adds two numbers", func(_ context.Context, p addParams) (any, error) {
		return p.A + p.B, nil
	})

	out, err := add.Execute(context.Background(), map[string]any{"a": 2, "b": 3})
	require.NoError(t, err)
	assert.Equal(t, 5, out)

	// JSON numbers arrive as float64; weak typing converts them.
	out, err = add.Execute(context.Background(), map[string]any{"a": float64(2), "b": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, 5, out)
}

func TestTypedToolReflectsParameters(t *testing.T) {
	add := NewTypedTool("add", "adds", func(_ context.Context, p addParams) (any, error) {
		return nil, nil
	})

	info := add.GetInfo()
	require.Len(t, info.Parameters, 2)
	assert.Equal(t, "a", info.Parameters[0].Name)
	assert.Equal(t, "integer", info.Parameters[0].Type)
	assert.Equal(t, "first addend", info.Parameters[0].Description)
	assert.True(t, info.Parameters[0].Required)
}

func TestRegistryLastRegistrationWins(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterTool(echoTool("echo")))
	replacement := NewFuncTool("echo", "replaced", nil, func(context.Context, map[string]any) (any, error) {
		return "new", nil
	})
	require.NoError(t, r.RegisterTool(replacement))

	got, err := r.GetTool("echo")
	require.NoError(t, err)
	assert.Equal(t, "replaced", got.GetDescription())
	assert.Equal(t, 1, r.Count())
}

func TestRegistryGetToolError(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetTool("ghost")
	require.Error(t, err)
	assert.Equal(t, "tool 'ghost' not found", err.Error())
}

func TestCatalog(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "(no tools available)", r.Catalog())

	require.NoError(t, r.RegisterTool(echoTool("zeta")))
	require.NoError(t, r.RegisterTool(echoTool("alpha")))

	catalog := r.Catalog()
	assert.Equal(t, "- alpha: echoes its input\n- zeta: echoes its input\n", catalog)
}

func TestSchemaWireFormats(t *testing.T) {
	info := echoTool("echo").GetInfo()

	openai := OpenAIFormat(info)
	assert.Equal(t, "function", openai["type"])
	fn := openai["function"].(map[string]any)
	assert.Equal(t, "echo", fn["name"])

	anthropic := AnthropicFormat(info)
	assert.Equal(t, "echo", anthropic["name"])
	schema := anthropic["input_schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"text"}, schema["required"])
}

func TestSchemaFromMapRoundTrip(t *testing.T) {
	info := echoTool("echo").GetInfo()
	raw := JSONSchemaFormat(info)

	parsed := SchemaFromMap(raw)
	assert.Equal(t, SchemaFromParameters(info.Parameters), parsed)
}

func TestValidateArgs(t *testing.T) {
	schema := SchemaFromParameters([]ToolParameter{
		{Name: "text", Type: "string", Required: true},
		{Name: "count", Type: "integer"},
		{Name: "ratio", Type: "number"},
	})

	cases := []struct {
		name  string
		args  map[string]any
		valid bool
	}{
		{"all valid", map[string]any{"text": "x", "count": 3}, true},
		{"integral float as integer", map[string]any{"text": "x", "count": float64(3)}, true},
		{"fractional float as integer", map[string]any{"text": "x", "count": 3.5}, false},
		{"int as number", map[string]any{"text": "x", "ratio": 2}, true},
		{"missing required", map[string]any{"count": 1}, false},
		{"wrong type", map[string]any{"text": 42}, false},
		{"undeclared keys pass validation", map[string]any{"text": "x", "extra": true}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidateArgs(schema, tc.args))
		})
	}
}

func TestToolErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewToolError("echo", "failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "tool echo")
}
