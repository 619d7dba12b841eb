package tool

import (
	"math"
	"strings"

	"github.com/invopop/jsonschema"
)

// Schema is the canonical object schema for a tool's inputs. It serializes
// into three wire shapes: OpenAI function-calling, Anthropic tool use, and
// raw JSON schema.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]PropertySchema `json:"properties"`
	Required   []string                  `json:"required"`
}

type PropertySchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// SchemaFromParameters builds the canonical schema from an explicit
// parameter declaration.
func SchemaFromParameters(parameters []ToolParameter) Schema {
	schema := Schema{
		Type:       "object",
		Properties: make(map[string]PropertySchema, len(parameters)),
		Required:   []string{},
	}

	for _, p := range parameters {
		schema.Properties[p.Name] = PropertySchema{
			Type:        p.Type,
			Description: p.Description,
		}
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}

	return schema
}

// reflectParameters derives a parameter declaration from a typed parameter
// struct using jsonschema reflection. Field names follow json tags;
// descriptions come from jsonschema:"description=..." tags.
func reflectParameters(v any) []ToolParameter {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	reflected := reflector.Reflect(v)

	required := make(map[string]bool, len(reflected.Required))
	for _, name := range reflected.Required {
		required[name] = true
	}

	var parameters []ToolParameter
	if reflected.Properties != nil {
		for pair := reflected.Properties.Oldest(); pair != nil; pair = pair.Next() {
			prop := pair.Value
			parameters = append(parameters, ToolParameter{
				Name:        pair.Key,
				Type:        prop.Type,
				Description: prop.Description,
				Required:    required[pair.Key],
			})
		}
	}

	return parameters
}

// OpenAIFormat serializes the tool schema as an OpenAI function definition.
func OpenAIFormat(info ToolInfo) map[string]any {
	schema := SchemaFromParameters(info.Parameters)
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        info.Name,
			"description": info.Description,
			"parameters":  schema.asMap(),
		},
	}
}

// AnthropicFormat serializes the tool schema as an Anthropic tool
// definition.
func AnthropicFormat(info ToolInfo) map[string]any {
	schema := SchemaFromParameters(info.Parameters)
	return map[string]any{
		"name":         info.Name,
		"description":  info.Description,
		"input_schema": schema.asMap(),
	}
}

// JSONSchemaFormat serializes the raw object schema.
func JSONSchemaFormat(info ToolInfo) map[string]any {
	return SchemaFromParameters(info.Parameters).asMap()
}

func (s Schema) asMap() map[string]any {
	properties := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		properties[name] = p
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   append([]string{}, s.Required...),
	}
}

// SchemaFromMap parses a raw JSON-schema object back into the canonical
// form. Round-trips with JSONSchemaFormat ignoring field order.
func SchemaFromMap(raw map[string]any) Schema {
	schema := Schema{
		Type:       "object",
		Properties: map[string]PropertySchema{},
		Required:   []string{},
	}

	if t, ok := raw["type"].(string); ok {
		schema.Type = t
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		for name, p := range props {
			prop := PropertySchema{}
			if pm, ok := p.(map[string]any); ok {
				prop.Type, _ = pm["type"].(string)
				prop.Description, _ = pm["description"].(string)
			}
			schema.Properties[name] = prop
		}
	}
	switch req := raw["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, req...)
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	return schema
}

// ValidateArgs reports whether args satisfies the schema: every required
// key present, every supplied value matching its declared JSON type.
// Type checks are nominal, not structural.
func ValidateArgs(schema Schema, args map[string]any) bool {
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return false
		}
	}

	for name, value := range args {
		prop, declared := schema.Properties[name]
		if !declared {
			continue
		}
		if !matchesJSONType(prop.Type, value) {
			return false
		}
	}

	return true
}

func matchesJSONType(jsonType string, value any) bool {
	switch strings.ToLower(jsonType) {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		default:
			return false
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case "array":
		switch value.(type) {
		case []any, []string, []int, []float64:
			return true
		default:
			return false
		}
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
