package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kadirpekel/agentsdk/pkg/registry"
)

// Registry maps unique tool names to tools. Registration is idempotent per
// name: the last registration wins. Contexts own their registry; there is
// no process-wide singleton.
type Registry struct {
	*registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{
		BaseRegistry: registry.NewBaseRegistry[Tool](),
	}
}

// RegisterTool adds a tool under its own name.
func (r *Registry) RegisterTool(t Tool) error {
	if t == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	return r.Register(t.GetName(), t)
}

// GetTool returns the tool or an error naming the missing tool.
func (r *Registry) GetTool(name string) (Tool, error) {
	t, exists := r.Get(name)
	if !exists {
		return nil, fmt.Errorf("tool '%s' not found", name)
	}
	return t, nil
}

// ListTools returns tool descriptions sorted by name.
func (r *Registry) ListTools() []ToolInfo {
	var infos []ToolInfo
	for _, t := range r.List() {
		infos = append(infos, t.GetInfo())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Catalog renders a bulleted tool catalog for inclusion in planner prompts.
func (r *Registry) Catalog() string {
	infos := r.ListTools()
	if len(infos) == 0 {
		return "(no tools available)"
	}

	var sb strings.Builder
	for _, info := range infos {
		sb.WriteString("- ")
		sb.WriteString(info.Name)
		if info.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(info.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
