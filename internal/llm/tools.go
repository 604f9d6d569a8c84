package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tool describes a callable external tool. Execute receives the parsed
// payload of the inline tool-call tag.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ToolRegistry stores tools by name for execution.
type ToolRegistry struct {
	tools map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

func (r *ToolRegistry) Register(tool Tool) {
	r.tools[tool.Spec().Name] = tool
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// AllSpecs returns the specs for all registered tools, sorted by name.
func (r *ToolRegistry) AllSpecs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, tool.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// ToolPrompt renders the system-prompt section describing the inline
// tool-call protocol and the available tools. Models without native
// function calling request tools by emitting the tag verbatim.
func ToolPrompt(specs []ToolSpec) string {
	if len(specs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("You can call tools by emitting, on its own, a tag of the form ")
	sb.WriteString(`<tool-call tool="NAME">JSON_ARGUMENTS</tool-call>`)
	sb.WriteString(". Call at most one tool per response, then wait for its result.\n\nAvailable tools:\n")
	for _, spec := range specs {
		schema, _ := json.Marshal(spec.Schema)
		fmt.Fprintf(&sb, "- %s: %s\n  input schema: %s\n", spec.Name, spec.Description, schema)
	}
	return sb.String()
}
