package tools

import "llmgram/internal/llm"

// DefaultRegistry returns the registry of built-in tools.
func DefaultRegistry() *llm.ToolRegistry {
	registry := llm.NewToolRegistry()
	registry.Register(NewReadURLTool())
	registry.Register(NewCurrentTimeTool())
	return registry
}
