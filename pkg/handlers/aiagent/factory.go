package aiagent

import (
	"context"

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/protocol"
	"github.com/voltflow/voltflow/pkg/registry"
)

// HandlerFactory creates AI agent Handler instances. It carries the
// handler registry so agent tools can run other node types, and the
// memory repository for cross-run context.
type HandlerFactory struct {
	registry *registry.Registry
	memories persistence.AgentMemoryRepository
}

// NewHandlerFactory creates a new AI agent handler factory.
func NewHandlerFactory(reg *registry.Registry, memories persistence.AgentMemoryRepository) *HandlerFactory {
	return &HandlerFactory{registry: reg, memories: memories}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config, h.registry, h.memories)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "ai_agent"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "AI Agent"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Runs a tool-calling AI agent with a bounded conversation loop."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "User prompt for the agent. Supports templating.",
			},
			"system_prompt": map[string]any{
				"type":        "string",
				"description": "System prompt prepended to every conversation.",
			},
			"provider": map[string]any{
				"type":        "string",
				"description": "Model provider to use.",
				"default":     "anthropic",
				"enum":        []string{"anthropic", "openai"},
			},
			"model": map[string]any{
				"type":        "string",
				"description": "Model name. Defaults to the provider's standard model.",
			},
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Credential holding the provider API key. Falls back to the provider's environment variable.",
			},
			"max_turns": map[string]any{
				"type":        "number",
				"description": "Maximum tool-calling turns before the loop stops.",
				"default":     5,
			},
			"max_tokens": map[string]any{
				"type":        "number",
				"description": "Token budget per model call.",
			},
			"available_nodes": map[string]any{
				"type":        "array",
				"description": "Flow node ids the agent may run as tools.",
				"items":       map[string]any{"type": "string"},
			},
			"available_credentials": map[string]any{
				"type":        "array",
				"description": "Database credential ids the agent may query.",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required": []string{"prompt"},
	}
}
