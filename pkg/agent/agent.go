// Package agent implements the AI agent node runtime: model
// providers, the tool bridge, and the bounded tool-calling loop.
package agent

import (
	"context"
	"errors"

	"github.com/voltflow/voltflow/pkg/models"
)

var (
	// ErrProviderRequired is returned when no model provider is configured.
	ErrProviderRequired = errors.New("agent provider not configured")
	// ErrPromptRequired is returned when the agent node has no prompt.
	ErrPromptRequired = errors.New("agent prompt is empty")
)

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Usage reports token consumption for a single model call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ModelResponse is the provider-neutral result of one model call.
type ModelResponse struct {
	Content      string
	ToolCalls    []models.AgentToolCall
	FinishReason string
	Usage        Usage
}

// SendOptions tune a single model call.
type SendOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
}

// Provider sends a conversation to a model and returns its reply.
type Provider interface {
	Name() string
	SendMessage(ctx context.Context, messages []models.AgentMessage, tools []ToolDefinition, opts SendOptions) (*ModelResponse, error)
}

// Result is the outcome of a full agent loop. Messages counts the
// conversation entries accumulated across all turns.
type Result struct {
	Content   string               `json:"content"`
	Turns     int                  `json:"turns"`
	Messages  int                  `json:"messages"`
	ToolCalls []models.AgentToolUse `json:"tool_calls"`
	Exhausted bool                 `json:"exhausted"`
	Usage     Usage                `json:"usage"`
}
