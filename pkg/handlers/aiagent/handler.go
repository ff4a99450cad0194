// Package aiagent provides the AI agent node handler. Agent failures
// soft-fail so the run can continue past a misbehaving model.
package aiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/voltflow/voltflow/pkg/agent"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/registry"
	"github.com/voltflow/voltflow/pkg/template"
)

var (
	// ErrPromptRequired is returned when the node config carries no prompt.
	ErrPromptRequired = errors.New("missing required field 'prompt'")
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown agent provider")
)

// Handler wraps the agent loop as a flow node. AvailableNodes and
// AvailableCredentials bound the tool catalogue the model may call.
type Handler struct {
	ProviderName         string
	Model                string
	Prompt               string
	SystemPrompt         string
	MaxTurns             int
	MaxTokens            int
	CredentialID         string
	AvailableNodes       []string
	AvailableCredentials []string

	registry *registry.Registry
	memories persistence.AgentMemoryRepository
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any, reg *registry.Registry, memories persistence.AgentMemoryRepository) (*Handler, error) {
	prompt, ok := config["prompt"].(string)
	if !ok || prompt == "" {
		return nil, ErrPromptRequired
	}

	providerName, _ := config["provider"].(string)
	if providerName == "" {
		providerName = "anthropic"
	}

	model, _ := config["model"].(string)
	systemPrompt, _ := config["system_prompt"].(string)
	credentialID, _ := config["credential_id"].(string)

	maxTurns := 0
	if turns, ok := config["max_turns"].(float64); ok && turns > 0 {
		maxTurns = int(turns)
	}

	maxTokens := 0
	if tokens, ok := config["max_tokens"].(float64); ok && tokens > 0 {
		maxTokens = int(tokens)
	}

	return &Handler{
		ProviderName:         providerName,
		Model:                model,
		Prompt:               prompt,
		SystemPrompt:         systemPrompt,
		MaxTurns:             maxTurns,
		MaxTokens:            maxTokens,
		CredentialID:         credentialID,
		AvailableNodes:       stringList(config["available_nodes"]),
		AvailableCredentials: stringList(config["available_credentials"]),
		registry:             reg,
		memories:             memories,
	}, nil
}

func stringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(items))

	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}

	return out
}

// Execute renders the prompt, runs the agent loop, and reports the
// outcome. Provider and loop failures produce a soft failure payload
// instead of failing the run.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "ai_agent_handler")
	logger.InfoContext(ctx, "Executing AI agent node", "provider", h.ProviderName, "model", h.Model)

	provider, err := h.buildProvider(ctx, execCtx)
	if err != nil {
		logger.WarnContext(ctx, "Agent provider unavailable", "error", err)

		return h.softFailure(err), nil
	}

	prompt, err := template.RenderString(h.Prompt, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render agent prompt: %w", err)
	}

	tools := agent.NewToolService(h.registry, h.toolNodes(execCtx), h.AvailableCredentials)
	loop := agent.NewLoop(provider, tools, h.memories, execCtx.Logger)

	result, err := loop.Run(ctx, execCtx, agent.LoopConfig{
		Prompt:       prompt,
		SystemPrompt: h.SystemPrompt,
		Model:        h.Model,
		MaxTurns:     h.MaxTurns,
		MaxTokens:    h.MaxTokens,
	})
	if err != nil {
		logger.WarnContext(ctx, "Agent loop failed", "error", err)

		return h.softFailure(err), nil
	}

	return buildOutput(result), nil
}

// buildOutput assembles the node payload from the loop result: the
// final content plus per-node outputs, query counts, and the
// conversation shape.
func buildOutput(result *agent.Result) map[string]any {
	calls := make([]map[string]any, 0, len(result.ToolCalls))
	nodeOutputs := map[string]any{}
	dbQueriesRun := 0

	for _, use := range result.ToolCalls {
		calls = append(calls, map[string]any{
			"name":  use.Name,
			"error": use.Error,
		})

		if strings.HasPrefix(use.Name, "db_query_") {
			dbQueriesRun++

			continue
		}

		if nodeID, ok := strings.CutPrefix(use.Name, "node_"); ok && use.Error == "" {
			nodeOutputs[nodeID] = decodeToolResult(use.Result)
		}
	}

	return map[string]any{
		"status":              "ok",
		"content":             result.Content,
		"turns":               result.Turns,
		"exhausted":           result.Exhausted,
		"conversation_length": result.Messages,
		"tool_calls":          calls,
		"node_outputs":        nodeOutputs,
		"db_queries_run":      dbQueriesRun,
		"usage": map[string]any{
			"input_tokens":  result.Usage.InputTokens,
			"output_tokens": result.Usage.OutputTokens,
		},
	}
}

// toolNodes resolves the allow-listed node ids against the flow's
// nodes. Unknown ids and the agent node itself are skipped.
func (h *Handler) toolNodes(execCtx models.ExecutionContext) []agent.ToolNode {
	byID := make(map[string]*models.Node, len(execCtx.Nodes))
	for _, node := range execCtx.Nodes {
		byID[node.ID] = node
	}

	out := make([]agent.ToolNode, 0, len(h.AvailableNodes))

	for _, id := range h.AvailableNodes {
		node, ok := byID[id]
		if !ok || node.ID == execCtx.NodeID || !node.Enabled {
			continue
		}

		out = append(out, agent.ToolNode{
			ID:     node.ID,
			Type:   node.Type,
			Config: node.Data,
		})
	}

	return out
}

// decodeToolResult turns the serialized tool output back into
// structured data where it parses.
func decodeToolResult(raw string) any {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}

	return decoded
}

func (h *Handler) buildProvider(ctx context.Context, execCtx models.ExecutionContext) (agent.Provider, error) {
	apiKey, err := h.resolveAPIKey(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	switch h.ProviderName {
	case "anthropic":
		return agent.NewAnthropicProvider(apiKey), nil
	case "openai":
		return agent.NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, h.ProviderName)
	}
}

// resolveAPIKey prefers a vault credential and falls back to the
// provider's conventional environment variable.
func (h *Handler) resolveAPIKey(ctx context.Context, execCtx models.ExecutionContext) (string, error) {
	if h.CredentialID != "" {
		secret, err := execCtx.Secrets.Resolve(ctx, h.CredentialID, execCtx.UserID)
		if err != nil {
			return "", fmt.Errorf("failed to resolve agent credential: %w", err)
		}

		if apiKey, ok := secret["api_key"].(string); ok && apiKey != "" {
			return apiKey, nil
		}

		return "", errors.New("agent credential payload has no 'api_key'")
	}

	switch h.ProviderName {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY"), nil
	case "openai":
		return os.Getenv("OPENAI_API_KEY"), nil
	}

	return "", nil
}

func (h *Handler) softFailure(err error) map[string]any {
	return map[string]any{
		"status":   "error",
		"error":    err.Error(),
		"provider": h.ProviderName,
		"model":    h.Model,
	}
}
