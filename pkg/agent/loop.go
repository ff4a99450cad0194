package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

const (
	// DefaultMaxTurns bounds the tool-calling loop.
	DefaultMaxTurns = 5
	// memoryWindow is how many past conversations feed the system prompt.
	memoryWindow = 5
	// memoryKeep is how many snapshots each node retains after pruning.
	memoryKeep = 20
)

// LoopConfig configures a single agent run.
type LoopConfig struct {
	Prompt       string
	SystemPrompt string
	Model        string
	MaxTurns     int
	MaxTokens    int
}

// Loop drives the conversation between the model and the tool
// service until the model stops calling tools or the turn budget
// runs out.
type Loop struct {
	provider Provider
	tools    *ToolService
	memories persistence.AgentMemoryRepository
	logger   *slog.Logger
}

// NewLoop creates an agent loop. The memory repository may be nil, in
// which case runs are stateless.
func NewLoop(provider Provider, tools *ToolService, memories persistence.AgentMemoryRepository, logger *slog.Logger) *Loop {
	return &Loop{
		provider: provider,
		tools:    tools,
		memories: memories,
		logger:   logger.With("module", "agent_loop"),
	}
}

// Run executes the full conversation. When the turn budget is
// exhausted the last model response is returned with Exhausted set
// rather than an error.
func (l *Loop) Run(ctx context.Context, execCtx models.ExecutionContext, cfg LoopConfig) (*Result, error) {
	if l.provider == nil {
		return nil, ErrProviderRequired
	}

	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, ErrPromptRequired
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	systemPrompt := l.composeSystemPrompt(ctx, execCtx, cfg.SystemPrompt)

	messages := []models.AgentMessage{
		{Role: models.AgentRoleUser, Content: cfg.Prompt},
	}

	var (
		lastResponse *ModelResponse
		toolUses     []models.AgentToolUse
		usage        Usage
		done         bool
	)

	result := &Result{}

	for turn := 1; turn <= maxTurns; turn++ {
		result.Turns = turn

		response, err := l.provider.SendMessage(ctx, messages, l.tools.Definitions(), SendOptions{
			Model:        cfg.Model,
			SystemPrompt: systemPrompt,
			MaxTokens:    cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("model call failed on turn %d: %w", turn, err)
		}

		lastResponse = response
		usage.InputTokens += response.Usage.InputTokens
		usage.OutputTokens += response.Usage.OutputTokens

		// A terminal finish reason ends the conversation even when the
		// response still carries tool calls.
		if terminalFinish(response.FinishReason) || len(response.ToolCalls) == 0 {
			done = true

			break
		}

		messages = append(messages, models.AgentMessage{
			Role:      models.AgentRoleAssistant,
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})

		results := make([]models.AgentToolUse, 0, len(response.ToolCalls))

		for _, call := range response.ToolCalls {
			use := models.AgentToolUse{CallID: call.ID, Name: call.Name}

			output, err := l.tools.ExecuteTool(ctx, execCtx, call)
			if err != nil {
				l.logger.WarnContext(ctx, "Agent tool call failed", "tool", call.Name, "error", err)

				use.Error = err.Error()
			} else {
				use.Result = output
			}

			results = append(results, use)
			toolUses = append(toolUses, use)
		}

		messages = append(messages, models.AgentMessage{
			Role:        models.AgentRoleUser,
			ToolResults: results,
		})
	}

	result.ToolCalls = toolUses
	result.Usage = usage
	result.Messages = len(messages)

	if lastResponse != nil {
		result.Content = lastResponse.Content
		result.Exhausted = !done && len(lastResponse.ToolCalls) > 0
	}

	if result.Exhausted {
		l.logger.WarnContext(ctx, "Agent turn budget exhausted", "turns", result.Turns)
	}

	l.snapshot(ctx, execCtx, messages, result)

	return result, nil
}

// terminalFinish reports whether the model declared the conversation
// over. Providers disagree on the label.
func terminalFinish(reason string) bool {
	return reason == "stop" || reason == "end_turn"
}

// composeSystemPrompt splices recent memory into the base prompt.
// Memory failures downgrade to a log line so the run proceeds.
func (l *Loop) composeSystemPrompt(ctx context.Context, execCtx models.ExecutionContext, base string) string {
	if l.memories == nil {
		return base
	}

	recent, err := l.memories.Recent(ctx, execCtx.FlowID, execCtx.NodeID, memoryWindow)
	if err != nil {
		l.logger.WarnContext(ctx, "Failed to load agent memory", "error", err)

		return base
	}

	if len(recent) == 0 {
		return base
	}

	var buf strings.Builder

	buf.WriteString(base)
	buf.WriteString("\n\nContext from previous runs of this node:\n")

	for _, memory := range recent {
		if memory.Content == "" {
			continue
		}

		buf.WriteString("- ")
		buf.WriteString(memory.Content)
		buf.WriteString("\n")
	}

	return buf.String()
}

// snapshot persists the conversation for future runs, best effort.
func (l *Loop) snapshot(ctx context.Context, execCtx models.ExecutionContext, messages []models.AgentMessage, result *Result) {
	if l.memories == nil {
		return
	}

	memory := &models.AgentMemory{
		ID:       uuid.New().String(),
		FlowID:   execCtx.FlowID,
		NodeID:   execCtx.NodeID,
		Content:  result.Content,
		Messages: messages,
		Metadata: map[string]any{
			"run_id":    execCtx.RunID,
			"turns":     result.Turns,
			"exhausted": result.Exhausted,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := l.memories.Save(ctx, memory); err != nil {
		l.logger.WarnContext(ctx, "Failed to save agent memory", "error", err)

		return
	}

	if err := l.memories.Prune(ctx, execCtx.FlowID, execCtx.NodeID, memoryKeep); err != nil {
		l.logger.WarnContext(ctx, "Failed to prune agent memory", "error", err)
	}
}
