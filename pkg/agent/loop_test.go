package agent

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/handlers/logmsg"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/registry"
)

// scriptedProvider replays a fixed sequence of responses.
type scriptedProvider struct {
	responses []*ModelResponse
	calls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) SendMessage(_ context.Context, _ []models.AgentMessage, _ []ToolDefinition, _ SendOptions) (*ModelResponse, error) {
	response := p.responses[p.calls]
	if p.calls < len(p.responses)-1 {
		p.calls++
	}

	return response, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testToolService() *ToolService {
	reg := registry.NewRegistry(testLogger())
	reg.Register(logmsg.NewHandlerFactory())

	nodes := []ToolNode{
		{ID: "note", Type: "log", Config: map[string]any{"message": "from agent"}},
	}

	return NewToolService(reg, nodes, nil)
}

func testExecCtx() models.ExecutionContext {
	return models.ExecutionContext{
		RunID:       "run-1",
		FlowID:      "flow-1",
		UserID:      "user-1",
		NodeID:      "agent-node",
		NodeResults: map[string]any{},
		Logger:      testLogger(),
	}
}

func toolCallResponse(callID string) *ModelResponse {
	return &ModelResponse{
		Content: "calling a tool",
		ToolCalls: []models.AgentToolCall{
			{
				ID:    callID,
				Name:  "node_note",
				Input: map[string]any{"input": map[string]any{}},
			},
		},
		FinishReason: "tool_use",
	}
}

func TestLoopStopsWhenModelStopsCallingTools(t *testing.T) {
	provider := &scriptedProvider{responses: []*ModelResponse{
		toolCallResponse("call-1"),
		{Content: "all done", FinishReason: "end_turn"},
	}}

	loop := NewLoop(provider, testToolService(), nil, testLogger())

	result, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "do the thing"})
	require.NoError(t, err)

	assert.Equal(t, "all done", result.Content)
	assert.Equal(t, 2, result.Turns)
	assert.False(t, result.Exhausted)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "node_note", result.ToolCalls[0].Name)
	assert.Empty(t, result.ToolCalls[0].Error)
	assert.Equal(t, 3, result.Messages)
}

func TestLoopHonorsTerminalFinishReason(t *testing.T) {
	// A stop finish reason ends the conversation even when the response
	// still carries tool calls. Those calls must not run.
	provider := &scriptedProvider{responses: []*ModelResponse{
		{
			Content: "final answer",
			ToolCalls: []models.AgentToolCall{
				{ID: "call-late", Name: "node_note", Input: map[string]any{}},
			},
			FinishReason: "stop",
		},
	}}

	loop := NewLoop(provider, testToolService(), nil, testLogger())

	result, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "wrap up"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Turns)
	assert.False(t, result.Exhausted)
	assert.Equal(t, "final answer", result.Content)
	assert.Empty(t, result.ToolCalls)
}

func TestLoopExhaustsTurnBudget(t *testing.T) {
	// The model never stops calling tools; the loop must stop anyway
	// and return the last response.
	provider := &scriptedProvider{responses: []*ModelResponse{
		toolCallResponse("call-endless"),
	}}

	loop := NewLoop(provider, testToolService(), nil, testLogger())

	result, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "loop forever", MaxTurns: 3})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Turns)
	assert.True(t, result.Exhausted)
	assert.Equal(t, "calling a tool", result.Content)
	assert.Len(t, result.ToolCalls, 3)
}

func TestLoopDefaultsTurnBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []*ModelResponse{
		toolCallResponse("call-endless"),
	}}

	loop := NewLoop(provider, testToolService(), nil, testLogger())

	result, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "loop forever"})
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxTurns, result.Turns)
	assert.True(t, result.Exhausted)
}

func TestLoopRecordsToolErrors(t *testing.T) {
	provider := &scriptedProvider{responses: []*ModelResponse{
		{
			ToolCalls: []models.AgentToolCall{
				{ID: "call-1", Name: "node_missing", Input: map[string]any{}},
			},
			FinishReason: "tool_use",
		},
		{Content: "recovered", FinishReason: "end_turn"},
	}}

	loop := NewLoop(provider, testToolService(), nil, testLogger())

	result, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "use a bad tool"})
	require.NoError(t, err)

	assert.Equal(t, "recovered", result.Content)
	require.Len(t, result.ToolCalls, 1)
	assert.NotEmpty(t, result.ToolCalls[0].Error)
}

func TestLoopRejectsEmptyPrompt(t *testing.T) {
	loop := NewLoop(&scriptedProvider{responses: []*ModelResponse{{}}}, testToolService(), nil, testLogger())

	_, err := loop.Run(context.Background(), testExecCtx(), LoopConfig{Prompt: "   "})
	assert.ErrorIs(t, err, ErrPromptRequired)
}

func TestLoopPersistsMemory(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	provider := &scriptedProvider{responses: []*ModelResponse{
		{Content: "remembered", FinishReason: "end_turn"},
	}}

	loop := NewLoop(provider, testToolService(), p.AgentMemories(), testLogger())

	_, err := loop.Run(ctx, testExecCtx(), LoopConfig{Prompt: "remember this"})
	require.NoError(t, err)

	memories, err := p.AgentMemories().Recent(ctx, "flow-1", "agent-node", 10)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	assert.Equal(t, "remembered", memories[0].Content)
}
