package aiagent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/agent"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/registry"
)

type deniedResolver struct{}

func (deniedResolver) Resolve(_ context.Context, _, _ string) (map[string]any, error) {
	return nil, errors.New("access denied")
}

func testExecCtx() models.ExecutionContext {
	return models.ExecutionContext{
		RunID:   "run-1",
		FlowID:  "flow-1",
		UserID:  "user-1",
		Logger:  slog.New(slog.NewTextHandler(os.Stdout, nil)),
		Secrets: deniedResolver{},
	}
}

func testRegistry() *registry.Registry {
	return registry.NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestNewHandlerRequiresPrompt(t *testing.T) {
	_, err := NewHandler(map[string]any{}, testRegistry(), nil)
	assert.ErrorIs(t, err, ErrPromptRequired)
}

func TestNewHandlerDefaults(t *testing.T) {
	handler, err := NewHandler(map[string]any{"prompt": "summarize"}, testRegistry(), nil)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", handler.ProviderName)
	assert.Empty(t, handler.Model)
	assert.Zero(t, handler.MaxTurns)
}

func TestNewHandlerParsesConfig(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"prompt":                "summarize {{.trigger.subject}}",
		"provider":              "openai",
		"model":                 "gpt-4o",
		"system_prompt":         "be brief",
		"credential_id":         "cred-1",
		"max_turns":             float64(3),
		"max_tokens":            float64(512),
		"available_nodes":       []any{"fetch-report", "notify-team"},
		"available_credentials": []any{"cred-db"},
	}, testRegistry(), nil)
	require.NoError(t, err)

	assert.Equal(t, "openai", handler.ProviderName)
	assert.Equal(t, "gpt-4o", handler.Model)
	assert.Equal(t, "be brief", handler.SystemPrompt)
	assert.Equal(t, "cred-1", handler.CredentialID)
	assert.Equal(t, 3, handler.MaxTurns)
	assert.Equal(t, 512, handler.MaxTokens)
	assert.Equal(t, []string{"fetch-report", "notify-team"}, handler.AvailableNodes)
	assert.Equal(t, []string{"cred-db"}, handler.AvailableCredentials)
}

func TestToolNodesResolveAgainstFlow(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"prompt":          "summarize",
		"available_nodes": []any{"fetch", "agent", "ghost", "paused"},
	}, testRegistry(), nil)
	require.NoError(t, err)

	execCtx := testExecCtx()
	execCtx.NodeID = "agent"
	execCtx.Nodes = []*models.Node{
		{ID: "fetch", Type: "http_request", Data: map[string]any{"url": "https://example.com"}, Enabled: true},
		{ID: "agent", Type: "ai_agent", Enabled: true},
		{ID: "paused", Type: "log", Enabled: false},
	}

	nodes := handler.toolNodes(execCtx)
	require.Len(t, nodes, 1, "only enabled flow nodes other than the agent itself qualify")
	assert.Equal(t, "fetch", nodes[0].ID)
	assert.Equal(t, "http_request", nodes[0].Type)
	assert.Equal(t, "https://example.com", nodes[0].Config["url"])
}

func TestBuildOutputReportsToolActivity(t *testing.T) {
	result := &agent.Result{
		Content:  "the report is ready",
		Turns:    3,
		Messages: 5,
		ToolCalls: []models.AgentToolUse{
			{Name: "node_fetch", Result: `{"success":true,"status_code":200}`},
			{Name: "node_fetch", Error: "tool \"node_fetch\" failed: timeout"},
			{Name: "db_query_cred-db", Result: `{"rows":[]}`},
		},
		Usage: agent.Usage{InputTokens: 120, OutputTokens: 48},
	}

	output := buildOutput(result)

	assert.Equal(t, "ok", output["status"])
	assert.Equal(t, 5, output["conversation_length"])
	assert.Equal(t, 1, output["db_queries_run"])

	nodeOutputs, ok := output["node_outputs"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, nodeOutputs, "fetch")

	fetch, ok := nodeOutputs["fetch"].(map[string]any)
	require.True(t, ok, "tool output should decode back into structured data")
	assert.Equal(t, true, fetch["success"])

	calls, ok := output["tool_calls"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, calls, 3)
}

func TestExecuteSoftFailsOnUnknownProvider(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"prompt":   "summarize",
		"provider": "acme",
		"model":    "acme-1",
	}, testRegistry(), nil)
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), testExecCtx(), nil)
	require.NoError(t, err, "agent failures must not fail the run")

	assert.Equal(t, "error", result["status"])
	assert.Equal(t, "acme", result["provider"])
	assert.Equal(t, "acme-1", result["model"])
	assert.Contains(t, result["error"], "unknown agent provider")
}

func TestExecuteSoftFailsOnCredentialDenial(t *testing.T) {
	handler, err := NewHandler(map[string]any{
		"prompt":        "summarize",
		"credential_id": "cred-1",
	}, testRegistry(), nil)
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), testExecCtx(), nil)
	require.NoError(t, err)

	assert.Equal(t, "error", result["status"])
	assert.Contains(t, result["error"], "access denied")
}
