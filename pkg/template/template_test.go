package template

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/models"
)

func testExecCtx() *models.ExecutionContext {
	return &models.ExecutionContext{
		RunID:  "run-1",
		FlowID: "flow-1",
		UserID: "user-1",
		TriggerData: map[string]any{
			"webhook": map[string]any{"user_id": "u-42"},
		},
		NodeResults: map[string]any{
			"fetch": map[string]any{"count": float64(3)},
		},
		Logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}

func TestRenderWithContextResults(t *testing.T) {
	result, err := RenderWithContext("{{.results.fetch.count}}", testExecCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(3), result)
}

func TestRenderWithContextTrigger(t *testing.T) {
	result, err := RenderWithContext("{{.trigger.webhook.user_id}}", testExecCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "u-42", result)
}

func TestRenderWithContextInput(t *testing.T) {
	input := map[string]any{"name": "alpha"}

	result, err := RenderWithContext("{{.input.name}}", testExecCtx(), input)
	require.NoError(t, err)
	assert.Equal(t, "alpha", result)
}

func TestRenderWithContextRun(t *testing.T) {
	result, err := RenderWithContext("{{.run.id}}", testExecCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "run-1", result)
}

func TestRenderParsesJSONOutput(t *testing.T) {
	result, err := Render(`{"a": {{.n}}}`, map[string]any{"n": 1})
	require.NoError(t, err)

	parsed, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), parsed["a"])
}

func TestRenderParsesBoolean(t *testing.T) {
	result, err := Render("{{.flag}}", map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, true, result)
}

func TestRenderString(t *testing.T) {
	out, err := RenderString("https://api.example.com/users/{{.trigger.webhook.user_id}}", testExecCtx(), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/u-42", out)
}

func TestRenderInvalidTemplate(t *testing.T) {
	_, err := Render("{{.broken", nil)
	assert.Error(t, err)
}
