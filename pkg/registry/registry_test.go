package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/protocol"
)

type echoHandler struct {
	config map[string]any
}

func (h *echoHandler) Execute(_ context.Context, _ models.ExecutionContext, _ map[string]any) (map[string]any, error) {
	return h.config, nil
}

type echoFactory struct{}

func (f *echoFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return &echoHandler{config: config}, nil
}

func (f *echoFactory) ID() string          { return "echo" }
func (f *echoFactory) Name() string        { return "Echo" }
func (f *echoFactory) Description() string { return "Returns its own configuration." }

func (f *echoFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"label": map[string]any{"type": "string"},
		},
		"required": []string{"label"},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestCreateHandler(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&echoFactory{})

	handler, err := reg.CreateHandler(context.Background(), "echo", map[string]any{"label": "hi"})
	require.NoError(t, err)
	require.NotNil(t, handler)

	result, err := handler.Execute(context.Background(), models.ExecutionContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result["label"])
}

func TestCreateHandlerUnknownType(t *testing.T) {
	reg := NewRegistry(testLogger())

	_, err := reg.CreateHandler(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestCreateHandlerRejectsInvalidConfig(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&echoFactory{})

	_, err := reg.CreateHandler(context.Background(), "echo", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	_, err = reg.CreateHandler(context.Background(), "echo", map[string]any{"label": 7})
	require.Error(t, err)
}

func TestLaterRegistrationWins(t *testing.T) {
	reg := NewRegistry(testLogger())
	first := &echoFactory{}
	second := &echoFactory{}
	reg.Register(first)
	reg.Register(second)

	factory, ok := reg.Factory("echo")
	require.True(t, ok)
	assert.Same(t, second, factory)
}

func TestHandlerTypes(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&echoFactory{})

	assert.ElementsMatch(t, []string{"echo"}, reg.HandlerTypes())
}
