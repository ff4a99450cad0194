package condition

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates condition Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new condition handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "condition"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Condition"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Evaluates a templated expression and reports which branch to follow."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Templated expression evaluated for truthiness.",
				"examples": []string{
					"{{gt .results.check.count 10}}",
					"{{.trigger.enabled}}",
				},
			},
			"true_branch": map[string]any{
				"type":        "string",
				"description": "Branch label reported when the expression is true.",
				"default":     "true",
			},
			"false_branch": map[string]any{
				"type":        "string",
				"description": "Branch label reported when the expression is false.",
				"default":     "false",
			},
		},
		"required": []string{"expression"},
	}
}
