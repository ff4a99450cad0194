package merge

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates merge Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new merge handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "merge"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Merge"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Collects the outputs of earlier nodes into a single result."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sources": map[string]any{
				"type":        "array",
				"description": "IDs of the nodes whose outputs to collect.",
				"items": map[string]any{
					"type": "string",
				},
			},
			"mode": map[string]any{
				"type":        "string",
				"description": "Shape of the merged output.",
				"default":     "object",
				"enum":        []string{"object", "array"},
			},
		},
		"required": []string{"sources"},
	}
}
