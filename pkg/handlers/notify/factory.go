package notify

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates notify Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new notify handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "notify"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Notify"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Delivers a notification through a webhook endpoint stored in a credential."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Credential holding the webhook endpoint and optional token.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Notification subject. Supports templating.",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Notification body. Supports templating.",
			},
		},
		"required": []string{"credential_id"},
	}
}
