package logmsg

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates log message Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new log handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "log"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Log"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Writes a templated message to the run log."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
	}
}
