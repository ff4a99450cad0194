package dbquery

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates database query Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new database query handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "db_query"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Database Query"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Runs a read query against a database reachable through a credential."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"credential_id": map[string]any{
				"type":        "string",
				"description": "Credential holding the database connection string.",
			},
			"query": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "SQL query to run. Supports templating.",
			},
			"row_limit": map[string]any{
				"type":        "number",
				"description": "Maximum number of rows returned.",
				"default":     1000,
			},
		},
		"required": []string{"credential_id", "query"},
	}
}
