package chainread

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates chain read Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new chain read handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "chain_read"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "Chain Read"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Reads blockchain state via a JSON-RPC endpoint."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"rpc_url": map[string]any{
				"type":        "string",
				"description": "JSON-RPC endpoint URL. Supports templating.",
			},
			"rpc_method": map[string]any{
				"type":        "string",
				"description": "JSON-RPC method to call.",
				"examples":    []string{"eth_blockNumber", "eth_getBalance", "eth_call"},
			},
			"params": map[string]any{
				"type":        "array",
				"description": "Positional RPC parameters. String values support templating.",
			},
		},
		"required": []string{"rpc_url", "rpc_method"},
	}
}
