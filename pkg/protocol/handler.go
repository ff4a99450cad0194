// Package protocol defines the contract between the executor and node
// handlers.
package protocol

import (
	"context"

	"github.com/voltflow/voltflow/pkg/models"
)

// Handler is the execution unit behind one node type. Input is the
// accumulated output of the previous node (the trigger payload for the
// first node). Handlers signal a hard failure by returning an error,
// which aborts the run; recoverable problems are reported as a
// {"success": false, "error": ...} payload so downstream nodes can
// react to them.
type Handler interface {
	Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error)
}

// HandlerFactory creates handler instances and describes the node type.
type HandlerFactory interface {
	// Create builds a handler from the node's configuration blob.
	Create(ctx context.Context, config map[string]any) (Handler, error)

	// ID returns the node-type string this factory serves.
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns what this node does.
	Description() string

	// Schema returns the JSON schema the configuration must satisfy.
	Schema() map[string]any
}

// SoftFailure builds the conventional recoverable-failure payload.
func SoftFailure(err error, extra map[string]any) map[string]any {
	payload := map[string]any{
		"success": false,
		"error":   err.Error(),
	}

	for k, v := range extra {
		payload[k] = v
	}

	return payload
}
