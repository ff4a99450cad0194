package models

import (
	"context"
	"database/sql"
	"log/slog"
)

// SecretResolver decrypts a credential payload on behalf of a handler.
// Implementations must refuse lookups where the credential does not
// belong to the requesting user.
type SecretResolver interface {
	Resolve(ctx context.Context, credentialID, userID string) (map[string]any, error)
}

// ConnProvider hands out pooled per-credential database handles.
type ConnProvider interface {
	DB(ctx context.Context, credentialID string, secret map[string]any) (*sql.DB, error)
}

// ExecutionContext is the read-mostly context passed to every node
// handler. Handlers must not mutate shared state through it; the only
// write path during a run is the executor's NodeOutput append.
type ExecutionContext struct {
	RunID       string         `json:"run_id"`
	FlowID      string         `json:"flow_id"`
	UserID      string         `json:"user_id"`
	NodeID      string         `json:"node_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
	NodeResults map[string]any `json:"node_results,omitempty"`

	// Nodes is the flow's node list, available so the agent handler can
	// resolve the nodes its config allow-lists.
	Nodes []*Node `json:"-"`

	Logger  *slog.Logger   `json:"-"`
	Secrets SecretResolver `json:"-"`
	Conns   ConnProvider   `json:"-"`
}

// WithNode returns a copy scoped to the given node, with the logger
// carrying the node id.
func (e ExecutionContext) WithNode(nodeID string) ExecutionContext {
	e.NodeID = nodeID
	if e.Logger != nil {
		e.Logger = e.Logger.With("node_id", nodeID)
	}

	return e
}
