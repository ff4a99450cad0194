package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/registry"
)

const (
	nodeToolPrefix    = "node_"
	dbQueryToolPrefix = "db_query_"
	dbQueryNodeType   = "db_query"
)

// ToolNode is one flow node made available to the model. The config
// is fixed at flow-design time; the model only supplies the input
// payload.
type ToolNode struct {
	ID     string
	Type   string
	Config map[string]any
}

// ToolService exposes an allow-listed tool catalogue to the agent:
// node_<id> for each available flow node and db_query_<id> for each
// available database credential. Anything outside the lists is
// rejected, so the model cannot reach nodes or credentials the flow
// author did not hand it.
type ToolService struct {
	registry    *registry.Registry
	nodes       []ToolNode
	credentials []string
}

// NewToolService creates a tool service over the handler registry.
func NewToolService(reg *registry.Registry, nodes []ToolNode, credentials []string) *ToolService {
	return &ToolService{
		registry:    reg,
		nodes:       nodes,
		credentials: credentials,
	}
}

// Definitions lists the tools available to the model.
func (s *ToolService) Definitions() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(s.nodes)+len(s.credentials))

	for _, node := range s.nodes {
		factory, ok := s.registry.Factory(node.Type)
		if !ok {
			continue
		}

		out = append(out, ToolDefinition{
			Name:        nodeToolPrefix + node.ID,
			Description: factory.Description(),
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"input": map[string]any{
						"type":        "object",
						"description": "Payload passed to the node as its input.",
					},
				},
			},
		})
	}

	if _, ok := s.registry.Factory(dbQueryNodeType); ok {
		for _, credentialID := range s.credentials {
			out = append(out, ToolDefinition{
				Name:        dbQueryToolPrefix + credentialID,
				Description: "Runs a read query against the database behind this credential.",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "SQL query to run.",
						},
						"row_limit": map[string]any{
							"type":        "number",
							"description": "Maximum rows to return.",
						},
					},
					"required": []string{"query"},
				},
			})
		}
	}

	return out
}

// ExecuteTool runs one tool call and returns its result serialized
// for the model. Calls outside the configured catalogue fail the
// call, not the run.
func (s *ToolService) ExecuteTool(ctx context.Context, execCtx models.ExecutionContext, call models.AgentToolCall) (string, error) {
	if credentialID, ok := strings.CutPrefix(call.Name, dbQueryToolPrefix); ok {
		return s.executeQuery(ctx, execCtx, call, credentialID)
	}

	if nodeID, ok := strings.CutPrefix(call.Name, nodeToolPrefix); ok {
		return s.executeNode(ctx, execCtx, call, nodeID)
	}

	return "", fmt.Errorf("unknown tool %q", call.Name)
}

func (s *ToolService) executeNode(ctx context.Context, execCtx models.ExecutionContext, call models.AgentToolCall, nodeID string) (string, error) {
	var node *ToolNode

	for i := range s.nodes {
		if s.nodes[i].ID == nodeID {
			node = &s.nodes[i]

			break
		}
	}

	if node == nil {
		return "", fmt.Errorf("tool %q is not available to this agent", call.Name)
	}

	handler, err := s.registry.CreateHandler(ctx, node.Type, node.Config)
	if err != nil {
		return "", fmt.Errorf("failed to create handler for tool %q: %w", call.Name, err)
	}

	input, _ := call.Input["input"].(map[string]any)
	if input == nil {
		input = map[string]any{}
	}

	result, err := handler.Execute(ctx, execCtx, input)
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", call.Name, err)
	}

	return encodeResult(call.Name, result)
}

func (s *ToolService) executeQuery(ctx context.Context, execCtx models.ExecutionContext, call models.AgentToolCall, credentialID string) (string, error) {
	allowed := false

	for _, id := range s.credentials {
		if id == credentialID {
			allowed = true

			break
		}
	}

	if !allowed {
		return "", fmt.Errorf("tool %q is not available to this agent", call.Name)
	}

	query, _ := call.Input["query"].(string)

	config := map[string]any{
		"credential_id": credentialID,
		"query":         query,
	}

	if limit, ok := call.Input["row_limit"].(float64); ok && limit > 0 {
		config["row_limit"] = limit
	}

	handler, err := s.registry.CreateHandler(ctx, dbQueryNodeType, config)
	if err != nil {
		return "", fmt.Errorf("failed to create handler for tool %q: %w", call.Name, err)
	}

	result, err := handler.Execute(ctx, execCtx, nil)
	if err != nil {
		return "", fmt.Errorf("tool %q failed: %w", call.Name, err)
	}

	return encodeResult(call.Name, result)
}

func encodeResult(toolName string, result map[string]any) (string, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode result of tool %q: %w", toolName, err)
	}

	return string(raw), nil
}
