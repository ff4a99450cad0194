package models

import "time"

// AgentMemory is a best-effort snapshot of one AI-node execution,
// keyed by (flow, node) so later runs of the same node can recall it.
// Retention is bounded; the store keeps only the most recent entries.
type AgentMemory struct {
	ID        string         `json:"id"`
	FlowID    string         `json:"flow_id" validate:"required"`
	NodeID    string         `json:"node_id" validate:"required"`
	Content   string         `json:"content"`
	Messages  []AgentMessage `json:"messages,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AgentRole identifies the author of a conversation message.
type AgentRole string

const (
	AgentRoleSystem    AgentRole = "system"
	AgentRoleUser      AgentRole = "user"
	AgentRoleAssistant AgentRole = "assistant"
)

// AgentMessage is one turn of an agent conversation. ToolCalls is set
// on assistant messages that requested tools; ToolResults on the
// synthetic user message that reports their outcomes back.
type AgentMessage struct {
	Role        AgentRole       `json:"role"`
	Content     string          `json:"content"`
	ToolCalls   []AgentToolCall `json:"tool_calls,omitempty"`
	ToolResults []AgentToolUse  `json:"tool_results,omitempty"`
}

// AgentToolCall is a model-requested tool invocation.
type AgentToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// AgentToolUse is the recorded outcome of one tool invocation.
type AgentToolUse struct {
	CallID string `json:"call_id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
