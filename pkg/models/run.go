package models

import "time"

// RunStatus represents the lifecycle state of one execution attempt.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// CanTransitionTo enforces the monotonic status machine:
// queued -> running -> {completed, failed}, with cancelled reachable
// from any non-terminal state. Backward moves are never allowed.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.Terminal() {
		return false
	}

	switch next {
	case RunStatusRunning:
		return s == RunStatusQueued
	case RunStatusCompleted, RunStatusFailed:
		return s == RunStatusRunning
	case RunStatusCancelled:
		return true
	case RunStatusQueued:
		return false
	}

	return false
}

// Run is one execution attempt of a flow.
type Run struct {
	ID         string         `json:"id"      validate:"required"`
	FlowID     string         `json:"flow_id" validate:"required"`
	UserID     string         `json:"user_id" validate:"required"`
	Status     RunStatus      `json:"status"  validate:"required"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NodeOutput is the append-only per-node execution record. Rows are
// immutable once written and ordered by CreatedAt ascending.
type NodeOutput struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"  validate:"required"`
	NodeID    string         `json:"node_id" validate:"required"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
