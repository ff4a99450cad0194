// Package models defines the core domain models for flow automation.
package models

import "time"

// FlowStatus represents the lifecycle state of a flow.
type FlowStatus string

const (
	FlowStatusDraft    FlowStatus = "draft"    // Editable, never executed
	FlowStatusActive   FlowStatus = "active"   // Executable and visible to the scheduler
	FlowStatusInactive FlowStatus = "inactive" // Kept but never triggered
)

// Flow is a user-owned automation definition: an ordered list of nodes
// plus the connections drawn between them on the canvas.
type Flow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"        validate:"required,min=3"`
	Description string        `json:"description"`
	Status      FlowStatus    `json:"status"      validate:"required"`
	Nodes       []*Node       `json:"nodes"`
	Connections []*Connection `json:"connections"`
	UserID      string        `json:"user_id"     validate:"required"`

	// Schedule is an optional recurrence expression: either an interval
	// ("5m", "30s", "1h") or a 5-field cron expression.
	Schedule  *string    `json:"schedule,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Schedulable reports whether the scheduler should evaluate this flow.
func (f *Flow) Schedulable() bool {
	return f.Status == FlowStatusActive && f.Schedule != nil && *f.Schedule != ""
}

// Node is one configured step within a flow. Type is the key into the
// handler registry; Data is the handler-specific configuration blob.
type Node struct {
	ID        string         `json:"id"   validate:"required"`
	Type      string         `json:"type" validate:"required"`
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	Enabled   bool           `json:"enabled"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Connection is a directed edge between two nodes. The executor runs
// nodes in array order; connections are kept for the canvas and for a
// future graph-traversal executor, they do not drive dispatch.
type Connection struct {
	ID        string `json:"id"`
	From      string `json:"from" validate:"required"`
	To        string `json:"to"   validate:"required"`
	Condition string `json:"condition,omitempty"`
}
