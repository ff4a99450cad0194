// Package events defines the queue job payload and the run lifecycle
// notifications published by workers.
package events

import (
	"time"
)

type EventType string

// Topics.
const ExecutionTopic = "voltflow.executions"      // flow-execution job channel
const LifecycleTopic = "voltflow.run.lifecycle"   // run lifecycle notifications

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunQueuedEvent    EventType = "run.queued"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
)

// RunJob is the unit of work carried by the flow-execution channel:
// "execute this run". Producers are the trigger API, webhook
// ingestion, and the scheduler; consumers are worker processes.
type RunJob struct {
	RunID       string         `json:"run_id"`
	Input       map[string]any `json:"input,omitempty"`
	TriggeredAt time.Time      `json:"triggered_at"`
}

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	FlowID    string    `json:"flow_id"`
	RunID     string    `json:"run_id"`
	WorkerID  string    `json:"worker_id,omitempty"`
}

// NewBaseEvent creates the common envelope for a lifecycle event.
func NewBaseEvent(eventType EventType, flowID, runID string) BaseEvent {
	return BaseEvent{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		RunID:     runID,
	}
}

type RunQueued struct {
	BaseEvent

	Trigger string `json:"trigger"` // "manual", "webhook", "schedule"
}

func (e RunQueued) GetType() EventType {
	return RunQueuedEvent
}

type RunCompleted struct {
	BaseEvent

	NodeCount int           `json:"node_count"`
	Duration  time.Duration `json:"duration"`
}

func (e RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e RunFailed) GetType() EventType {
	return RunFailedEvent
}
