// Package services holds the application operations shared by the
// HTTP API. It sits between transport and persistence.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/queue"
)

// Execution exposes run lifecycle operations: trigger, webhook
// ingestion, status reads, and cancellation.
type Execution struct {
	persistence persistence.Persistence
	queue       queue.Queue
	sink        queue.EventSink
	logger      *slog.Logger
}

// NewExecution creates the execution service.
func NewExecution(p persistence.Persistence, q queue.Queue, sink queue.EventSink, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: p,
		queue:       q,
		sink:        sink,
		logger:      logger.With("module", "execution_service"),
	}
}

// RunDetail joins a run with its node outputs for status reads.
type RunDetail struct {
	Run     *models.Run          `json:"run"`
	Outputs []*models.NodeOutput `json:"outputs"`
}

// TriggerFlow creates a QUEUED run for the flow and enqueues its job.
func (s *Execution) TriggerFlow(ctx context.Context, flowID, userID string, input map[string]any) (*models.Run, error) {
	flow, err := s.persistence.Flows().ByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow.Status != models.FlowStatusActive {
		return nil, fmt.Errorf("flow %s is not active: %w", flowID, persistence.ErrFlowNotRunnable)
	}

	if input == nil {
		input = map[string]any{}
	}

	if _, ok := input["trigger"]; !ok {
		input["trigger"] = "manual"
	}

	now := time.Now().UTC()

	run := &models.Run{
		ID:        uuid.New().String(),
		FlowID:    flow.ID,
		UserID:    userID,
		Status:    models.RunStatusQueued,
		Input:     input,
		CreatedAt: now,
	}

	if err := s.persistence.Runs().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	job := &events.RunJob{
		RunID:       run.ID,
		Input:       input,
		TriggeredAt: now,
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		// The run stays QUEUED; a retried trigger creates a fresh run.
		return nil, fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	s.publishQueued(ctx, flow.ID, run.ID, fmt.Sprint(input["trigger"]))

	s.logger.InfoContext(ctx, "Run queued", "flow_id", flow.ID, "run_id", run.ID)

	return run, nil
}

// IngestWebhook accepts a batch of webhook events and triggers a
// single run carrying the whole batch.
func (s *Execution) IngestWebhook(ctx context.Context, flowID, userID string, batch []map[string]any) (*models.Run, error) {
	input := map[string]any{
		"trigger":     "webhook",
		"events":      batch,
		"event_count": len(batch),
	}

	if len(batch) > 0 {
		input["first_event"] = batch[0]
	}

	return s.TriggerFlow(ctx, flowID, userID, input)
}

// RunStatus returns the run with its node outputs in execution order.
func (s *Execution) RunStatus(ctx context.Context, runID string) (*RunDetail, error) {
	run, err := s.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	outputs, err := s.persistence.NodeOutputs().ByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load node outputs: %w", err)
	}

	return &RunDetail{Run: run, Outputs: outputs}, nil
}

// RunsForFlow lists a flow's recent runs, newest first.
func (s *Execution) RunsForFlow(ctx context.Context, flowID string, limit int) ([]*models.Run, error) {
	if _, err := s.persistence.Flows().ByID(ctx, flowID); err != nil {
		return nil, err
	}

	return s.persistence.Runs().ByFlow(ctx, flowID, limit)
}

// CancelRun moves a non-terminal run to CANCELLED. A worker observing
// the persisted status stops between nodes.
func (s *Execution) CancelRun(ctx context.Context, runID string) (*models.Run, error) {
	run, err := s.persistence.Runs().Transition(ctx, runID, models.RunStatusCancelled)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Run cancelled", "run_id", runID)

	return run, nil
}

func (s *Execution) publishQueued(ctx context.Context, flowID, runID, trigger string) {
	if s.sink == nil {
		return
	}

	event := events.RunQueued{
		BaseEvent: events.NewBaseEvent(events.RunQueuedEvent, flowID, runID),
		Trigger:   trigger,
	}
	event.ID = uuid.New().String()

	if err := s.sink.PublishEvent(ctx, string(events.RunQueuedEvent), event); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish run queued event", "run_id", runID, "error", err)
	}
}
