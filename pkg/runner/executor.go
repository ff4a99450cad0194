// Package runner executes queued runs: it walks the flow's node
// sequence, persists per-node outputs, and settles the run's terminal
// status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/queue"
	"github.com/voltflow/voltflow/pkg/registry"
)

// Executor consumes run jobs and drives node execution.
type Executor struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	sink        queue.EventSink
	secrets     models.SecretResolver
	conns       models.ConnProvider
	logger      *slog.Logger
	tracer      trace.Tracer
	workerID    string
}

// NewExecutor creates an executor. The event sink may be nil when
// lifecycle notifications are not wanted.
func NewExecutor(
	p persistence.Persistence,
	reg *registry.Registry,
	sink queue.EventSink,
	secrets models.SecretResolver,
	conns models.ConnProvider,
	logger *slog.Logger,
	workerID string,
) *Executor {
	return &Executor{
		persistence: p,
		registry:    reg,
		sink:        sink,
		secrets:     secrets,
		conns:       conns,
		logger:      logger.With("module", "run_executor"),
		tracer:      otel.Tracer("voltflow.runner"),
		workerID:    workerID,
	}
}

// Execute processes one run job. A nil return acknowledges the job;
// an error nacks it for redelivery. Permanent conditions (missing
// run, missing flow, claimed run) return nil so the job is not
// retried.
func (e *Executor) Execute(ctx context.Context, job *events.RunJob) error {
	ctx, span := e.tracer.Start(ctx, "run.execute", trace.WithAttributes(
		attribute.String("run.id", job.RunID),
	))
	defer span.End()

	logger := e.logger.With("run_id", job.RunID)
	logger.InfoContext(ctx, "Starting run execution")

	startedAt := time.Now()

	run, err := e.claim(ctx, job.RunID, logger)
	if err != nil || run == nil {
		return err
	}

	flow, err := e.persistence.Flows().ByID(ctx, run.FlowID)
	if err != nil {
		if persistence.IsNotFound(err) {
			logger.ErrorContext(ctx, "Flow no longer exists, failing run", "flow_id", run.FlowID)

			return e.fail(ctx, run, flow, startedAt, fmt.Errorf("flow %s not found", run.FlowID), false)
		}

		return fmt.Errorf("failed to load flow %s: %w", run.FlowID, err)
	}

	span.SetAttributes(attribute.String("flow.id", flow.ID))

	execCtx := models.ExecutionContext{
		RunID:       run.ID,
		FlowID:      flow.ID,
		UserID:      run.UserID,
		TriggerData: run.Input,
		NodeResults: make(map[string]any),
		Nodes:       flow.Nodes,
		Logger:      logger,
		Secrets:     e.secrets,
		Conns:       e.conns,
	}

	nodeCount, err := e.executeNodes(ctx, flow, execCtx, logger)
	if err != nil {
		if errors.Is(err, errRunCancelled) {
			logger.InfoContext(ctx, "Run cancelled, stopping node execution")
			span.SetStatus(codes.Ok, "cancelled")

			return nil
		}

		span.SetStatus(codes.Error, err.Error())

		return e.fail(ctx, run, flow, startedAt, err, true)
	}

	output := map[string]any{
		"completed":  true,
		"node_count": nodeCount,
		"results":    execCtx.NodeResults,
	}

	if err := e.persistence.Runs().Finish(ctx, run.ID, models.RunStatusCompleted, output, ""); err != nil {
		return fmt.Errorf("failed to complete run %s: %w", run.ID, err)
	}

	e.publish(ctx, events.RunCompleted{
		BaseEvent: e.baseEvent(events.RunCompletedEvent, flow.ID, run.ID),
		NodeCount: nodeCount,
		Duration:  time.Since(startedAt),
	})

	logger.InfoContext(ctx, "Run completed", "node_count", nodeCount, "duration", time.Since(startedAt))

	return nil
}

// errRunCancelled stops the node loop without failing the run.
var errRunCancelled = errors.New("run cancelled")

// claim moves the run to RUNNING. It returns (nil, nil) for permanent
// conditions that should not be redelivered: the run does not exist,
// or another worker already claimed it.
func (e *Executor) claim(ctx context.Context, runID string, logger *slog.Logger) (*models.Run, error) {
	run, err := e.persistence.Runs().Transition(ctx, runID, models.RunStatusRunning)
	if err == nil {
		return run, nil
	}

	if persistence.IsNotFound(err) {
		logger.ErrorContext(ctx, "Run not found, dropping job")

		return nil, nil
	}

	if errors.Is(err, persistence.ErrInvalidTransition) {
		current, lookupErr := e.persistence.Runs().ByID(ctx, runID)
		if lookupErr == nil {
			logger.InfoContext(ctx, "Run already claimed or settled, dropping job", "status", current.Status)
		}

		return nil, nil
	}

	return nil, fmt.Errorf("failed to claim run %s: %w", runID, err)
}

// executeNodes walks the node sequence. Each node's output is
// persisted and fed to the next node as input. Between nodes the
// persisted status is checked so a cancellation lands promptly.
func (e *Executor) executeNodes(ctx context.Context, flow *models.Flow, execCtx models.ExecutionContext, logger *slog.Logger) (int, error) {
	input := execCtx.TriggerData
	if input == nil {
		input = map[string]any{}
	}

	executed := 0

	for _, node := range flow.Nodes {
		if executed > 0 {
			cancelled, err := e.isCancelled(ctx, execCtx.RunID)
			if err != nil {
				return executed, err
			}

			if cancelled {
				return executed, errRunCancelled
			}
		}

		if !node.Enabled {
			logger.InfoContext(ctx, "Node is disabled, skipping", "node_id", node.ID)

			continue
		}

		output, err := e.executeNode(ctx, node, execCtx, input, logger)

		if appendErr := e.appendOutput(ctx, execCtx.RunID, node.ID, output, err); appendErr != nil {
			logger.ErrorContext(ctx, "Failed to persist node output", "node_id", node.ID, "error", appendErr)

			if err == nil {
				err = appendErr
			}
		}

		if err != nil {
			return executed, fmt.Errorf("node %s (%s) failed: %w", node.ID, node.Type, err)
		}

		execCtx.NodeResults[node.ID] = output
		input = output
		executed++
	}

	return executed, nil
}

func (e *Executor) executeNode(ctx context.Context, node *models.Node, execCtx models.ExecutionContext, input map[string]any, logger *slog.Logger) (map[string]any, error) {
	ctx, span := e.tracer.Start(ctx, "run.node", trace.WithAttributes(
		attribute.String("node.id", node.ID),
		attribute.String("node.type", node.Type),
	))
	defer span.End()

	logger.InfoContext(ctx, "Executing node", "node_id", node.ID, "node_type", node.Type)

	handler, err := e.registry.CreateHandler(ctx, node.Type, node.Data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("failed to create handler: %w", err)
	}

	output, err := handler.Execute(ctx, execCtx.WithNode(node.ID), input)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	return output, nil
}

// appendOutput records the node attempt, including failures. A
// storage error here fails the run; the caller keeps the node's own
// error as the cause when both happened.
func (e *Executor) appendOutput(ctx context.Context, runID, nodeID string, output map[string]any, nodeErr error) error {
	record := &models.NodeOutput{
		ID:        uuid.New().String(),
		RunID:     runID,
		NodeID:    nodeID,
		Output:    output,
		CreatedAt: time.Now().UTC(),
	}

	if nodeErr != nil {
		record.Error = nodeErr.Error()
	}

	if err := e.persistence.NodeOutputs().Append(ctx, record); err != nil {
		return fmt.Errorf("failed to persist node output: %w", err)
	}

	return nil
}

func (e *Executor) isCancelled(ctx context.Context, runID string) (bool, error) {
	run, err := e.persistence.Runs().ByID(ctx, runID)
	if err != nil {
		return false, fmt.Errorf("failed to check run status: %w", err)
	}

	return run.Status == models.RunStatusCancelled, nil
}

// fail settles the run as FAILED. When retry is true the original
// error is returned so the queue redelivers the job.
func (e *Executor) fail(ctx context.Context, run *models.Run, flow *models.Flow, startedAt time.Time, cause error, retry bool) error {
	if err := e.persistence.Runs().Finish(ctx, run.ID, models.RunStatusFailed, nil, cause.Error()); err != nil {
		e.logger.ErrorContext(ctx, "Failed to settle run as failed", "run_id", run.ID, "error", err)
	}

	flowID := run.FlowID
	if flow != nil {
		flowID = flow.ID
	}

	e.publish(ctx, events.RunFailed{
		BaseEvent: e.baseEvent(events.RunFailedEvent, flowID, run.ID),
		Error:     cause.Error(),
		Duration:  time.Since(startedAt),
	})

	if retry {
		return cause
	}

	return nil
}

func (e *Executor) baseEvent(eventType events.EventType, flowID, runID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, flowID, runID)
	base.ID = uuid.New().String()
	base.WorkerID = e.workerID

	return base
}

func (e *Executor) publish(ctx context.Context, event queue.Event) {
	if e.sink == nil {
		return
	}

	if err := e.sink.PublishEvent(ctx, string(event.GetType()), event); err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event", "event", event.GetType(), "error", err)
	}
}
