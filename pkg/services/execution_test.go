package services

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/queue"
)

type captureQueue struct {
	jobs []*events.RunJob
}

func (q *captureQueue) Enqueue(_ context.Context, job *events.RunJob) error {
	q.jobs = append(q.jobs, job)

	return nil
}

func (q *captureQueue) Consume(context.Context, queue.JobHandler) error { return nil }
func (q *captureQueue) Close() error                                    { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func seedFlow(t *testing.T, p *file.Persistence, status models.FlowStatus) *models.Flow {
	t.Helper()

	flow := &models.Flow{
		ID:     "flow-1",
		Name:   "Test Flow",
		Status: status,
		UserID: "owner",
		Nodes: []*models.Node{
			{ID: "n1", Type: "log", Enabled: true},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Flows().Save(context.Background(), flow))

	return flow
}

func TestTriggerFlowQueuesRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	seedFlow(t, p, models.FlowStatusActive)

	svc := NewExecution(p, q, nil, testLogger())

	run, err := svc.TriggerFlow(ctx, "flow-1", "caller", map[string]any{"payload": "x"})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusQueued, run.Status)
	assert.Equal(t, "manual", run.Input["trigger"])
	assert.Equal(t, "caller", run.UserID)

	require.Len(t, q.jobs, 1)
	assert.Equal(t, run.ID, q.jobs[0].RunID)
}

func TestTriggerFlowRejectsInactiveFlow(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	seedFlow(t, p, models.FlowStatusDraft)

	svc := NewExecution(p, q, nil, testLogger())

	_, err := svc.TriggerFlow(ctx, "flow-1", "caller", nil)
	assert.ErrorIs(t, err, persistence.ErrFlowNotRunnable)
	assert.Empty(t, q.jobs)
}

func TestTriggerFlowMissingFlow(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	svc := NewExecution(p, &captureQueue{}, nil, testLogger())

	_, err := svc.TriggerFlow(ctx, "ghost", "caller", nil)
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestIngestWebhookBatchesIntoSingleRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	seedFlow(t, p, models.FlowStatusActive)

	svc := NewExecution(p, q, nil, testLogger())

	batch := []map[string]any{
		{"event": "created", "id": float64(1)},
		{"event": "updated", "id": float64(2)},
	}

	run, err := svc.IngestWebhook(ctx, "flow-1", "owner", batch)
	require.NoError(t, err)

	// One run for the whole batch, not one per event.
	require.Len(t, q.jobs, 1)

	assert.Equal(t, "webhook", run.Input["trigger"])
	assert.InDelta(t, 2, run.Input["event_count"], 0)
	assert.Equal(t, batch[0], run.Input["first_event"])
}

func TestRunStatusJoinsOutputs(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, models.FlowStatusActive)

	run := &models.Run{
		ID:        "run-1",
		FlowID:    "flow-1",
		UserID:    "owner",
		Status:    models.RunStatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, p.Runs().Create(ctx, run))

	require.NoError(t, p.NodeOutputs().Append(ctx, &models.NodeOutput{
		RunID:  "run-1",
		NodeID: "n1",
		Output: map[string]any{"ok": true},
	}))

	svc := NewExecution(p, &captureQueue{}, nil, testLogger())

	detail, err := svc.RunStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", detail.Run.ID)
	require.Len(t, detail.Outputs, 1)
	assert.Equal(t, "n1", detail.Outputs[0].NodeID)
}

func TestCancelRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, models.FlowStatusActive)

	require.NoError(t, p.Runs().Create(ctx, &models.Run{
		ID:        "run-1",
		FlowID:    "flow-1",
		UserID:    "owner",
		Status:    models.RunStatusQueued,
		CreatedAt: time.Now().UTC(),
	}))

	svc := NewExecution(p, &captureQueue{}, nil, testLogger())

	run, err := svc.CancelRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, run.Status)

	// Cancelling a settled run is rejected.
	_, err = svc.CancelRun(ctx, "run-1")
	assert.ErrorIs(t, err, persistence.ErrInvalidTransition)
}
