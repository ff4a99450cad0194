package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/queue"
)

type captureQueue struct {
	jobs    []*events.RunJob
	failing bool
}

func (q *captureQueue) Enqueue(_ context.Context, job *events.RunJob) error {
	if q.failing {
		return errors.New("broker unavailable")
	}

	q.jobs = append(q.jobs, job)

	return nil
}

func (q *captureQueue) Consume(context.Context, queue.JobHandler) error {
	return nil
}

func (q *captureQueue) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func seedScheduledFlow(t *testing.T, p *file.Persistence, id, schedule string, lastRunAt *time.Time) {
	t.Helper()

	flow := &models.Flow{
		ID:        id,
		Name:      "Scheduled Flow",
		Status:    models.FlowStatusActive,
		UserID:    "user-1",
		Schedule:  &schedule,
		LastRunAt: lastRunAt,
		Nodes: []*models.Node{
			{ID: "n1", Type: "log", Enabled: true},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Flows().Save(context.Background(), flow))
}

func TestTickEnqueuesDueFlow(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedScheduledFlow(t, p, "flow-due", "5m", nil)

	sched := NewScheduler(p, q, testLogger())
	sched.now = func() time.Time { return now }

	sched.Tick(ctx)

	require.Len(t, q.jobs, 1)

	runs, err := p.Runs().ByFlow(ctx, "flow-due", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusQueued, runs[0].Status)
	assert.Equal(t, runs[0].ID, q.jobs[0].RunID)
	assert.Equal(t, "schedule", runs[0].Input["trigger"])

	flow, err := p.Flows().ByID(ctx, "flow-due")
	require.NoError(t, err)
	require.NotNil(t, flow.LastRunAt)
	assert.True(t, flow.LastRunAt.Equal(now))
	require.NotNil(t, flow.NextRunAt)
	assert.True(t, flow.NextRunAt.Equal(now.Add(5*time.Minute)))
}

func TestTickSkipsFlowsNotDue(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)

	seedScheduledFlow(t, p, "flow-recent", "5m", &recent)

	sched := NewScheduler(p, q, testLogger())
	sched.now = func() time.Time { return now }

	sched.Tick(ctx)

	assert.Empty(t, q.jobs)

	runs, err := p.Runs().ByFlow(ctx, "flow-recent", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestTickLeavesLastRunAtOnEnqueueFailure(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{failing: true}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedScheduledFlow(t, p, "flow-due", "5m", nil)

	sched := NewScheduler(p, q, testLogger())
	sched.now = func() time.Time { return now }

	sched.Tick(ctx)

	// The flow must stay eligible so the next tick retries.
	flow, err := p.Flows().ByID(ctx, "flow-due")
	require.NoError(t, err)
	assert.Nil(t, flow.LastRunAt)
}

func TestTickIsolatesPerFlowFailures(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())
	q := &captureQueue{}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seedScheduledFlow(t, p, "flow-broken", "not-a-schedule", nil)
	seedScheduledFlow(t, p, "flow-ok", "5m", nil)

	sched := NewScheduler(p, q, testLogger())
	sched.now = func() time.Time { return now }

	sched.Tick(ctx)

	require.Len(t, q.jobs, 1)

	runs, err := p.Runs().ByFlow(ctx, "flow-ok", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	sched := NewScheduler(p, &captureQueue{}, testLogger())

	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Start(ctx))
	require.NoError(t, sched.Stop(ctx))
	require.NoError(t, sched.Stop(ctx))
}

func TestStopReleasesPollerAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	sched := NewScheduler(p, &captureQueue{}, testLogger())

	// Each cycle's shutdown signal must stay observable after Stop
	// returns, so a poller that was busy during Stop still exits
	// instead of lingering into the next cycle.
	for i := 0; i < 3; i++ {
		require.NoError(t, sched.Start(ctx))

		done := sched.done

		require.NoError(t, sched.Stop(ctx))

		select {
		case <-done:
		default:
			t.Fatal("shutdown signal was lost")
		}
	}
}
