// Package scheduler polls for due flows once a minute and enqueues
// runs for them.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/queue"
)

const pollInterval = 1 * time.Minute

// Scheduler is the centralized polling orchestrator. A single ticker
// evaluates every schedulable flow regardless of its individual
// schedule expression.
type Scheduler struct {
	persistence persistence.Persistence
	queue       queue.Queue
	logger      *slog.Logger

	ticker  *time.Ticker
	done    chan struct{}
	started bool
	mu      sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(p persistence.Persistence, q queue.Queue, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: p,
		queue:       q,
		logger:      logger.With("module", "scheduler"),
		now:         time.Now,
	}
}

// Start begins the polling loop. Calling Start on a started scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Starting scheduler")

	s.ticker = time.NewTicker(pollInterval)
	s.done = make(chan struct{})
	s.started = true

	go s.poll(ctx, s.ticker, s.done)

	return nil
}

// Stop shuts down the polling loop. Calling Stop on a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.InfoContext(ctx, "Stopping scheduler")

	if s.ticker != nil {
		s.ticker.Stop()
	}

	// Closing the channel reaches a poller that is mid-Tick; a
	// non-blocking send would be dropped.
	close(s.done)

	s.started = false

	return nil
}

func (s *Scheduler) poll(ctx context.Context, ticker *time.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates every schedulable flow once. Errors on one flow are
// logged and do not stop the rest of the batch.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	flows, err := s.persistence.Flows().Schedulable(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list schedulable flows", "error", err)

		return
	}

	for _, flow := range flows {
		if err := s.processFlow(ctx, flow, now); err != nil {
			s.logger.ErrorContext(ctx, "Failed to process scheduled flow", "flow_id", flow.ID, "error", err)
		}
	}
}

// processFlow enqueues a run when the flow's schedule is due. The
// flow's lastRunAt advances only after the job is safely enqueued, so
// a failed enqueue retries on the next tick.
func (s *Scheduler) processFlow(ctx context.Context, flow *models.Flow, now time.Time) error {
	if flow.Schedule == nil {
		return nil
	}

	spec, err := models.ParseSchedule(*flow.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", *flow.Schedule, err)
	}

	if !spec.Due(flow.LastRunAt, now) {
		return nil
	}

	s.logger.InfoContext(ctx, "Flow is due, enqueueing run", "flow_id", flow.ID, "schedule", *flow.Schedule)

	run := &models.Run{
		ID:        uuid.New().String(),
		FlowID:    flow.ID,
		UserID:    flow.UserID,
		Status:    models.RunStatusQueued,
		Input:     map[string]any{"trigger": "schedule", "scheduled_at": now.Format(time.RFC3339)},
		CreatedAt: now,
	}

	if err := s.persistence.Runs().Create(ctx, run); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	job := &events.RunJob{
		RunID:       run.ID,
		Input:       run.Input,
		TriggeredAt: now,
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", run.ID, err)
	}

	if err := s.persistence.Flows().UpdateRunTimes(ctx, flow.ID, now, spec.NextAfter(now)); err != nil {
		return fmt.Errorf("failed to record run times: %w", err)
	}

	return nil
}
