package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

// RunRepository stores one JSON file per run under runs/.
type RunRepository struct {
	p *Persistence
}

func runPath(id string) string {
	return "runs/" + id + ".json"
}

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	return r.p.write(runPath(run.ID), run)
}

func (r *RunRepository) ByID(ctx context.Context, id string) (*models.Run, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.byIDLocked(id)
}

func (r *RunRepository) byIDLocked(id string) (*models.Run, error) {
	run := &models.Run{}

	err := r.p.read(runPath(id), run)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	return run, nil
}

func (r *RunRepository) ByFlow(ctx context.Context, flowID string, limit int) ([]*models.Run, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	files, err := r.p.list("runs")
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.Run, 0)

	for _, f := range files {
		run := &models.Run{}
		if err := r.p.read(f, run); err != nil {
			return nil, fmt.Errorf("failed to read run file %s: %w", f, err)
		}

		if run.FlowID == flowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (r *RunRepository) Transition(ctx context.Context, id string, to models.RunStatus) (*models.Run, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, err := r.byIDLocked(id)
	if err != nil {
		return nil, err
	}

	if !run.Status.CanTransitionTo(to) {
		return nil, persistence.NewRunError("Transition", id, persistence.ErrInvalidTransition)
	}

	run.Status = to

	now := time.Now().UTC()
	if to == models.RunStatusRunning {
		run.StartedAt = &now
	}

	if to.Terminal() {
		run.FinishedAt = &now
	}

	if err := r.p.write(runPath(id), run); err != nil {
		return nil, err
	}

	return run, nil
}

func (r *RunRepository) Finish(ctx context.Context, id string, to models.RunStatus, output map[string]any, errMsg string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	run, err := r.byIDLocked(id)
	if err != nil {
		return err
	}

	if !run.Status.CanTransitionTo(to) {
		return persistence.NewRunError("Finish", id, persistence.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	run.Status = to
	run.Output = output
	run.Error = errMsg
	run.FinishedAt = &now

	return r.p.write(runPath(id), run)
}
