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

// FlowRepository stores one JSON file per flow under flows/.
type FlowRepository struct {
	p *Persistence
}

func flowPath(id string) string {
	return "flows/" + id + ".json"
}

func (r *FlowRepository) All(ctx context.Context) ([]*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	files, err := r.p.list("flows")
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	flows := make([]*models.Flow, 0, len(files))

	for _, f := range files {
		flow := &models.Flow{}
		if err := r.p.read(f, flow); err != nil {
			return nil, fmt.Errorf("failed to read flow file %s: %w", f, err)
		}

		if flow.DeletedAt != nil {
			continue
		}

		flows = append(flows, flow)
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.Before(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) ByID(ctx context.Context, id string) (*models.Flow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.byIDLocked(id)
}

func (r *FlowRepository) byIDLocked(id string) (*models.Flow, error) {
	flow := &models.Flow{}

	err := r.p.read(flowPath(id), flow)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrFlowNotFound
		}

		return nil, fmt.Errorf("failed to read flow %s: %w", id, err)
	}

	if flow.DeletedAt != nil {
		return nil, persistence.ErrFlowNotFound
	}

	return flow, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = time.Now().UTC()
	}

	flow.UpdatedAt = time.Now().UTC()

	return r.p.write(flowPath(flow.ID), flow)
}

func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	return r.p.remove(flowPath(id))
}

func (r *FlowRepository) Schedulable(ctx context.Context) ([]*models.Flow, error) {
	flows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}

	schedulable := make([]*models.Flow, 0)

	for _, flow := range flows {
		if flow.Schedulable() {
			schedulable = append(schedulable, flow)
		}
	}

	return schedulable, nil
}

func (r *FlowRepository) UpdateRunTimes(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	flow, err := r.byIDLocked(id)
	if err != nil {
		return err
	}

	flow.LastRunAt = &lastRunAt
	flow.NextRunAt = nextRunAt
	flow.UpdatedAt = time.Now().UTC()

	return r.p.write(flowPath(id), flow)
}
