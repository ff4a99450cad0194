package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/voltflow/voltflow/pkg/models"
)

// NodeOutputRepository stores one JSON file per run under
// node_outputs/, holding that run's ordered output list.
type NodeOutputRepository struct {
	p *Persistence
}

func outputPath(runID string) string {
	return "node_outputs/" + runID + ".json"
}

func (r *NodeOutputRepository) Append(ctx context.Context, output *models.NodeOutput) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if output.ID == "" {
		output.ID = uuid.New().String()
	}

	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	outputs := make([]*models.NodeOutput, 0)

	err := r.p.read(outputPath(output.RunID), &outputs)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read node outputs for run %s: %w", output.RunID, err)
	}

	outputs = append(outputs, output)

	return r.p.write(outputPath(output.RunID), outputs)
}

func (r *NodeOutputRepository) ByRun(ctx context.Context, runID string) ([]*models.NodeOutput, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	outputs := make([]*models.NodeOutput, 0)

	err := r.p.read(outputPath(runID), &outputs)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.NodeOutput{}, nil
		}

		return nil, fmt.Errorf("failed to read node outputs for run %s: %w", runID, err)
	}

	sort.Slice(outputs, func(i, j int) bool {
		return outputs[i].CreatedAt.Before(outputs[j].CreatedAt)
	})

	return outputs, nil
}
