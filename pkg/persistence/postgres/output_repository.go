package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltflow/voltflow/pkg/models"
)

// NodeOutputRepository handles the append-only node output records.
type NodeOutputRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *NodeOutputRepository) Append(ctx context.Context, output *models.NodeOutput) error {
	if output.ID == "" {
		output.ID = uuid.New().String()
	}

	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	outputJSON, err := marshalJSONB(output.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal node output: %w", err)
	}

	query := `
		INSERT INTO node_outputs (id, run_id, node_id, output, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		output.ID, output.RunID, output.NodeID, outputJSON, output.Error, output.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append node output for run %s node %s: %w", output.RunID, output.NodeID, err)
	}

	return nil
}

func (r *NodeOutputRepository) ByRun(ctx context.Context, runID string) ([]*models.NodeOutput, error) {
	query := `
		SELECT id, run_id, node_id, output, error, created_at
		FROM node_outputs
		WHERE run_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node outputs for run %s: %w", runID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	outputs := make([]*models.NodeOutput, 0)

	for rows.Next() {
		var (
			output     models.NodeOutput
			outputJSON []byte
		)

		err := rows.Scan(&output.ID, &output.RunID, &output.NodeID, &outputJSON, &output.Error, &output.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node output: %w", err)
		}

		if err := unmarshalJSONB(outputJSON, &output.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
		}

		outputs = append(outputs, &output)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating node outputs: %w", err)
	}

	return outputs, nil
}
