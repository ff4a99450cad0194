package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

// FlowRepository handles flow-related database operations. The node
// graph is stored denormalized as JSONB: flows are read whole by the
// executor and written whole by the editor, so per-node rows buy
// nothing here.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const flowColumns = `
	id
  , name
  , description
  , status
  , user_id
  , nodes
  , connections
  , schedule
  , last_run_at
  , next_run_at
  , created_at
  , updated_at
  , deleted_at
`

func (r *FlowRepository) All(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE deleted_at IS NULL ORDER BY created_at DESC`

	return r.queryFlows(ctx, query)
}

func (r *FlowRepository) Schedulable(ctx context.Context) ([]*models.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE status = $1 AND schedule IS NOT NULL AND deleted_at IS NULL
		ORDER BY created_at ASC
	`

	return r.queryFlows(ctx, query, string(models.FlowStatusActive))
}

func (r *FlowRepository) queryFlows(ctx context.Context, query string, args ...any) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) ByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1 AND deleted_at IS NULL`

	flow, err := scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrFlowNotFound
		}

		return nil, fmt.Errorf("failed to scan flow: %w", err)
	}

	return flow, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodes, err := json.Marshal(flow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	connections, err := json.Marshal(flow.Connections)
	if err != nil {
		return fmt.Errorf("failed to marshal connections: %w", err)
	}

	query := `
		INSERT INTO flows (id, name, description, status, user_id, nodes, connections, schedule, last_run_at, next_run_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			schedule = EXCLUDED.schedule,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID, flow.Name, flow.Description, string(flow.Status), flow.UserID,
		nodes, connections, flow.Schedule, flow.LastRunAt, flow.NextRunAt,
		flow.CreatedAt, flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save flow %s: %w", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE flows SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete flow %s: %w", id, err)
	}

	return nil
}

func (r *FlowRepository) UpdateRunTimes(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error {
	query := `UPDATE flows SET last_run_at = $2, next_run_at = $3, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, lastRunAt, nextRunAt)
	if err != nil {
		return fmt.Errorf("failed to update run times for flow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result for flow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.ErrFlowNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow        models.Flow
		status      string
		nodes       []byte
		connections []byte
	)

	err := row.Scan(
		&flow.ID, &flow.Name, &flow.Description, &status, &flow.UserID,
		&nodes, &connections, &flow.Schedule, &flow.LastRunAt, &flow.NextRunAt,
		&flow.CreatedAt, &flow.UpdatedAt, &flow.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.Status = models.FlowStatus(status)

	if err := json.Unmarshal(nodes, &flow.Nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	if err := json.Unmarshal(connections, &flow.Connections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal connections: %w", err)
	}

	return &flow, nil
}
