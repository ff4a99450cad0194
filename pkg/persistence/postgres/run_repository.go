package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

// RunRepository handles run-related database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const runColumns = `
	id
  , flow_id
  , user_id
  , status
  , input
  , output
  , error
  , started_at
  , finished_at
  , created_at
`

func (r *RunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	input, err := marshalJSONB(run.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal run input: %w", err)
	}

	query := `
		INSERT INTO runs (id, flow_id, user_id, status, input, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.FlowID, run.UserID, string(run.Status), input, run.Error, run.CreatedAt,
	)
	if err != nil {
		return persistence.NewRunError("Create", run.ID, err)
	}

	return nil
}

func (r *RunRepository) ByID(ctx context.Context, id string) (*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrRunNotFound
		}

		return nil, persistence.NewRunError("ByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) ByFlow(ctx context.Context, flowID string, limit int) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE flow_id = $1 ORDER BY created_at DESC`
	args := []any{flowID}

	if limit > 0 {
		query += ` LIMIT $2`

		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for flow %s: %w", flowID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// Transition performs the status move as a single guarded UPDATE so
// two workers racing on the same run cannot both win.
func (r *RunRepository) Transition(ctx context.Context, id string, to models.RunStatus) (*models.Run, error) {
	allowed := allowedPredecessors(to)
	if len(allowed) == 0 {
		return nil, persistence.NewRunError("Transition", id, persistence.ErrInvalidTransition)
	}

	placeholders := make([]string, 0, len(allowed))
	args := []any{id, string(to)}

	for i, status := range allowed {
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+3))
		args = append(args, string(status))
	}

	query := `
		UPDATE runs
		SET status = $2,
			started_at = CASE WHEN $2 = 'running' THEN NOW() ELSE started_at END,
			finished_at = CASE WHEN $2 IN ('completed', 'failed', 'cancelled') THEN NOW() ELSE finished_at END
		WHERE id = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish a missing run from a guarded-out transition.
			_, lookupErr := r.ByID(ctx, id)
			if lookupErr != nil {
				return nil, lookupErr
			}

			return nil, persistence.NewRunError("Transition", id, persistence.ErrInvalidTransition)
		}

		return nil, persistence.NewRunError("Transition", id, err)
	}

	return run, nil
}

func (r *RunRepository) Finish(ctx context.Context, id string, to models.RunStatus, output map[string]any, errMsg string) error {
	if !to.Terminal() {
		return persistence.NewRunError("Finish", id, persistence.ErrInvalidTransition)
	}

	outputJSON, err := marshalJSONB(output)
	if err != nil {
		return fmt.Errorf("failed to marshal run output: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, output = $3, error = $4, finished_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
	`

	result, err := r.db.ExecContext(ctx, query, id, string(to), outputJSON, errMsg)
	if err != nil {
		return persistence.NewRunError("Finish", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError("Finish", id, err)
	}

	if affected == 0 {
		_, lookupErr := r.ByID(ctx, id)
		if lookupErr != nil {
			return lookupErr
		}

		return persistence.NewRunError("Finish", id, persistence.ErrInvalidTransition)
	}

	return nil
}

// allowedPredecessors returns the statuses a run may hold immediately
// before moving to the given status.
func allowedPredecessors(to models.RunStatus) []models.RunStatus {
	switch to {
	case models.RunStatusRunning:
		return []models.RunStatus{models.RunStatusQueued}
	case models.RunStatusCompleted, models.RunStatusFailed:
		return []models.RunStatus{models.RunStatusRunning}
	case models.RunStatusCancelled:
		return []models.RunStatus{models.RunStatusQueued, models.RunStatusRunning}
	case models.RunStatusQueued:
		return nil
	}

	return nil
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run    models.Run
		status string
		input  []byte
		output []byte
	)

	err := row.Scan(
		&run.ID, &run.FlowID, &run.UserID, &status, &input, &output,
		&run.Error, &run.StartedAt, &run.FinishedAt, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)

	if err := unmarshalJSONB(input, &run.Input); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run input: %w", err)
	}

	if err := unmarshalJSONB(output, &run.Output); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run output: %w", err)
	}

	return &run, nil
}

func marshalJSONB(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}

	return json.Marshal(value)
}

func unmarshalJSONB(data []byte, target *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, target)
}
