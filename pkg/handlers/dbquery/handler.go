// Package dbquery provides the database query node handler. Queries
// run on pooled connections keyed by credential.
package dbquery

import (
	"context"
	"errors"
	"fmt"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/template"
)

const defaultRowLimit = 1000

var (
	// ErrCredentialRequired is returned when the node config names no credential.
	ErrCredentialRequired = errors.New("missing required field 'credential_id'")
	// ErrQueryRequired is returned when the node config carries no query.
	ErrQueryRequired = errors.New("missing required field 'query'")
)

// Handler runs a read query against a database reachable through a
// vault credential.
type Handler struct {
	CredentialID string
	Query        string
	RowLimit     int
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	credentialID, ok := config["credential_id"].(string)
	if !ok || credentialID == "" {
		return nil, ErrCredentialRequired
	}

	query, ok := config["query"].(string)
	if !ok || query == "" {
		return nil, ErrQueryRequired
	}

	rowLimit := defaultRowLimit
	if limit, ok := config["row_limit"].(float64); ok && limit > 0 {
		rowLimit = int(limit)
	}

	return &Handler{
		CredentialID: credentialID,
		Query:        query,
		RowLimit:     rowLimit,
	}, nil
}

// Execute resolves the credential, obtains a pooled handle, and runs
// the rendered query. Rows are returned as a list of column maps.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "db_query_handler")
	logger.InfoContext(ctx, "Executing database query node", "credential_id", h.CredentialID)

	secret, err := execCtx.Secrets.Resolve(ctx, h.CredentialID, execCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database credential: %w", err)
	}

	db, err := execCtx.Conns.DB(ctx, h.CredentialID, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain database handle: %w", err)
	}

	query, err := template.RenderString(h.Query, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render query template: %w", err)
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.ErrorContext(ctx, "failed to close result rows", "error", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		if len(results) >= h.RowLimit {
			logger.WarnContext(ctx, "Row limit reached, truncating result set", "limit", h.RowLimit)

			break
		}

		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, column := range columns {
			value := values[i]
			if raw, ok := value.([]byte); ok {
				value = string(raw)
			}

			row[column] = value
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return map[string]any{
		"rows":      results,
		"row_count": len(results),
	}, nil
}
