package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

// CredentialRepository handles encrypted credential rows.
type CredentialRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *CredentialRepository) ByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `
		SELECT id, user_id, type, name, payload, active, created_at, updated_at
		FROM credentials
		WHERE id = $1
	`

	var credential models.Credential

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&credential.ID, &credential.UserID, &credential.Type, &credential.Name,
		&credential.Payload, &credential.Active, &credential.CreatedAt, &credential.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrCredentialNotFound
		}

		return nil, fmt.Errorf("failed to query credential %s: %w", id, err)
	}

	return &credential, nil
}

func (r *CredentialRepository) Save(ctx context.Context, credential *models.Credential) error {
	now := time.Now().UTC()
	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = now
	}

	credential.UpdatedAt = now

	query := `
		INSERT INTO credentials (id, user_id, type, name, payload, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			payload = EXCLUDED.payload,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		credential.ID, credential.UserID, credential.Type, credential.Name,
		credential.Payload, credential.Active, credential.CreatedAt, credential.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", credential.ID, err)
	}

	return nil
}

// AgentMemoryRepository handles bounded AI-node memory snapshots.
type AgentMemoryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *AgentMemoryRepository) Save(ctx context.Context, memory *models.AgentMemory) error {
	if memory.ID == "" {
		memory.ID = uuid.New().String()
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}

	messages, err := json.Marshal(memory.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal agent messages: %w", err)
	}

	metadata, err := marshalJSONB(memory.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal agent metadata: %w", err)
	}

	query := `
		INSERT INTO agent_memories (id, flow_id, node_id, content, messages, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.db.ExecContext(ctx, query,
		memory.ID, memory.FlowID, memory.NodeID, memory.Content, messages, metadata, memory.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save agent memory for %s/%s: %w", memory.FlowID, memory.NodeID, err)
	}

	return nil
}

func (r *AgentMemoryRepository) Recent(ctx context.Context, flowID, nodeID string, limit int) ([]*models.AgentMemory, error) {
	query := `
		SELECT id, flow_id, node_id, content, messages, metadata, created_at
		FROM agent_memories
		WHERE flow_id = $1 AND node_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, nodeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent memories for %s/%s: %w", flowID, nodeID, err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	memories := make([]*models.AgentMemory, 0)

	for rows.Next() {
		var (
			memory   models.AgentMemory
			messages []byte
			metadata []byte
		)

		err := rows.Scan(&memory.ID, &memory.FlowID, &memory.NodeID, &memory.Content, &messages, &metadata, &memory.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent memory: %w", err)
		}

		if len(messages) > 0 {
			if err := json.Unmarshal(messages, &memory.Messages); err != nil {
				return nil, fmt.Errorf("failed to unmarshal agent messages: %w", err)
			}
		}

		if err := unmarshalJSONB(metadata, &memory.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent metadata: %w", err)
		}

		memories = append(memories, &memory)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating agent memories: %w", err)
	}

	return memories, nil
}

func (r *AgentMemoryRepository) Prune(ctx context.Context, flowID, nodeID string, keep int) error {
	query := `
		DELETE FROM agent_memories
		WHERE flow_id = $1 AND node_id = $2 AND id NOT IN (
			SELECT id FROM agent_memories
			WHERE flow_id = $1 AND node_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		)
	`

	_, err := r.db.ExecContext(ctx, query, flowID, nodeID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune agent memories for %s/%s: %w", flowID, nodeID, err)
	}

	return nil
}
