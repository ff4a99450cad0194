package file

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
)

// CredentialRepository stores one JSON file per credential under
// credentials/. The encrypted payload is carried alongside the row
// because the model excludes it from its public JSON shape.
type CredentialRepository struct {
	p *Persistence
}

type credentialRecord struct {
	models.Credential

	PayloadData []byte `json:"payload_data"`
}

func credentialPath(id string) string {
	return "credentials/" + id + ".json"
}

func (r *CredentialRepository) ByID(ctx context.Context, id string) (*models.Credential, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	record := &credentialRecord{}

	err := r.p.read(credentialPath(id), record)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrCredentialNotFound
		}

		return nil, fmt.Errorf("failed to read credential %s: %w", id, err)
	}

	credential := record.Credential
	credential.Payload = record.PayloadData

	return &credential, nil
}

func (r *CredentialRepository) Save(ctx context.Context, credential *models.Credential) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if credential.CreatedAt.IsZero() {
		credential.CreatedAt = time.Now().UTC()
	}

	credential.UpdatedAt = time.Now().UTC()

	record := &credentialRecord{Credential: *credential, PayloadData: credential.Payload}

	return r.p.write(credentialPath(credential.ID), record)
}

// AgentMemoryRepository stores one JSON file per (flow, node) pair
// under agent_memories/, holding the bounded snapshot list.
type AgentMemoryRepository struct {
	p *Persistence
}

func memoryPath(flowID, nodeID string) string {
	return "agent_memories/" + flowID + "__" + nodeID + ".json"
}

func (r *AgentMemoryRepository) Save(ctx context.Context, memory *models.AgentMemory) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if memory.ID == "" {
		memory.ID = uuid.New().String()
	}

	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = time.Now().UTC()
	}

	memories, err := r.loadLocked(memory.FlowID, memory.NodeID)
	if err != nil {
		return err
	}

	memories = append(memories, memory)

	return r.p.write(memoryPath(memory.FlowID, memory.NodeID), memories)
}

func (r *AgentMemoryRepository) Recent(ctx context.Context, flowID, nodeID string, limit int) ([]*models.AgentMemory, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	memories, err := r.loadLocked(flowID, nodeID)
	if err != nil {
		return nil, err
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})

	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}

	return memories, nil
}

func (r *AgentMemoryRepository) Prune(ctx context.Context, flowID, nodeID string, keep int) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	memories, err := r.loadLocked(flowID, nodeID)
	if err != nil {
		return err
	}

	if len(memories) <= keep {
		return nil
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})

	return r.p.write(memoryPath(flowID, nodeID), memories[:keep])
}

func (r *AgentMemoryRepository) loadLocked(flowID, nodeID string) ([]*models.AgentMemory, error) {
	memories := make([]*models.AgentMemory, 0)

	err := r.p.read(memoryPath(flowID, nodeID), &memories)
	if err != nil {
		if os.IsNotExist(err) {
			return memories, nil
		}

		return nil, fmt.Errorf("failed to read agent memories for %s/%s: %w", flowID, nodeID, err)
	}

	return memories, nil
}
