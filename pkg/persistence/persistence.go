// Package persistence provides the storage abstraction shared by the
// API, worker, and scheduler processes.
package persistence

import (
	"context"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
)

// Persistence is the root storage handle. Implementations are safe for
// concurrent use from multiple goroutines.
type Persistence interface {
	Flows() FlowRepository
	Runs() RunRepository
	NodeOutputs() NodeOutputRepository
	Credentials() CredentialRepository
	AgentMemories() AgentMemoryRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores flow definitions.
type FlowRepository interface {
	All(ctx context.Context) ([]*models.Flow, error)
	ByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error

	// Schedulable returns active flows carrying a schedule expression.
	Schedulable(ctx context.Context) ([]*models.Flow, error)

	// UpdateRunTimes writes the scheduler-owned timestamps without
	// touching the rest of the definition.
	UpdateRunTimes(ctx context.Context, id string, lastRunAt time.Time, nextRunAt *time.Time) error
}

// RunRepository stores execution attempts.
type RunRepository interface {
	Create(ctx context.Context, run *models.Run) error
	ByID(ctx context.Context, id string) (*models.Run, error)
	ByFlow(ctx context.Context, flowID string, limit int) ([]*models.Run, error)

	// Transition moves a run to the next status, enforcing the
	// monotonic state machine. It returns ErrInvalidTransition when the
	// current status does not permit the move.
	Transition(ctx context.Context, id string, to models.RunStatus) (*models.Run, error)

	// Finish transitions to a terminal status and records the result.
	Finish(ctx context.Context, id string, to models.RunStatus, output map[string]any, errMsg string) error
}

// NodeOutputRepository stores the append-only per-node records.
type NodeOutputRepository interface {
	Append(ctx context.Context, output *models.NodeOutput) error

	// ByRun returns a run's outputs ordered by creation time ascending.
	ByRun(ctx context.Context, runID string) ([]*models.NodeOutput, error)
}

// CredentialRepository stores encrypted secrets. Lookups return the
// row regardless of owner; ownership enforcement lives in the vault.
type CredentialRepository interface {
	ByID(ctx context.Context, id string) (*models.Credential, error)
	Save(ctx context.Context, credential *models.Credential) error
}

// AgentMemoryRepository stores bounded AI-node memory snapshots.
type AgentMemoryRepository interface {
	Save(ctx context.Context, memory *models.AgentMemory) error

	// Recent returns up to limit snapshots for (flowID, nodeID), newest
	// first.
	Recent(ctx context.Context, flowID, nodeID string, limit int) ([]*models.AgentMemory, error)

	// Prune deletes all but the keep most recent snapshots.
	Prune(ctx context.Context, flowID, nodeID string, keep int) error
}
