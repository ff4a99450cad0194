// Package postgres provides the PostgreSQL persistence implementation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // database/sql driver

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/persistence/sqlbase"
)

// Persistence implements persistence.Persistence on PostgreSQL.
type Persistence struct {
	db          *sql.DB
	logger      *slog.Logger
	flows       *FlowRepository
	runs        *RunRepository
	nodeOutputs *NodeOutputRepository
	credentials *CredentialRepository
	memories    *AgentMemoryRepository
}

// NewPersistence connects, pings, and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:          database,
		logger:      logger,
		flows:       &FlowRepository{db: database, logger: logger},
		runs:        &RunRepository{db: database, logger: logger},
		nodeOutputs: &NodeOutputRepository{db: database, logger: logger},
		credentials: &CredentialRepository{db: database, logger: logger},
		memories:    &AgentMemoryRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) Flows() persistence.FlowRepository { return p.flows }

func (p *Persistence) Runs() persistence.RunRepository { return p.runs }

func (p *Persistence) NodeOutputs() persistence.NodeOutputRepository { return p.nodeOutputs }

func (p *Persistence) Credentials() persistence.CredentialRepository { return p.credentials }

func (p *Persistence) AgentMemories() persistence.AgentMemoryRepository { return p.memories }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
