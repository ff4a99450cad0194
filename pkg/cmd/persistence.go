// Package cmd provides common initialization for the command-line
// processes.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/persistence/postgres"
)

// NewPersistence builds the storage backend from the database URL
// scheme. postgres:// selects the SQL backend, anything else is
// treated as a file root.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres persistence: %w", err)
		}

		return p, nil
	default:
		root := strings.TrimPrefix(databaseURL, "file://")

		return file.NewPersistence(root), nil
	}
}

func parseProvider(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)

	return parts[0]
}
