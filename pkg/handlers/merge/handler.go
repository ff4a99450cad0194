// Package merge provides the merge node handler, which collects the
// outputs of earlier nodes into a single result.
package merge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/voltflow/voltflow/pkg/models"
)

// ErrSourcesRequired is returned when the node config lists no source nodes.
var ErrSourcesRequired = errors.New("missing required field 'sources'")

// Handler combines earlier node outputs either keyed by node ID or as
// an ordered list.
type Handler struct {
	Sources []string
	Mode    string
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	rawSources, ok := config["sources"].([]any)
	if !ok || len(rawSources) == 0 {
		return nil, ErrSourcesRequired
	}

	sources := make([]string, 0, len(rawSources))

	for _, raw := range rawSources {
		if source, ok := raw.(string); ok && source != "" {
			sources = append(sources, source)
		}
	}

	if len(sources) == 0 {
		return nil, ErrSourcesRequired
	}

	mode, _ := config["mode"].(string)
	if mode == "" {
		mode = "object"
	}

	return &Handler{Sources: sources, Mode: mode}, nil
}

// Execute gathers the named node results. Missing sources are skipped
// rather than failing the run.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, _ map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "merge_handler")

	missing := make([]string, 0)

	if h.Mode == "array" {
		items := make([]any, 0, len(h.Sources))

		for _, source := range h.Sources {
			result, ok := execCtx.NodeResults[source]
			if !ok {
				missing = append(missing, source)

				continue
			}

			items = append(items, result)
		}

		logMissing(ctx, logger, missing)

		return map[string]any{"items": items, "count": len(items)}, nil
	}

	merged := make(map[string]any, len(h.Sources))

	for _, source := range h.Sources {
		result, ok := execCtx.NodeResults[source]
		if !ok {
			missing = append(missing, source)

			continue
		}

		merged[source] = result
	}

	logMissing(ctx, logger, missing)

	return map[string]any{"merged": merged, "count": len(merged)}, nil
}

func logMissing(ctx context.Context, logger *slog.Logger, missing []string) {
	if len(missing) > 0 {
		logger.WarnContext(ctx, "Merge sources missing from node results", "sources", missing)
	}
}
