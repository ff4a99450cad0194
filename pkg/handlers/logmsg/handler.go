// Package logmsg provides the log message node handler.
package logmsg

import (
	"context"
	"fmt"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/template"
)

// Handler writes a templated message to the run log.
type Handler struct {
	Message string
	Level   string
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Handler{Message: message, Level: level}, nil
}

// Execute renders the message and logs it at the configured level.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "log_handler")

	message := h.Message
	if message != "" {
		rendered, err := template.RenderString(h.Message, &execCtx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render log message: %w", err)
		}

		message = rendered
	}

	switch h.Level {
	case "debug":
		logger.DebugContext(ctx, message, "node_id", execCtx.NodeID)
	case "warn":
		logger.WarnContext(ctx, message, "node_id", execCtx.NodeID)
	case "error":
		logger.ErrorContext(ctx, message, "node_id", execCtx.NodeID)
	default:
		logger.InfoContext(ctx, message, "node_id", execCtx.NodeID)
	}

	return map[string]any{
		"message": message,
		"level":   h.Level,
	}, nil
}
