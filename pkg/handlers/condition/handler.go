// Package condition provides the branching condition node handler.
package condition

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/template"
)

// ErrExpressionRequired is returned when the node config carries no expression.
var ErrExpressionRequired = errors.New("missing required field 'expression'")

// Handler evaluates a templated boolean expression and reports which
// branch the flow should follow.
type Handler struct {
	Expression  string
	TrueBranch  string
	FalseBranch string
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	expression, ok := config["expression"].(string)
	if !ok || expression == "" {
		return nil, ErrExpressionRequired
	}

	trueBranch, _ := config["true_branch"].(string)
	if trueBranch == "" {
		trueBranch = "true"
	}

	falseBranch, _ := config["false_branch"].(string)
	if falseBranch == "" {
		falseBranch = "false"
	}

	return &Handler{
		Expression:  expression,
		TrueBranch:  trueBranch,
		FalseBranch: falseBranch,
	}, nil
}

// Execute renders the expression against the execution context and
// coerces the result to a boolean.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "condition_handler")

	rendered, err := template.RenderString(h.Expression, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render condition expression: %w", err)
	}

	result := truthy(rendered)

	branch := h.FalseBranch
	if result {
		branch = h.TrueBranch
	}

	logger.InfoContext(ctx, "Condition evaluated", "result", result, "branch", branch)

	return map[string]any{
		"result": result,
		"branch": branch,
	}, nil
}

func truthy(value string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(value))

	switch trimmed {
	case "", "false", "0", "no", "null", "<no value>":
		return false
	}

	if number, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return number != 0
	}

	return true
}
