// Package chainread provides the blockchain read node handler. It
// issues JSON-RPC calls against an EVM-compatible endpoint.
package chainread

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/template"
)

const requestTimeout = 20 * time.Second

var (
	// ErrEndpointRequired is returned when the node config carries no RPC endpoint.
	ErrEndpointRequired = errors.New("missing required field 'rpc_url'")
	// ErrMethodRequired is returned when the node config carries no RPC method.
	ErrMethodRequired = errors.New("missing required field 'rpc_method'")
)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result any       `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Handler reads chain state over JSON-RPC.
type Handler struct {
	Endpoint string
	Method   string
	Params   []any
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	endpoint, ok := config["rpc_url"].(string)
	if !ok || endpoint == "" {
		return nil, ErrEndpointRequired
	}

	method, ok := config["rpc_method"].(string)
	if !ok || method == "" {
		return nil, ErrMethodRequired
	}

	var params []any
	if rawParams, ok := config["params"].([]any); ok {
		params = rawParams
	}

	return &Handler{
		Endpoint: endpoint,
		Method:   method,
		Params:   params,
	}, nil
}

// Execute posts the JSON-RPC request and returns the raw result.
// String params are rendered against the execution context first.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "chain_read_handler")
	logger.InfoContext(ctx, "Executing chain read node", "rpc_method", h.Method)

	endpoint, err := template.RenderString(h.Endpoint, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render rpc endpoint: %w", err)
	}

	params := make([]any, len(h.Params))

	for i, param := range h.Params {
		if str, ok := param.(string); ok {
			rendered, err := template.RenderString(str, &execCtx, input)
			if err != nil {
				return nil, fmt.Errorf("failed to render rpc param %d: %w", i, err)
			}

			params[i] = rendered

			continue
		}

		params[i] = param
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  h.Method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: requestTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("rpc endpoint returned status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}

	if decoded.Error != nil {
		return nil, decoded.Error
	}

	return map[string]any{
		"method": h.Method,
		"result": decoded.Result,
	}, nil
}
