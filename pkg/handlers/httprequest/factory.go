package httprequest

import (
	"context"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// HandlerFactory creates Handler instances.
type HandlerFactory struct{}

// NewHandlerFactory creates a new HTTP request handler factory.
func NewHandlerFactory() *HandlerFactory {
	return &HandlerFactory{}
}

// Create builds a new handler from the given configuration.
func (h *HandlerFactory) Create(_ context.Context, config map[string]any) (protocol.Handler, error) {
	return NewHandler(config)
}

// ID returns the unique identifier for the handler.
func (h *HandlerFactory) ID() string {
	return "http_request"
}

// Name returns the name of the handler.
func (h *HandlerFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the handler.
func (h *HandlerFactory) Description() string {
	return "Performs an HTTP request to a specified URL with optional headers, body, timeout, and retry."
}

// Schema returns the JSON schema for configuring this handler.
func (h *HandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"description": "The URL to send the HTTP request to. Supports templating with node results.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{.results.get_user.user_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use (GET, POST, PUT, DELETE, etc.)",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body content. Supports templating for dynamic JSON or text content.",
			},
			"timeout_ms": map[string]any{
				"type":        "number",
				"description": "Per-request timeout in milliseconds.",
				"default":     30000,
			},
			"retry": map[string]any{
				"type":        "object",
				"description": "Retry behavior for failed requests and 5xx responses.",
				"properties": map[string]any{
					"attempts": map[string]any{
						"type":        "number",
						"description": "Total number of attempts.",
						"default":     1,
					},
					"delay": map[string]any{
						"type":        "number",
						"description": "Initial delay between attempts, in seconds. Doubles each retry.",
						"default":     0,
					},
				},
			},
		},
		"required": []string{"url"},
	}
}
