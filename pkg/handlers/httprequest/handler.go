// Package httprequest provides the HTTP request node handler.
package httprequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/template"
)

const defaultTimeoutSeconds = 30

var (
	// ErrURLRequired is returned when the node config carries no URL.
	ErrURLRequired = errors.New("missing required field 'url'")
	// ErrServerError marks a 5xx response that triggered a retry.
	ErrServerError = errors.New("server error during HTTP request")
)

// Handler performs an HTTP request with templated URL, headers, and
// body, a per-request timeout, and bounded retry with delay.
type Handler struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
	Timeout time.Duration
	Retry   RetryConfig
}

// RetryConfig bounds the retry loop.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, ErrURLRequired
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, exists := config["headers"]; exists {
		if headersMap, ok := headersConfig.(map[string]any); ok {
			for k, v := range headersMap {
				if strVal, ok := v.(string); ok {
					headers[k] = strVal
				}
			}
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if timeoutMs, ok := config["timeout_ms"].(float64); ok && timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}

	retry := RetryConfig{Attempts: 1}
	if retryConfig, exists := config["retry"]; exists {
		retry = parseRetryConfig(retryConfig)
	}

	return &Handler{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		Timeout: timeout,
		Retry:   retry,
	}, nil
}

func parseRetryConfig(retryConfig any) RetryConfig {
	retry := RetryConfig{Attempts: 1}

	retryMap, ok := retryConfig.(map[string]any)
	if !ok {
		return retry
	}

	if attempts, ok := retryMap["attempts"].(float64); ok && attempts > 0 {
		retry.Attempts = int(attempts)
	}

	if delaySeconds, ok := retryMap["delay"].(float64); ok && delaySeconds > 0 {
		retry.Delay = time.Duration(delaySeconds * float64(time.Second))
	}

	return retry
}

// Execute runs the request. 5xx responses are retried with a doubling
// delay up to the configured attempt count; the final response (of
// whatever status) is returned as the node output.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "http_request_handler")
	logger.InfoContext(ctx, "Executing HTTP request node", "method", h.Method)

	var (
		lastErr error
		resp    *http.Response
	)

	delay := h.Retry.Delay

	for attempt := 1; attempt <= h.Retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "of", h.Retry.Attempts)
			time.Sleep(delay)

			delay *= 2
		}

		req, err := h.buildRequest(ctx, execCtx, input)
		if err != nil {
			return nil, err
		}

		client := &http.Client{Timeout: h.Timeout}

		resp, err = client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed: %w", err)

			continue
		}

		if resp.StatusCode >= 500 && attempt < h.Retry.Attempts {
			err = resp.Body.Close()
			if err != nil {
				logger.ErrorContext(ctx, "failed to close response body", "error", err)
			}

			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrServerError)

			continue
		}

		break
	}

	if resp == nil {
		return nil, fmt.Errorf("all %d attempts failed, last error: %w", h.Retry.Attempts, lastErr)
	}

	return h.processResponse(ctx, resp, logger)
}

func (h *Handler) buildRequest(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (*http.Request, error) {
	url, err := template.RenderString(h.URL, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	var bodyReader io.Reader = strings.NewReader("")

	if h.Body != "" {
		body, err := template.RenderString(h.Body, &execCtx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render body template: %w", err)
		}

		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, h.Method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	for key, value := range h.Headers {
		rendered, err := template.RenderString(value, &execCtx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}

func (h *Handler) processResponse(ctx context.Context, resp *http.Response, logger *slog.Logger) (map[string]any, error) {
	defer func() {
		err := resp.Body.Close()
		if err != nil {
			logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var body any = string(data)

	var jsonBody any
	if json.Unmarshal(data, &jsonBody) == nil {
		body = jsonBody
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return map[string]any{
		"success":     resp.StatusCode < 400,
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}
