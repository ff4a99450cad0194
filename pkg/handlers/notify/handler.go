// Package notify provides the notification node handler. Delivery
// failures soft-fail so the run can continue.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/protocol"
	"github.com/voltflow/voltflow/pkg/template"
)

const deliveryTimeout = 15 * time.Second

var (
	// ErrCredentialRequired is returned when the node config names no credential.
	ErrCredentialRequired = errors.New("missing required field 'credential_id'")
	// ErrNoEndpoint is returned when the resolved credential carries no webhook URL.
	ErrNoEndpoint = errors.New("credential payload has no 'webhook_url'")
)

// Handler delivers a notification through a webhook endpoint stored in
// a vault credential.
type Handler struct {
	CredentialID string
	Subject      string
	Message      string
}

// NewHandler builds a handler from node configuration.
func NewHandler(config map[string]any) (*Handler, error) {
	credentialID, ok := config["credential_id"].(string)
	if !ok || credentialID == "" {
		return nil, ErrCredentialRequired
	}

	subject, _ := config["subject"].(string)
	message, _ := config["message"].(string)

	return &Handler{
		CredentialID: credentialID,
		Subject:      subject,
		Message:      message,
	}, nil
}

// Execute resolves the credential and posts the rendered notification.
// Any resolution or delivery failure is reported as a soft failure.
func (h *Handler) Execute(ctx context.Context, execCtx models.ExecutionContext, input map[string]any) (map[string]any, error) {
	logger := execCtx.Logger.With("module", "notify_handler")
	logger.InfoContext(ctx, "Executing notify node", "credential_id", h.CredentialID)

	secret, err := execCtx.Secrets.Resolve(ctx, h.CredentialID, execCtx.UserID)
	if err != nil {
		logger.WarnContext(ctx, "Notification credential unavailable", "error", err)

		return protocol.SoftFailure(err, nil), nil
	}

	endpoint, ok := secret["webhook_url"].(string)
	if !ok || endpoint == "" {
		logger.WarnContext(ctx, "Notification credential has no endpoint")

		return protocol.SoftFailure(ErrNoEndpoint, nil), nil
	}

	subject, err := template.RenderString(h.Subject, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render subject template: %w", err)
	}

	message, err := template.RenderString(h.Message, &execCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to render message template: %w", err)
	}

	if err := h.deliver(ctx, endpoint, secret, subject, message); err != nil {
		logger.WarnContext(ctx, "Notification delivery failed", "error", err)

		return protocol.SoftFailure(err, map[string]any{"subject": subject}), nil
	}

	return map[string]any{
		"success": true,
		"subject": subject,
	}, nil
}

func (h *Handler) deliver(ctx context.Context, endpoint string, secret map[string]any, subject, message string) error {
	payload, err := json.Marshal(map[string]any{
		"subject": subject,
		"message": message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create notification request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if token, ok := secret["token"].(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: deliveryTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
