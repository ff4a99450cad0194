package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voltflow/voltflow/pkg/models"
)

const (
	defaultAnthropicModel    = "claude-3-5-sonnet-latest"
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

// AnthropicProvider speaks the Anthropic Messages API over HTTP.
type AnthropicProvider struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewAnthropicProvider creates a provider for the Anthropic API.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		apiKey:   apiKey,
		endpoint: defaultAnthropicEndpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func (p *AnthropicProvider) WithEndpoint(endpoint string) *AnthropicProvider {
	p.endpoint = endpoint

	return p
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string           `json:"type"`
	Text      string           `json:"text,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     map[string]any   `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	IsError   bool             `json:"is_error,omitempty"`
	Content   []anthropicBlock `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      anthropicUsage   `json:"usage"`
}

// SendMessage posts the conversation and normalizes the reply.
func (p *AnthropicProvider) SendMessage(ctx context.Context, messages []models.AgentMessage, tools []ToolDefinition, opts SendOptions) (*ModelResponse, error) {
	if p.apiKey == "" {
		return nil, errors.New("missing Anthropic API key")
	}

	model := opts.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	payload := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    opts.SystemPrompt,
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(tools),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create anthropic request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("anthropic error: %s", strings.TrimSpace(string(raw)))
	}

	var decoded anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode anthropic response: %w", err)
	}

	var (
		textBuf   strings.Builder
		toolCalls []models.AgentToolCall
	)

	for _, block := range decoded.Content {
		switch block.Type {
		case "text":
			textBuf.WriteString(block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, models.AgentToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}

	return &ModelResponse{
		Content:      textBuf.String(),
		ToolCalls:    toolCalls,
		FinishReason: decoded.StopReason,
		Usage: Usage{
			InputTokens:  decoded.Usage.InputTokens,
			OutputTokens: decoded.Usage.OutputTokens,
		},
	}, nil
}

func toAnthropicMessages(messages []models.AgentMessage) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == models.AgentRoleSystem {
			continue
		}

		blocks := make([]anthropicBlock, 0, 1+len(msg.ToolCalls)+len(msg.ToolResults))

		if msg.Content != "" {
			blocks = append(blocks, anthropicBlock{Type: "text", Text: msg.Content})
		}

		for _, call := range msg.ToolCalls {
			blocks = append(blocks, anthropicBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.Input,
			})
		}

		for _, use := range msg.ToolResults {
			text := use.Result
			if use.Error != "" {
				text = use.Error
			}

			if text == "" {
				text = "(no output)"
			}

			blocks = append(blocks, anthropicBlock{
				Type:      "tool_result",
				ToolUseID: use.CallID,
				IsError:   use.Error != "",
				Content:   []anthropicBlock{{Type: "text", Text: text}},
			})
		}

		if len(blocks) == 0 {
			continue
		}

		out = append(out, anthropicMessage{Role: string(msg.Role), Content: blocks})
	}

	return out
}

func toAnthropicTools(tools []ToolDefinition) []anthropicTool {
	out := make([]anthropicTool, 0, len(tools))

	for _, tool := range tools {
		out = append(out, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return out
}
