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
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// OpenAIProvider speaks the OpenAI Chat Completions API over HTTP.
type OpenAIProvider struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

// NewOpenAIProvider creates a provider for the OpenAI API.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:   apiKey,
		endpoint: defaultOpenAIEndpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func (p *OpenAIProvider) WithEndpoint(endpoint string) *OpenAIProvider {
	p.endpoint = endpoint

	return p
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string            `json:"type"`
	Function openAIFunctionDef `json:"function"`
}

type openAIFunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// SendMessage posts the conversation and normalizes the reply.
func (p *OpenAIProvider) SendMessage(ctx context.Context, messages []models.AgentMessage, tools []ToolDefinition, opts SendOptions) (*ModelResponse, error) {
	if p.apiKey == "" {
		return nil, errors.New("missing OpenAI API key")
	}

	model := opts.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	converted := toOpenAIMessages(messages)
	if opts.SystemPrompt != "" {
		converted = append([]openAIMessage{{Role: "system", Content: opts.SystemPrompt}}, converted...)
	}

	payload := openAIRequest{
		Model:    model,
		Messages: converted,
		Tools:    toOpenAITools(tools),
	}
	if opts.MaxTokens > 0 {
		payload.MaxTokens = opts.MaxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)

		return nil, fmt.Errorf("openai error: %s", strings.TrimSpace(string(raw)))
	}

	var decoded openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode openai response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return nil, errors.New("openai error: empty response")
	}

	choice := decoded.Choices[0]

	toolCalls := make([]models.AgentToolCall, 0, len(choice.Message.ToolCalls))
	for _, call := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, models.AgentToolCall{
			ID:    call.ID,
			Name:  call.Function.Name,
			Input: decodeArguments(call.Function.Arguments),
		})
	}

	return &ModelResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			InputTokens:  decoded.Usage.PromptTokens,
			OutputTokens: decoded.Usage.CompletionTokens,
		},
	}, nil
}

func toOpenAIMessages(messages []models.AgentMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))

	for _, msg := range messages {
		if msg.Role == models.AgentRoleSystem {
			out = append(out, openAIMessage{Role: "system", Content: msg.Content})

			continue
		}

		if len(msg.ToolCalls) > 0 {
			calls := make([]openAIToolCall, 0, len(msg.ToolCalls))

			for _, call := range msg.ToolCalls {
				calls = append(calls, openAIToolCall{
					ID:   call.ID,
					Type: "function",
					Function: openAIFunctionCall{
						Name:      call.Name,
						Arguments: encodeArguments(call.Input),
					},
				})
			}

			out = append(out, openAIMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: calls,
			})
		} else if len(msg.ToolResults) == 0 {
			out = append(out, openAIMessage{Role: string(msg.Role), Content: msg.Content})
		}

		for _, use := range msg.ToolResults {
			content := use.Result
			if use.Error != "" {
				content = use.Error
			}

			if content == "" {
				content = "(no output)"
			}

			out = append(out, openAIMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: use.CallID,
			})
		}
	}

	return out
}

func toOpenAITools(tools []ToolDefinition) []openAITool {
	out := make([]openAITool, 0, len(tools))

	for _, tool := range tools {
		out = append(out, openAITool{
			Type: "function",
			Function: openAIFunctionDef{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		})
	}

	return out
}

func encodeArguments(input map[string]any) string {
	if input == nil {
		return "{}"
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}

	return string(raw)
}

func decodeArguments(arguments string) map[string]any {
	if arguments == "" {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(arguments), &out); err != nil {
		return nil
	}

	return out
}
