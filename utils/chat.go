package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"volunteerconnect/config"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content" validate:"required"`
}

type ChatOptions struct {
	Model       string   `json:"model"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// ChatCompletion is the provider reply reduced to what the API returns to clients.
type ChatCompletion struct {
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
	Model   string       `json:"model"`
}

// Reply returns the content of the first choice.
func (c *ChatCompletion) Reply() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Message.Content
}

// ChatClient talks to a chat-completion provider.
type ChatClient interface {
	ChatCompletion(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatCompletion, error)
}

// ChatError carries the HTTP status the proxy should answer with.
type ChatError struct {
	Status  int
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ChatError) Unwrap() error { return e.Err }

var ErrChatNotConfigured = &ChatError{Status: http.StatusServiceUnavailable, Message: "AI assistant is not configured"}

// OpenAIChatClient works against any OpenAI-compatible endpoint.
type OpenAIChatClient struct {
	client openai.Client
	model  string
}

func NewOpenAIChatClient(cfg config.ChatConfig) *OpenAIChatClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &OpenAIChatClient{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}
}

func (c *OpenAIChatClient) ChatCompletion(ctx context.Context, messages []ChatMessage, opts ChatOptions) (*ChatCompletion, error) {
	model := c.model
	if opts.Model != "" {
		model = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyChatError(err)
	}

	out := &ChatCompletion{
		Model: resp.Model,
		Usage: ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, choice := range resp.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Index:        int(choice.Index),
			Message:      ChatMessage{Role: "assistant", Content: choice.Message.Content},
			FinishReason: string(choice.FinishReason),
		})
	}
	if len(out.Choices) == 0 {
		return nil, &ChatError{Status: http.StatusServiceUnavailable, Message: "AI service returned no reply"}
	}
	return out, nil
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classifyChatError maps provider failures onto proxy statuses.
func classifyChatError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return ChatErrorForStatus(apiErr.StatusCode, apiErr.Code, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ChatError{Status: http.StatusServiceUnavailable, Message: "AI service timed out", Err: err}
	}
	return &ChatError{Status: http.StatusServiceUnavailable, Message: "AI service is unavailable", Err: err}
}

// ChatErrorForStatus maps a provider HTTP status and error code to the proxy's answer.
func ChatErrorForStatus(status int, code string, err error) *ChatError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ChatError{Status: http.StatusUnauthorized, Message: "AI service rejected the API key", Err: err}
	case status == http.StatusPaymentRequired || code == "insufficient_quota":
		return &ChatError{Status: http.StatusPaymentRequired, Message: "AI service quota exhausted", Err: err}
	case status == http.StatusTooManyRequests:
		return &ChatError{Status: http.StatusTooManyRequests, Message: "AI service rate limit reached, try again later", Err: err}
	default:
		return &ChatError{Status: http.StatusServiceUnavailable, Message: "AI service is unavailable", Err: err}
	}
}

// DisabledChatClient answers every call with ErrChatNotConfigured.
type DisabledChatClient struct{}

func (DisabledChatClient) ChatCompletion(context.Context, []ChatMessage, ChatOptions) (*ChatCompletion, error) {
	return nil, ErrChatNotConfigured
}

// NewChatClient returns the provider client when an API key is configured.
func NewChatClient(cfg config.ChatConfig) ChatClient {
	if cfg.APIKey == "" {
		return DisabledChatClient{}
	}
	return NewOpenAIChatClient(cfg)
}
