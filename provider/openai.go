package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements Provider with the official OpenAI Go SDK. Any
// OpenAI-compatible endpoint works through WithBaseURL, OpenRouter included.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openaiConfig)

type openaiConfig struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	headers map[string]string
}

// WithAPIKey sets the API key. If empty, the SDK falls back to OPENAI_API_KEY.
func WithAPIKey(key string) OpenAIOption {
	return func(c *openaiConfig) { c.apiKey = key }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openaiConfig) { c.baseURL = url }
}

// WithTimeout sets a per-request timeout. Zero keeps the SDK default.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *openaiConfig) { c.timeout = d }
}

// WithHeader adds a header to every request, e.g. OpenRouter's HTTP-Referer
// and X-Title attribution headers. Empty values are ignored.
func WithHeader(key, value string) OpenAIOption {
	return func(c *openaiConfig) {
		if value == "" {
			return
		}
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// NewOpenAIProvider creates an OpenAIProvider that sends every request under
// model. The SDK's automatic retries are disabled: a failed call is reported
// to the caller as-is.
func NewOpenAIProvider(model string, opts ...OpenAIOption) *OpenAIProvider {
	var cfg openaiConfig
	for _, o := range opts {
		o(&cfg)
	}

	clientOpts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))
	}
	for k, v := range cfg.headers {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}

	return &OpenAIProvider{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// Complete sends the messages as a chat completion and returns the content of
// the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, &Error{
			Provider: p.Name(),
			Kind:     KindMalformed,
			Err:      errors.New("chat completion: provider returned no choices"),
		}
	}

	model := completion.Model
	if model == "" {
		model = p.model
	}
	return &Completion{
		Text:             completion.Choices[0].Message.Content,
		Model:            model,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func (p *OpenAIProvider) classify(err error) *Error {
	wrapped := fmt.Errorf("chat completion: %w", err)

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &Error{
			Provider:   p.Name(),
			Kind:       kindForStatus(apiErr.StatusCode),
			StatusCode: apiErr.StatusCode,
			Err:        wrapped,
		}
	}
	return &Error{Provider: p.Name(), Kind: kindForTransport(err), Err: wrapped}
}

// toOpenAIMessages converts messages to the SDK union type.
func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, len(msgs))
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out[i] = openai.SystemMessage(m.Content)
		case RoleAssistant:
			out[i] = openai.AssistantMessage(m.Content)
		default:
			out[i] = openai.UserMessage(m.Content)
		}
	}
	return out
}
