package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

type geminiModelsClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements Provider on the Google Gen AI SDK.
type GeminiProvider struct {
	models  geminiModelsClient
	model   string
	timeout time.Duration
}

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string // optional endpoint override
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewGeminiProvider creates a GeminiProvider backed by the Gemini API.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{models: client.Models, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

// Complete sends the conversation to Gemini. Leading system messages become
// the system instruction; assistant turns are sent with the model role.
func (p *GeminiProvider) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	contents, genCfg := buildGeminiRequest(messages)
	if len(contents) == 0 {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed,
			Err: errors.New("generate content: at least one user or assistant message is required")}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.models.GenerateContent(ctx, p.model, contents, genCfg)
	if err != nil {
		return nil, p.classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, &Error{Provider: p.Name(), Kind: KindMalformed,
			Err: errors.New("generate content: provider returned no candidates")}
	}

	c := &Completion{Text: visibleText(resp.Candidates[0].Content), Model: resp.ModelVersion}
	if c.Model == "" {
		c.Model = p.model
	}
	if u := resp.UsageMetadata; u != nil {
		c.PromptTokens = int(u.PromptTokenCount)
		c.CompletionTokens = int(u.CandidatesTokenCount)
	}
	return c, nil
}

func (p *GeminiProvider) classify(err error) *Error {
	wrapped := fmt.Errorf("generate content: %w", err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Provider: p.Name(), Kind: kindForStatus(apiErr.Code), StatusCode: apiErr.Code, Err: wrapped}
	}
	return &Error{Provider: p.Name(), Kind: kindForTransport(err), Err: wrapped}
}

// buildGeminiRequest keeps the leading run of system messages as the system
// instruction. A system message after the first user or assistant turn stays
// in its position as a user turn, since Gemini contents only carry the user
// and model roles.
func buildGeminiRequest(messages []Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(messages))
	var system []string
	for _, m := range messages {
		switch {
		case m.Role == RoleSystem && len(contents) == 0:
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
		case m.Role == RoleAssistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}

	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}
	}
	return contents, cfg
}

// visibleText joins the non-thought text parts of a candidate.
func visibleText(content *genai.Content) string {
	var sb strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
