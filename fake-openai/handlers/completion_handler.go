package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ChatCompletionRequest is the subset of an OpenAI chat completion request
// the fake understands.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Message is a chat message as it appears on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	Choices           []choice `json:"choices"`
	Usage             usage    `json:"usage"`
	ServiceTier       string   `json:"service_tier"`
	SystemFingerprint string   `json:"system_fingerprint"`
}

type choice struct {
	Index        int         `json:"index"`
	Message      Message     `json:"message"`
	Logprobs     interface{} `json:"logprobs"`
	FinishReason string      `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionHandler is a scriptable OpenAI-compatible chat completions
// endpoint. The zero value answers with canned replies.
type CompletionHandler struct {
	// Reply, if set, produces the assistant content for a request.
	Reply func(req ChatCompletionRequest) string
	// FailStatus, if non-zero, makes every call fail with this status and an
	// OpenAI-style error body.
	FailStatus int
	// NoChoices makes successful calls return an empty choices array.
	NoChoices bool
	// Delay is slept before answering.
	Delay time.Duration

	mu       sync.Mutex
	received []ChatCompletionRequest
}

// Requests returns a copy of the requests decoded so far.
func (h *CompletionHandler) Requests() []ChatCompletionRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ChatCompletionRequest, len(h.received))
	copy(out, h.received)
	return out
}

// ServeHTTP handles POST .../chat/completions.
func (h *CompletionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Add realistic OpenAI headers
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Openai-Processing-Ms", "250")
	w.Header().Set("X-Request-Id", fmt.Sprintf("req_fake%d", time.Now().UnixNano()))

	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		w.WriteHeader(http.StatusNotFound)
		writeError(w, "not found", "invalid_request_error")
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeError(w, "Invalid JSON", "invalid_request_error")
		return
	}

	h.mu.Lock()
	h.received = append(h.received, req)
	h.mu.Unlock()

	if h.Delay > 0 {
		time.Sleep(h.Delay)
	}

	if h.FailStatus != 0 {
		w.WriteHeader(h.FailStatus)
		writeError(w, http.StatusText(h.FailStatus), errorType(h.FailStatus))
		return
	}

	content := ""
	if h.Reply != nil {
		content = h.Reply(req)
	} else {
		last := "Hello"
		if len(req.Messages) > 0 {
			last = req.Messages[len(req.Messages)-1].Content
		}
		content = generateFakeResponse(last)
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += estimateTokens(m.Content)
	}
	completionTokens := estimateTokens(content)

	resp := completionResponse{
		ID:      fmt.Sprintf("chatcmpl-fake%d", time.Now().Unix()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Usage: usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		ServiceTier:       "standard",
		SystemFingerprint: "fp_fake12345",
	}
	if !h.NoChoices {
		resp.Choices = []choice{{
			Index:        0,
			Message:      Message{Role: "assistant", Content: content},
			FinishReason: "stop",
		}}
	} else {
		resp.Choices = []choice{}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)

	slog.Debug("served fake completion", "model", req.Model,
		"prompt_tokens", promptTokens, "completion_tokens", completionTokens)
}

func writeError(w http.ResponseWriter, message, typ string) {
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": message, "type": typ},
	})
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusTooManyRequests:
		return "rate_limit_error"
	default:
		return "server_error"
	}
}

func generateFakeResponse(userContent string) string {
	responses := map[string]string{
		"capital of france": "The capital of France is Paris.",
		"hello":             "Hello! How can I help you today?",
		"what is 2+2":       "2 + 2 = 4",
		"test":              "This is a test response from the fake OpenAI server.",
	}

	content := strings.ToLower(userContent)
	for keyword, response := range responses {
		if strings.Contains(content, keyword) {
			return response
		}
	}

	return "I'm a fake OpenAI server. I received your message and I'm responding with this generic answer for testing purposes."
}

func estimateTokens(text string) int {
	// Very rough estimation: ~4 characters per token
	return max(1, len(text)/4)
}
