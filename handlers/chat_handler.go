package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/goverture/chatrelay/metrics"
	"github.com/goverture/chatrelay/persistence"
	"github.com/goverture/chatrelay/pricing"
	"github.com/goverture/chatrelay/provider"
	"github.com/goverture/chatrelay/utils"
)

// SystemPrompt is prepended to every conversation sent to the provider.
const SystemPrompt = "You are a helpful and friendly assistant designed to help with tasks. " +
	"Keep the context of the previous 10 messages."

const (
	previewRunes  = 50
	noTextPreview = "(no text)"
)

// UsageRecorder stores per-call accounting. *persistence.Ledger implements it.
type UsageRecorder interface {
	Record(ctx context.Context, e persistence.Entry) error
}

// ChatOptions configures a ChatHandler. Only Provider is required.
type ChatOptions struct {
	Provider     provider.Provider
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	MaxBodyBytes int64

	// Usage, when set, receives one entry per provider call priced with
	// Pricing. SessionSecret keys the client hash.
	Usage         UsageRecorder
	Pricing       *pricing.Catalog
	SessionSecret string
}

// ChatHandler relays a conversation to the completion provider.
type ChatHandler struct {
	provider provider.Provider
	metrics  *metrics.Metrics
	logger   *slog.Logger
	maxBody  int64
	usage    UsageRecorder
	pricing  *pricing.Catalog
	secret   string
}

func NewChatHandler(opts ChatOptions) *ChatHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &ChatHandler{
		provider: opts.Provider,
		metrics:  opts.Metrics,
		logger:   logger,
		maxBody:  maxBody,
		usage:    opts.Usage,
		pricing:  opts.Pricing,
		secret:   opts.SessionSecret,
	}
}

func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFrom(r.Context(), h.logger)

	req, err := DecodeConversation(r, h.maxBody)
	if err != nil {
		var reqErr *RequestError
		if !errors.As(err, &reqErr) {
			reqErr = malformed("invalid JSON: %v", err)
		}
		logger.Debug("rejected chat request", "status", reqErr.Status, "error", reqErr.Message)
		writeError(w, reqErr.Status, reqErr.Message)
		return
	}

	messages := make([]provider.Message, 0, len(req.History)+1)
	messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: SystemPrompt})
	messages = append(messages, req.History...)

	start := time.Now()
	completion, err := h.provider.Complete(r.Context(), messages)
	elapsed := time.Since(start)

	if err != nil {
		kind := provider.KindOf(err)
		h.metrics.ObserveProviderError(h.provider.Name(), h.provider.Model(), string(kind), elapsed)
		h.record(r, persistence.Entry{Failed: true})
		logger.Error("completion provider call failed",
			"provider", h.provider.Name(), "kind", string(kind), "error", err.Error())
		writeError(w, http.StatusInternalServerError, "error calling the completion provider: "+err.Error())
		return
	}

	model := completion.Model
	if model == "" {
		model = h.provider.Model()
	}
	h.metrics.ObserveProviderSuccess(h.provider.Name(), model, elapsed,
		completion.PromptTokens, completion.CompletionTokens)

	price := h.pricing.Cost(model, pricing.Usage{
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
	})
	h.record(r, persistence.Entry{
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		Cost:             price.Total,
	})

	logger.Info("chat request succeeded",
		"preview", preview(req.History[len(req.History)-1].Content),
		"model", model,
		"prompt_tokens", completion.PromptTokens,
		"completion_tokens", completion.CompletionTokens,
		"cost", price.Total.String(),
		"duration", elapsed.String())

	writeJSON(w, http.StatusOK, map[string]string{"response": completion.Text})
}

// record stores a usage entry. Ledger failures are logged and never change
// the response.
func (h *ChatHandler) record(r *http.Request, e persistence.Entry) {
	if h.usage == nil {
		return
	}
	addr := utils.ClientAddr(r)
	e.ClientKey = utils.HashClientKey(h.secret, addr)
	e.MaskedClient = utils.MaskClient(addr)
	e.At = time.Now()

	// The request context may already be cancelled by a departed client.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := h.usage.Record(ctx, e); err != nil {
		LoggerFrom(r.Context(), h.logger).Warn("failed to record usage", "error", err)
	}
}

// preview returns the first 50 runes of s, with "..." appended when s was cut.
func preview(s string) string {
	if s == "" {
		return noTextPreview
	}
	runes := []rune(s)
	if len(runes) <= previewRunes {
		return s
	}
	return string(runes[:previewRunes]) + "..."
}
