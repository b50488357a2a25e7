package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goverture/chatrelay/persistence"
)

const (
	defaultUsageDays = 7
	maxUsageDays     = 365
)

// UsageSource reads aggregated usage. *persistence.Ledger implements it.
type UsageSource interface {
	Summary(ctx context.Context, days int) ([]persistence.DailyUsage, error)
}

// AdminHandler serves the read-only usage view.
type AdminHandler struct {
	source UsageSource
	logger *slog.Logger
}

// NewAdminHandler creates an admin handler reading from source.
func NewAdminHandler(source UsageSource, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{source: source, logger: logger}
}

// UsageResponse is the body of GET /admin/usage.
type UsageResponse struct {
	Usage []persistence.DailyUsage `json:"usage"`
	Total int                      `json:"total"`
}

// ServeHTTP handles GET /admin/usage?days=N.
func (ah *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	days := defaultUsageDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxUsageDays {
			writeError(w, http.StatusBadRequest, "days must be an integer between 1 and 365")
			return
		}
		days = n
	}

	usage, err := ah.source.Summary(r.Context(), days)
	if err != nil {
		LoggerFrom(r.Context(), ah.logger).Error("failed to read usage", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read usage")
		return
	}
	if usage == nil {
		usage = []persistence.DailyUsage{}
	}

	writeJSON(w, http.StatusOK, UsageResponse{Usage: usage, Total: len(usage)})
}
