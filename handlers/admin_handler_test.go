package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goverture/chatrelay/persistence"
	"github.com/goverture/chatrelay/pricing"
)

// createTestLedger opens a usage ledger in a temporary directory.
func createTestLedger(t *testing.T) *persistence.Ledger {
	t.Helper()
	ledger, err := persistence.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open test ledger: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

type fakeSource struct {
	days int
	err  error
}

func (f *fakeSource) Summary(_ context.Context, days int) ([]persistence.DailyUsage, error) {
	f.days = days
	return nil, f.err
}

func TestAdminHandler_GetUsage_EmptyUsage(t *testing.T) {
	adminHandler := NewAdminHandler(createTestLedger(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/usage", nil)
	rr := httptest.NewRecorder()
	adminHandler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response UsageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	if response.Total != 0 || response.Usage == nil {
		t.Errorf("expected empty non-null usage, got %s", rr.Body.String())
	}
}

func TestAdminHandler_GetUsage_WithData(t *testing.T) {
	ledger := createTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	entries := []persistence.Entry{
		{ClientKey: "hash-a", MaskedClient: "10.1.*.*", PromptTokens: 10, CompletionTokens: 5, Cost: pricing.NewMoneyFromUSD(0.5), At: now},
		{ClientKey: "hash-a", MaskedClient: "10.1.*.*", Failed: true, At: now},
		{ClientKey: "hash-b", MaskedClient: "10.2.*.*", PromptTokens: 1, At: now},
	}
	for _, e := range entries {
		if err := ledger.Record(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	rr := httptest.NewRecorder()
	NewAdminHandler(ledger, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/usage?days=1", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var response struct {
		Usage []map[string]any `json:"usage"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response.Total != 2 || len(response.Usage) != 2 {
		t.Fatalf("expected 2 rows, got %s", rr.Body.String())
	}

	first := response.Usage[0]
	if first["client"] != "10.1.*.*" {
		t.Errorf("expected masked client, got %v", first["client"])
	}
	if first["requests"] != float64(2) || first["failures"] != float64(1) {
		t.Errorf("unexpected counts %v", first)
	}
	if first["cost_usd"] != 0.5 {
		t.Errorf("cost_usd = %v, want 0.5", first["cost_usd"])
	}
	for _, row := range response.Usage {
		if _, ok := row["client_key"]; ok {
			t.Error("hashed client key must not be exposed")
		}
	}
}

func TestAdminHandler_DaysParam(t *testing.T) {
	tests := []struct {
		query    string
		status   int
		wantDays int
	}{
		{"", http.StatusOK, 7},
		{"?days=1", http.StatusOK, 1},
		{"?days=365", http.StatusOK, 365},
		{"?days=0", http.StatusBadRequest, 0},
		{"?days=366", http.StatusBadRequest, 0},
		{"?days=-3", http.StatusBadRequest, 0},
		{"?days=week", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			src := &fakeSource{}
			rr := httptest.NewRecorder()
			NewAdminHandler(src, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/usage"+tt.query, nil))
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d", rr.Code, tt.status)
			}
			if src.days != tt.wantDays {
				t.Errorf("summary days = %d, want %d", src.days, tt.wantDays)
			}
		})
	}
}

func TestAdminHandler_SourceError(t *testing.T) {
	rr := httptest.NewRecorder()
	NewAdminHandler(&fakeSource{err: errors.New("db locked")}, nil).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/usage", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]string
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "failed to read usage" {
		t.Errorf("unexpected body %v", body)
	}
}
