package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompletionHandler_CannedReply(t *testing.T) {
	h := &CompletionHandler{}
	body := bytes.NewBufferString(`{"model":"m","messages":[{"role":"user","content":"What is the capital of France?"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp completionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].Message.Content != "The capital of France is Paris." {
		t.Fatalf("unexpected choices: %+v", resp.Choices)
	}
	if resp.Model != "m" || resp.Usage.TotalTokens == 0 {
		t.Errorf("unexpected model/usage: %+v", resp)
	}
	if got := h.Requests(); len(got) != 1 || got[0].Messages[0].Role != "user" {
		t.Errorf("request not captured: %+v", got)
	}
}

func TestCompletionHandler_Failures(t *testing.T) {
	tests := []struct {
		name   string
		h      *CompletionHandler
		method string
		path   string
		want   int
	}{
		{"fail status", &CompletionHandler{FailStatus: http.StatusUnauthorized}, http.MethodPost, "/chat/completions", http.StatusUnauthorized},
		{"wrong path", &CompletionHandler{}, http.MethodPost, "/v1/embeddings", http.StatusNotFound},
		{"wrong method", &CompletionHandler{}, http.MethodGet, "/chat/completions", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(`{"model":"m","messages":[]}`))
			rr := httptest.NewRecorder()
			tt.h.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}
