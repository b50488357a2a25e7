package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goverture/chatrelay/provider"
)

func newChatRequest(contentType, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func TestIsJSONContentType(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"Application/JSON", true},
		{"application/vnd.api+json", true},
		{"application/merge-patch+json; charset=utf-8", true},
		{"text/plain", false},
		{"text/json", false},
		{"application/x-www-form-urlencoded", false},
		{"application/jsonp", false},
		{"", false},
		{"application/json; =broken", false},
	}
	for _, tt := range tests {
		if got := isJSONContentType(tt.header); got != tt.want {
			t.Errorf("isJSONContentType(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestDecodeConversation_Valid(t *testing.T) {
	body := `{"history":[
		{"role":"system","content":"be brief"},
		{"role":"user","content":"hi"},
		{"role":"assistant","content":""},
		{"role":"user","content":"Привет <b>"}
	], "extra": true}`

	req, err := DecodeConversation(newChatRequest("application/json", body), 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []provider.Message{
		{Role: provider.RoleSystem, Content: "be brief"},
		{Role: provider.RoleUser, Content: "hi"},
		{Role: provider.RoleAssistant, Content: ""},
		{Role: provider.RoleUser, Content: "Привет <b>"},
	}
	if len(req.History) != len(want) {
		t.Fatalf("got %d messages, want %d", len(req.History), len(want))
	}
	for i := range want {
		if req.History[i] != want[i] {
			t.Errorf("history[%d] = %+v, want %+v", i, req.History[i], want[i])
		}
	}
}

func TestDecodeConversation_Errors(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		status      int
		contains    string
	}{
		{"text/plain", "text/plain", `{"history":[{"role":"user","content":"hi"}]}`, 415, "Content-Type"},
		{"no content type", "", `{"history":[{"role":"user","content":"hi"}]}`, 415, "Content-Type"},
		{"broken json", "application/json", `{"history":`, 400, "invalid JSON"},
		{"empty body", "application/json", ``, 400, "invalid JSON"},
		{"trailing data", "application/json", `{"history":[]} {}`, 400, "invalid JSON"},
		{"array body", "application/json", `[{"role":"user","content":"hi"}]`, 400, "JSON object"},
		{"string body", "application/json", `"hello"`, 400, "JSON object"},
		{"missing history", "application/json", `{}`, 400, "history is required"},
		{"null history", "application/json", `{"history":null}`, 400, "history is required"},
		{"history not array", "application/json", `{"history":"hi"}`, 400, "history must be an array"},
		{"history object", "application/json", `{"history":{"role":"user"}}`, 400, "history must be an array"},
		{"empty history", "application/json", `{"history":[]}`, 400, "history must not be empty"},
		{"element not object", "application/json", `{"history":["hi"]}`, 400, "history[0]: must be an object"},
		{"missing role", "application/json", `{"history":[{"content":"hi"}]}`, 400, "history[0]: role is required"},
		{"bad role", "application/json", `{"history":[{"role":"user","content":"a"},{"role":"robot","content":"hi"}]}`, 400, "history[1]: role must be one of"},
		{"role not string", "application/json", `{"history":[{"role":1,"content":"hi"}]}`, 400, "history[0]: role must be a string"},
		{"missing content", "application/json", `{"history":[{"role":"user","content":"a"},{"role":"user","content":"b"},{"role":"user"}]}`, 400, "history[2]: content is required"},
		{"content not string", "application/json", `{"history":[{"role":"user","content":["a"]}]}`, 400, "history[0]: content must be a string"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeConversation(newChatRequest(tt.contentType, tt.body), 1<<20)
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected *RequestError, got %v", err)
			}
			if reqErr.Status != tt.status {
				t.Errorf("status = %d, want %d", reqErr.Status, tt.status)
			}
			if !strings.Contains(reqErr.Message, tt.contains) {
				t.Errorf("message %q does not contain %q", reqErr.Message, tt.contains)
			}
		})
	}
}

func TestDecodeConversation_BodyLimit(t *testing.T) {
	body := `{"history":[{"role":"user","content":"` + strings.Repeat("a", 200) + `"}]}`

	if _, err := DecodeConversation(newChatRequest("application/json", body), int64(len(body))); err != nil {
		t.Fatalf("body at the limit should pass: %v", err)
	}

	_, err := DecodeConversation(newChatRequest("application/json", body), 100)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %v", err)
	}
	if reqErr.Message != "request body too large: limit is 100 bytes" {
		t.Errorf("unexpected message %q", reqErr.Message)
	}
}

func TestDecodeConversation_OversizedValidHistory(t *testing.T) {
	const limit = 1 << 20
	body := `{"history":[{"role":"user","content":"` + strings.Repeat("a", limit) + `"}]}`

	_, err := DecodeConversation(newChatRequest("application/json", body), limit)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %v", err)
	}
	if strings.HasPrefix(reqErr.Message, "invalid JSON") || !strings.Contains(reqErr.Message, "too large") {
		t.Errorf("oversized but valid JSON reported as %q", reqErr.Message)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("я", 60)
	tests := []struct {
		in   string
		want string
	}{
		{"", "(no text)"},
		{"hi", "hi"},
		{strings.Repeat("x", 50), strings.Repeat("x", 50)},
		{long, strings.Repeat("я", 50) + "..."},
	}
	for _, tt := range tests {
		if got := preview(tt.in); got != tt.want {
			t.Errorf("preview(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
