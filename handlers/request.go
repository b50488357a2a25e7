package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/goverture/chatrelay/provider"
)

// RequestError is a client error detected before the provider is called.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func contentTypeError() *RequestError {
	return &RequestError{Status: http.StatusUnsupportedMediaType, Message: "Content-Type must be application/json"}
}

func malformed(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// ConversationRequest is a validated /chat request body.
type ConversationRequest struct {
	History []provider.Message
}

// isJSONContentType accepts application/json and application/*+json, with
// any parameters.
func isJSONContentType(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	if mediaType == "application/json" {
		return true
	}
	return strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")
}

// DecodeConversation reads and validates a /chat request. The returned error
// is always a *RequestError.
func DecodeConversation(r *http.Request, maxBytes int64) (*ConversationRequest, error) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		return nil, contentTypeError()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	if err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, malformed("request body too large: limit is %d bytes", maxBytes)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, malformed("invalid JSON: empty request body")
		}
		return nil, malformed("invalid JSON: %v", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("invalid JSON: unexpected data after top-level value")
	}

	if !isKind(raw, '{') {
		return nil, malformed("request body must be a JSON object")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, malformed("invalid JSON: %v", err)
	}

	history, err := decodeHistory(fields["history"])
	if err != nil {
		return nil, err
	}
	return &ConversationRequest{History: history}, nil
}

func decodeHistory(raw json.RawMessage) ([]provider.Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, malformed("history is required and must be a non-empty array of messages")
	}
	if !isKind(raw, '[') {
		return nil, malformed("history must be an array of messages")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, malformed("history must be an array of messages: %v", err)
	}
	if len(items) == 0 {
		return nil, malformed("history must not be empty")
	}

	history := make([]provider.Message, 0, len(items))
	for i, item := range items {
		msg, err := decodeMessage(item)
		if err != nil {
			return nil, malformed("history[%d]: %s", i, err)
		}
		history = append(history, msg)
	}
	return history, nil
}

func decodeMessage(raw json.RawMessage) (provider.Message, error) {
	if !isKind(raw, '{') {
		return provider.Message{}, errors.New("must be an object with role and content")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return provider.Message{}, err
	}

	role, err := stringField(fields, "role")
	if err != nil {
		return provider.Message{}, err
	}
	if !provider.Role(role).Valid() {
		return provider.Message{}, fmt.Errorf("role must be one of system, user, assistant, got %q", role)
	}
	content, err := stringField(fields, "content")
	if err != nil {
		return provider.Message{}, err
	}
	return provider.Message{Role: provider.Role(role), Content: content}, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", fmt.Errorf("%s is required", name)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return s, nil
}

// isKind reports whether the JSON value in raw starts with delim.
func isKind(raw json.RawMessage, delim byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == delim
}
