package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net"
)

// Role identifies the sender of a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is a successful provider reply.
type Completion struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Provider sends a message sequence to a completion backend. Implementations
// are safe for concurrent use. A non-nil error is always a *Error.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, messages []Message) (*Completion, error)
}

// Kind classifies a provider failure.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindAuth      Kind = "auth"
	KindQuota     Kind = "quota"
	KindMalformed Kind = "malformed"
	KindUpstream  Kind = "upstream"
	KindCanceled  Kind = "canceled"
)

// Error is the failure half of a provider call.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int // upstream HTTP status, 0 when none was received
	Err        error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or KindUpstream when err is not a
// provider error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUpstream
}

// kindForStatus maps an upstream HTTP status to a failure kind.
func kindForStatus(status int) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 402 || status == 429:
		return KindQuota
	default:
		return KindUpstream
	}
}

// kindForTransport classifies errors that carry no HTTP status.
func kindForTransport(err error) Kind {
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindMalformed
	}
	return KindUpstream
}
