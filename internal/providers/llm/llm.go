package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// GenerateRequest is the uniform prompt contract every backend accepts.
type GenerateRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
	// JSONOutput asks the backend for a machine-parseable JSON response
	// where the vendor API supports enforcing it.
	JSONOutput bool
}

// Usage is the token accounting a backend reports for one call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// GenerateResult is the normalized output of one backend call.
type GenerateResult struct {
	Text  string
	Model string
	Usage Usage
}

// Client is the contract all LLM backends implement. The router treats every
// vendor uniformly through it.
type Client interface {
	// Name identifies the backend in errors and log lines. Routing state
	// (breaker keys, costs, metrics) is keyed by the catalog name the
	// client is registered under.
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// ErrorKind classifies backend failures for the retry predicate.
type ErrorKind string

const (
	// ErrKindTransient covers timeouts, resets and 5xx responses.
	ErrKindTransient ErrorKind = "transient"
	// ErrKindRateLimited marks provider throttling responses.
	ErrKindRateLimited ErrorKind = "rate_limited"
	// ErrKindAuth marks credential failures. Never retried.
	ErrKindAuth ErrorKind = "auth"
	// ErrKindBadRequest marks malformed or rejected requests. Never retried.
	ErrKindBadRequest ErrorKind = "bad_request"
)

// Error is a typed backend failure.
type Error struct {
	Backend string
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Backend, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Message)
}

// Retryable reports whether err is worth another attempt against the same
// backend. Auth and bad-request failures are fatal for the phase.
func Retryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind == ErrKindTransient || perr.Kind == ErrKindRateLimited
	}
	// Transport-level failures without a typed wrapper (dial errors,
	// connection resets) are treated as transient.
	return true
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrKindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrKindAuth
	case status >= http.StatusInternalServerError:
		return ErrKindTransient
	default:
		return ErrKindBadRequest
	}
}

func transportError(backend string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Error{Backend: backend, Kind: ErrKindTransient, Message: err.Error()}
}
