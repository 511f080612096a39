package client

import (
	"errors"
	"fmt"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrBlocked     = errors.New("provider: request blocked by risk control")
	ErrNotFound    = errors.New("provider: resource not found")
	ErrUnavailable = errors.New("provider: host unreachable or transport failure")
	ErrUpstream    = errors.New("provider: internal error (5xx)")
	ErrBadResponse = errors.New("provider: invalid response format or malformed data")
)

// ProviderError is a rich error type that wraps the sentinel errors with context.
type ProviderError struct {
	Sentinel  error
	Operation string
	Status    int
	Code      int    // provider error code from the response envelope
	Message   string // provider message, if any
	// BypassToken is the one-time token captured from a blocked response,
	// usable for exactly one bypass-variant request.
	BypassToken string
	Err         error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Sentinel
}

// BypassTokenFrom extracts the captured bypass token when err is a blocked
// provider error, or "" otherwise.
func BypassTokenFrom(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) && errors.Is(pe.Sentinel, ErrBlocked) {
		return pe.BypassToken
	}
	return ""
}
