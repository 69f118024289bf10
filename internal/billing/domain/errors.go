package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured    = errors.New("billing_provider_not_configured")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidResponse  = errors.New("billing_response_invalid")
)

// ProviderError is a non-2xx answer from the remote billing API.
type ProviderError struct {
	Operation  string
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "billing_request_failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%d %s)", e.Operation, msg, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s: %s (%d)", e.Operation, msg, e.StatusCode)
}

// IsNotFound reports whether the provider said the resource does not exist.
func IsNotFound(err error) bool {
	var perr *ProviderError
	if !errors.As(err, &perr) {
		return false
	}
	return perr.StatusCode == http.StatusNotFound || perr.Code == "resource_missing"
}

// IsProviderError reports whether err came from the remote API (as opposed to validation or storage).
func IsProviderError(err error) bool {
	var perr *ProviderError
	return errors.As(err, &perr) || errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrNotConfigured)
}
