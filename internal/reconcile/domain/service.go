package domain

import (
	"context"
	"errors"
	"net/http"

	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
)

type Service interface {
	// Ingest verifies, records and applies one webhook delivery.
	Ingest(ctx context.Context, payload []byte, headers http.Header) (Outcome, error)
	// Apply dispatches an already parsed event.
	Apply(ctx context.Context, event *billingdomain.Event) (Outcome, error)
}

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrEmptyPayload = errors.New("empty_payload")
)
