package tracing

import (
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsCustomerFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/checkout"),
		attribute.String("customer_email", "jane@example.com"),
		attribute.String("Authorization", "Basic xyz"),
	)
	if len(attrs) != 1 || attrs[0].Key != "http.route" {
		t.Fatalf("expected only http.route, got %v", attrs)
	}
}

func TestSafeErrorHidesMessage(t *testing.T) {
	err := SafeError(fmt.Errorf("lookup jane@example.com: %w", errors.New("boom")))
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() == "" || err.Error() == "lookup jane@example.com: boom" {
		t.Fatalf("expected message to be stripped, got %q", err.Error())
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
