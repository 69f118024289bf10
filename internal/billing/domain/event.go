package domain

import "time"

// EventKind is the normalized type of a provider webhook event.
type EventKind string

const (
	EventCheckoutCompleted   EventKind = "checkout.completed"
	EventPaymentSucceeded    EventKind = "payment.succeeded"
	EventPaymentFailed       EventKind = "payment.failed"
	EventChargeRefunded      EventKind = "charge.refunded"
	EventDisputeCreated      EventKind = "dispute.created"
	EventDisputeClosed       EventKind = "dispute.closed"
	EventSubscriptionCreated EventKind = "subscription.created"
	EventSubscriptionUpdated EventKind = "subscription.updated"
	EventSubscriptionDeleted EventKind = "subscription.deleted"
	EventInvoicePaid         EventKind = "invoice.paid"
	EventInvoiceFailed       EventKind = "invoice.payment_failed"
	EventUnknown             EventKind = "unknown"
)

// Event is a parsed webhook delivery. Exactly one payload field is set,
// chosen by Kind; EventUnknown carries none.
type Event struct {
	ID         string
	Provider   string
	Kind       EventKind
	RawType    string
	OccurredAt time.Time
	Payload    []byte

	Checkout     *CheckoutCompleted
	Payment      *PaymentIntentEvent
	Refund       *ChargeRefunded
	Dispute      *DisputeEvent
	Subscription *SubscriptionEvent
	Invoice      *InvoiceEvent
}

type CheckoutCompleted struct {
	SessionID       string
	PaymentIntentID string
	PaymentStatus   string
	CustomerID      string
	CustomerEmail   string
	CustomerName    string
	AmountTotal     int64
	Currency        string
	Metadata        map[string]string
}

type PaymentIntentEvent struct {
	PaymentIntentID string
	CustomerID      string
	Amount          int64
	Status          string
	FailureMessage  string
}

type ChargeRefunded struct {
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	AmountRefunded  int64
	FullyRefunded   bool
}

// Dispute statuses reported on close.
const (
	DisputeStatusWon  = "won"
	DisputeStatusLost = "lost"
)

type DisputeEvent struct {
	DisputeID       string
	ChargeID        string
	PaymentIntentID string
	Amount          int64
	Reason          string
	Status          string
}

type SubscriptionEvent struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
	Metadata         map[string]string
}

type InvoiceEvent struct {
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	AmountPaid     int64
	AmountDue      int64
}
