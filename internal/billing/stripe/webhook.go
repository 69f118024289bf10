package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/cookiejar/internal/billing/domain"
)

// DefaultTolerance bounds how old a signed delivery may be.
const DefaultTolerance = 5 * time.Minute

// WebhookVerifier checks Stripe-Signature headers and decodes events.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration, now func() time.Time) *WebhookVerifier {
	if now == nil {
		now = time.Now
	}
	return &WebhookVerifier{
		secret:    strings.TrimSpace(secret),
		tolerance: tolerance,
		now:       now,
	}
}

func (v *WebhookVerifier) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if v.secret == "" {
		return domain.ErrNotConfigured
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	ts, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	if v.tolerance > 0 {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return domain.ErrInvalidSignature
		}
		if v.now().Sub(time.Unix(unix, 0)).Abs() > v.tolerance {
			return domain.ErrInvalidSignature
		}
	}

	expected := sign(v.secret, ts, payload)
	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return domain.ErrInvalidSignature
}

// SignatureHeader builds a valid Stripe-Signature header value for payload.
func SignatureHeader(secret string, payload []byte, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, sign(secret, ts, payload))
}

func sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type eventPaymentIntent struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	AmountReceived   int64             `json:"amount_received"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type eventCharge struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunded       bool   `json:"refunded"`
	PaymentIntent  string `json:"payment_intent"`
}

type eventDispute struct {
	ID            string `json:"id"`
	Charge        string `json:"charge"`
	PaymentIntent string `json:"payment_intent"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
}

type eventInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
}

var eventKinds = map[string]domain.EventKind{
	"checkout.session.completed":    domain.EventCheckoutCompleted,
	"payment_intent.succeeded":      domain.EventPaymentSucceeded,
	"payment_intent.payment_failed": domain.EventPaymentFailed,
	"charge.refunded":               domain.EventChargeRefunded,
	"charge.dispute.created":        domain.EventDisputeCreated,
	"charge.dispute.closed":         domain.EventDisputeClosed,
	"customer.subscription.created": domain.EventSubscriptionCreated,
	"customer.subscription.updated": domain.EventSubscriptionUpdated,
	"customer.subscription.deleted": domain.EventSubscriptionDeleted,
	"invoice.payment_succeeded":     domain.EventInvoicePaid,
	"invoice.payment_failed":        domain.EventInvoiceFailed,
}

func (v *WebhookVerifier) Parse(ctx context.Context, payload []byte) (*domain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	rawType := strings.TrimSpace(event.Type)
	out := &domain.Event{
		ID:         event.ID,
		Provider:   providerName,
		RawType:    rawType,
		OccurredAt: timestamp(event.Created),
		Payload:    payload,
	}
	kind, ok := eventKinds[rawType]
	if !ok {
		out.Kind = domain.EventUnknown
		return out, nil
	}
	out.Kind = kind

	obj := event.Data.Object
	var err error
	switch kind {
	case domain.EventCheckoutCompleted:
		err = parseCheckout(obj, out)
	case domain.EventPaymentSucceeded, domain.EventPaymentFailed:
		err = parsePaymentIntent(obj, out)
	case domain.EventChargeRefunded:
		err = parseCharge(obj, out)
	case domain.EventDisputeCreated, domain.EventDisputeClosed:
		err = parseDispute(obj, out)
	case domain.EventSubscriptionCreated, domain.EventSubscriptionUpdated, domain.EventSubscriptionDeleted:
		err = parseSubscription(obj, out)
	case domain.EventInvoicePaid, domain.EventInvoiceFailed:
		err = parseInvoice(obj, out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseCheckout(obj json.RawMessage, out *domain.Event) error {
	var session stripeCheckoutSession
	if err := json.Unmarshal(obj, &session); err != nil {
		return domain.ErrInvalidPayload
	}
	if session.ID == "" {
		return domain.ErrInvalidEvent
	}
	remote := session.toDomain()
	out.Checkout = &domain.CheckoutCompleted{
		SessionID:       remote.ID,
		PaymentIntentID: remote.PaymentIntentID,
		PaymentStatus:   remote.PaymentStatus,
		CustomerID:      remote.CustomerID,
		CustomerEmail:   remote.CustomerEmail,
		CustomerName:    remote.CustomerName,
		AmountTotal:     remote.AmountTotal,
		Currency:        remote.Currency,
		Metadata:        remote.Metadata,
	}
	return nil
}

func parsePaymentIntent(obj json.RawMessage, out *domain.Event) error {
	var intent eventPaymentIntent
	if err := json.Unmarshal(obj, &intent); err != nil {
		return domain.ErrInvalidPayload
	}
	if intent.ID == "" {
		return domain.ErrInvalidEvent
	}
	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	out.Payment = &domain.PaymentIntentEvent{
		PaymentIntentID: intent.ID,
		CustomerID:      intent.Customer,
		Amount:          amount,
		Status:          intent.Status,
	}
	if intent.LastPaymentError != nil {
		out.Payment.FailureMessage = intent.LastPaymentError.Message
	}
	return nil
}

func parseCharge(obj json.RawMessage, out *domain.Event) error {
	var charge eventCharge
	if err := json.Unmarshal(obj, &charge); err != nil {
		return domain.ErrInvalidPayload
	}
	if charge.ID == "" {
		return domain.ErrInvalidEvent
	}
	out.Refund = &domain.ChargeRefunded{
		ChargeID:        charge.ID,
		PaymentIntentID: charge.PaymentIntent,
		Amount:          charge.Amount,
		AmountRefunded:  charge.AmountRefunded,
		FullyRefunded:   charge.Refunded,
	}
	return nil
}

func parseDispute(obj json.RawMessage, out *domain.Event) error {
	var dispute eventDispute
	if err := json.Unmarshal(obj, &dispute); err != nil {
		return domain.ErrInvalidPayload
	}
	if dispute.ID == "" {
		return domain.ErrInvalidEvent
	}
	out.Dispute = &domain.DisputeEvent{
		DisputeID:       dispute.ID,
		ChargeID:        dispute.Charge,
		PaymentIntentID: dispute.PaymentIntent,
		Amount:          dispute.Amount,
		Reason:          dispute.Reason,
		Status:          dispute.Status,
	}
	return nil
}

func parseSubscription(obj json.RawMessage, out *domain.Event) error {
	var sub stripeSubscription
	if err := json.Unmarshal(obj, &sub); err != nil {
		return domain.ErrInvalidPayload
	}
	if sub.ID == "" {
		return domain.ErrInvalidEvent
	}
	remote := sub.toDomain()
	out.Subscription = &domain.SubscriptionEvent{
		SubscriptionID:   remote.ID,
		CustomerID:       remote.CustomerID,
		PriceID:          remote.PriceID,
		Status:           remote.Status,
		CurrentPeriodEnd: remote.CurrentPeriodEnd,
		CanceledAt:       remote.CanceledAt,
		Metadata:         remote.Metadata,
	}
	return nil
}

func parseInvoice(obj json.RawMessage, out *domain.Event) error {
	var invoice eventInvoice
	if err := json.Unmarshal(obj, &invoice); err != nil {
		return domain.ErrInvalidPayload
	}
	if invoice.ID == "" {
		return domain.ErrInvalidEvent
	}
	out.Invoice = &domain.InvoiceEvent{
		InvoiceID:      invoice.ID,
		CustomerID:     invoice.Customer,
		SubscriptionID: invoice.Subscription,
		AmountPaid:     invoice.AmountPaid,
		AmountDue:      invoice.AmountDue,
	}
	return nil
}

func parseStripeSignature(header string) (string, []string, error) {
	var ts string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "t":
			ts = strings.TrimSpace(value)
		case "v1":
			signatures = append(signatures, strings.TrimSpace(value))
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(value int64) time.Time {
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

var _ domain.WebhookVerifier = (*WebhookVerifier)(nil)
