package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	checkoutdomain "github.com/smallbiznis/cookiejar/internal/checkout/domain"
	"github.com/smallbiznis/cookiejar/internal/config"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	"github.com/smallbiznis/cookiejar/internal/providers/email"
	"github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	subscriptiondomain "github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"github.com/smallbiznis/cookiejar/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errOrderExists = errors.New("order_exists")

// orderLine is a checkout line resolved against the local catalog.
type orderLine struct {
	ProductID int64
	Name      string
	Quantity  int
	UnitPrice decimal.NullDecimal
}

func (s *Service) onCheckoutCompleted(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	co := event.Checkout
	if co == nil {
		return "", domain.ErrInvalidEvent
	}
	if co.PaymentIntentID == "" {
		s.log.Warn("checkout completed without payment intent",
			zap.String("session_id", co.SessionID),
			zap.String("payment_status", co.PaymentStatus),
		)
		return domain.OutcomeIgnored, nil
	}

	existing, err := s.orders.FindByPaymentIntent(ctx, s.db, co.PaymentIntentID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return domain.OutcomeNoop, nil
	}

	lines, err := s.checkoutLines(ctx, co)
	if err != nil {
		return "", err
	}

	now := s.clock.Now().UTC()
	order := &orderdomain.Order{
		ID:                    s.genID.Generate().Int64(),
		CustomerName:          firstNonEmpty(co.CustomerName, co.Metadata[checkoutdomain.MetadataCustomerName]),
		CustomerEmail:         strings.ToLower(strings.TrimSpace(co.CustomerEmail)),
		TotalPrice:            billingdomain.FromMinorUnits(co.AmountTotal),
		RemotePaymentIntentID: strPtr(co.PaymentIntentID),
		RemoteCustomerID:      strPtr(firstNonEmpty(co.CustomerID, co.Metadata[checkoutdomain.MetadataCustomerID])),
		RemoteSessionID:       strPtr(co.SessionID),
		Status:                orderdomain.StatusPaid,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent delivery may have won since the first lookup.
		found, err := s.orders.FindByPaymentIntent(ctx, tx, co.PaymentIntentID)
		if err != nil {
			return err
		}
		if found != nil {
			return errOrderExists
		}
		if err := s.orders.Insert(ctx, tx, order); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errOrderExists
			}
			return err
		}

		items := make([]orderdomain.Item, 0, len(lines))
		for _, l := range lines {
			items = append(items, orderdomain.Item{
				OrderID:   order.ID,
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
			})
		}
		if err := s.orders.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		if order.RemoteCustomerID == nil {
			return nil
		}
		resolver := s.resolver.WithTx(tx)
		if err := resolver.EnsureFromRemote(ctx, *order.RemoteCustomerID, order.CustomerEmail, order.CustomerName); err != nil {
			return err
		}
		return resolver.RecordOrder(ctx, *order.RemoteCustomerID, order.TotalPrice, now)
	})
	if errors.Is(err, errOrderExists) {
		return domain.OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}

	s.log.Info("order created from checkout",
		zap.Int64("order_id", order.ID),
		zap.String("session_id", co.SessionID),
		zap.Int("lines", len(lines)),
	)
	s.transitioner.Publish(ctx, order, "")
	s.sendConfirmation(ctx, order, lines)
	return domain.OutcomeApplied, nil
}

// checkoutLines prefers the cart stored in session metadata and falls back to
// the provider's line items when the cart was too large to store.
func (s *Service) checkoutLines(ctx context.Context, co *billingdomain.CheckoutCompleted) ([]orderLine, error) {
	var lines []orderLine
	items, err := checkoutdomain.DecodeItems(co.Metadata[checkoutdomain.MetadataItems])
	if err != nil {
		s.log.Warn("checkout items metadata unreadable", zap.String("session_id", co.SessionID), zap.Error(err))
		items = nil
	}
	if len(items) > 0 {
		for _, item := range items {
			line := orderLine{ProductID: item.ID, Name: item.Name, Quantity: item.Quantity}
			if price, err := decimal.NewFromString(item.Price); err == nil {
				line.UnitPrice = decimal.NewNullDecimal(price)
			}
			lines = append(lines, line)
		}
	} else if co.SessionID != "" {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		remote, err := s.provider.ListCheckoutLineItems(callCtx, co.SessionID)
		if err != nil {
			return nil, err
		}
		for _, item := range remote {
			id, err := strconv.ParseInt(item.PriceMetadata["product_id"], 10, 64)
			if err != nil {
				continue
			}
			line := orderLine{ProductID: id, Quantity: int(item.Quantity)}
			if item.Quantity > 0 {
				line.UnitPrice = decimal.NewNullDecimal(billingdomain.FromMinorUnits(item.AmountTotal / item.Quantity))
			}
			lines = append(lines, line)
		}
	}
	return s.resolveLines(ctx, lines)
}

// resolveLines merges repeated products and drops lines whose product is
// unknown locally.
func (s *Service) resolveLines(ctx context.Context, lines []orderLine) ([]orderLine, error) {
	merged := make([]orderLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 || l.Quantity < 1 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
		ids = append(ids, l.ProductID)
	}
	if len(merged) == 0 {
		return nil, nil
	}

	products, err := s.products.FindByIDs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	known := make(map[int64]string, len(products))
	for _, p := range products {
		known[p.ID] = p.Name
	}

	out := merged[:0]
	for _, l := range merged {
		name, ok := known[l.ProductID]
		if !ok {
			s.log.Warn("checkout line for unknown product skipped", zap.Int64("product_id", l.ProductID))
			continue
		}
		if l.Name == "" {
			l.Name = name
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) sendConfirmation(ctx context.Context, order *orderdomain.Order, lines []orderLine) {
	if order.CustomerEmail == "" {
		return
	}
	type emailLine struct {
		Name     string
		Quantity int
		Price    string
	}
	items := make([]emailLine, 0, len(lines))
	for _, l := range lines {
		price := ""
		if l.UnitPrice.Valid {
			price = l.UnitPrice.Decimal.StringFixed(2)
		}
		items = append(items, emailLine{Name: l.Name, Quantity: l.Quantity, Price: price})
	}
	err := s.email.SendTemplate(ctx, []string{order.CustomerEmail}, email.TemplateOrderConfirmation, map[string]any{
		"customer_name": order.CustomerName,
		"order_id":      snowflake.ID(order.ID).String(),
		"total":         order.TotalPrice.StringFixed(2),
		"items":         items,
	})
	if err != nil {
		s.log.Warn("send order confirmation failed", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (s *Service) onPaymentSucceeded(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	if event.Payment == nil {
		return "", domain.ErrInvalidEvent
	}
	onlyPending := func(st orderdomain.Status) bool { return st == orderdomain.StatusPending }
	return s.advance(ctx, event.Payment.PaymentIntentID, orderdomain.StatusPaid, onlyPending, nil)
}

// onPaymentFailed cancels an order still waiting for payment. Checkout orders
// are created already paid, so this only matters for pending orders; a failed
// retry arriving after a successful charge must not cancel a paid order.
func (s *Service) onPaymentFailed(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	if event.Payment == nil {
		return "", domain.ErrInvalidEvent
	}
	onlyPending := func(st orderdomain.Status) bool { return st == orderdomain.StatusPending }
	return s.advance(ctx, event.Payment.PaymentIntentID, orderdomain.StatusCanceled, onlyPending, nil)
}

func (s *Service) onChargeRefunded(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	refund := event.Refund
	if refund == nil {
		return "", domain.ErrInvalidEvent
	}
	return s.refund(ctx, refund.PaymentIntentID, billingdomain.FromMinorUnits(refund.AmountRefunded))
}

func (s *Service) onDisputeCreated(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	if event.Dispute == nil {
		return "", domain.ErrInvalidEvent
	}
	return s.advance(ctx, event.Dispute.PaymentIntentID, orderdomain.StatusDisputed, allowedTo(orderdomain.StatusDisputed), nil)
}

func (s *Service) onDisputeClosed(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	dispute := event.Dispute
	if dispute == nil {
		return "", domain.ErrInvalidEvent
	}

	switch dispute.Status {
	case billingdomain.DisputeStatusWon:
		if s.store.Get().Dispute.WonPolicy != config.DisputeWonRevertToPaid {
			s.log.Info("dispute won, order kept disputed", zap.String("dispute_id", dispute.DisputeID))
			return domain.OutcomeNoop, nil
		}
		onlyDisputed := func(st orderdomain.Status) bool { return st == orderdomain.StatusDisputed }
		return s.advance(ctx, dispute.PaymentIntentID, orderdomain.StatusPaid, onlyDisputed, nil)
	case billingdomain.DisputeStatusLost:
		return s.refund(ctx, dispute.PaymentIntentID, billingdomain.FromMinorUnits(dispute.Amount))
	default:
		s.log.Info("dispute closed with unhandled status",
			zap.String("dispute_id", dispute.DisputeID),
			zap.String("status", dispute.Status),
		)
		return domain.OutcomeIgnored, nil
	}
}

func (s *Service) onSubscription(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	sub := event.Subscription
	if sub == nil {
		return "", domain.ErrInvalidEvent
	}
	_, err := s.mirror.Apply(ctx, nil, billingdomain.RemoteSubscription{
		ID:               sub.SubscriptionID,
		CustomerID:       sub.CustomerID,
		PriceID:          sub.PriceID,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		CanceledAt:       sub.CanceledAt,
		Metadata:         sub.Metadata,
	})
	if errors.Is(err, subscriptiondomain.ErrInvalidSubscription) {
		s.log.Warn("subscription event missing ids", zap.String("event_id", event.ID))
		return domain.OutcomeIgnored, nil
	}
	if err != nil {
		return "", err
	}
	return domain.OutcomeApplied, nil
}

func (s *Service) onInvoice(ctx context.Context, event *billingdomain.Event) (domain.Outcome, error) {
	inv := event.Invoice
	if inv == nil {
		return "", domain.ErrInvalidEvent
	}
	s.log.Info("invoice event",
		zap.String("kind", string(event.Kind)),
		zap.String("invoice_id", inv.InvoiceID),
		zap.String("subscription_id", inv.SubscriptionID),
		zap.Int64("amount_paid", inv.AmountPaid),
		zap.Int64("amount_due", inv.AmountDue),
	)
	return domain.OutcomeIgnored, nil
}

// advance moves the order paid with paymentIntentID to status to when guard
// accepts its current status. after runs in the same transaction.
func (s *Service) advance(
	ctx context.Context,
	paymentIntentID string,
	to orderdomain.Status,
	guard func(orderdomain.Status) bool,
	after func(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error,
) (domain.Outcome, error) {
	if paymentIntentID == "" {
		return domain.OutcomeUnmatched, nil
	}
	order, err := s.orders.FindByPaymentIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return "", err
	}
	if order == nil {
		s.log.Warn("no order for payment intent", zap.String("payment_intent_id", paymentIntentID))
		return domain.OutcomeUnmatched, nil
	}
	if order.Status == to || !guard(order.Status) {
		s.log.Debug("order not moved",
			zap.Int64("order_id", order.ID),
			zap.String("status", string(order.Status)),
			zap.String("target", string(to)),
		)
		return domain.OutcomeNoop, nil
	}

	previous := order.Status
	var moved bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.transitioner.Transition(ctx, tx, order, to)
		if err != nil || !ok {
			return err
		}
		moved = true
		if after != nil {
			return after(ctx, tx, order)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !moved {
		return domain.OutcomeNoop, nil
	}
	s.transitioner.Publish(ctx, order, previous)
	return domain.OutcomeApplied, nil
}

// refund moves the order to refunded and books refundedTotal against it.
// refundedTotal is cumulative, so a later partial refund on an order that is
// already refunded still books the part not seen before.
func (s *Service) refund(ctx context.Context, paymentIntentID string, refundedTotal decimal.Decimal) (domain.Outcome, error) {
	book := func(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
		_, err := s.bookRefund(ctx, tx, order, refundedTotal)
		return err
	}
	outcome, err := s.advance(ctx, paymentIntentID, orderdomain.StatusRefunded, allowedTo(orderdomain.StatusRefunded), book)
	if err != nil || outcome != domain.OutcomeNoop {
		return outcome, err
	}

	order, err := s.orders.FindByPaymentIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return "", err
	}
	if order == nil || order.Status != orderdomain.StatusRefunded {
		return domain.OutcomeNoop, nil
	}
	var booked bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		booked, err = s.bookRefund(ctx, tx, order, refundedTotal)
		return err
	})
	if err != nil {
		return "", err
	}
	if !booked {
		return domain.OutcomeNoop, nil
	}
	s.log.Info("additional refund booked",
		zap.Int64("order_id", order.ID),
		zap.String("refunded_amount", order.RefundedAmount.StringFixed(2)),
	)
	return domain.OutcomeApplied, nil
}

// bookRefund raises the order's refunded amount to refundedTotal and takes the
// difference off the customer's lifetime spend. It reports false when the
// total holds nothing new or another delivery booked it first.
func (s *Service) bookRefund(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, refundedTotal decimal.Decimal) (bool, error) {
	refundedTotal = refundedTotal.Round(2)
	delta := refundedTotal.Sub(order.RefundedAmount)
	if !delta.IsPositive() {
		return false, nil
	}
	ok, err := s.orders.SetRefundedAmount(ctx, tx, order.ID, order.RefundedAmount, refundedTotal, s.clock.Now().UTC())
	if err != nil || !ok {
		return false, err
	}
	order.RefundedAmount = refundedTotal
	if order.RemoteCustomerID == nil {
		return true, nil
	}
	return true, s.resolver.WithTx(tx).RecordRefund(ctx, *order.RemoteCustomerID, delta)
}

func allowedTo(to orderdomain.Status) func(orderdomain.Status) bool {
	return func(from orderdomain.Status) bool { return orderdomain.CanTransition(from, to) }
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
