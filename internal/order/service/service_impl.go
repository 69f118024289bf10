package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	"github.com/smallbiznis/cookiejar/internal/clock"
	"github.com/smallbiznis/cookiejar/internal/config"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	"github.com/smallbiznis/cookiejar/internal/order/domain"
	"github.com/smallbiznis/cookiejar/internal/providers/events"
	"github.com/smallbiznis/cookiejar/internal/providers/pdf"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	Provider  billingdomain.Provider
	PDF       pdf.Provider
	Metrics   *metrics.Metrics
	Publisher events.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      domain.Repository
	provider  billingdomain.Provider
	pdf       pdf.Provider
	metrics   *metrics.Metrics
	publisher events.Publisher
	storeName string
	baseURL   string
	timeout   time.Duration
}

func New(p Params) *Service {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	storeName := p.Config.AppName
	if storeName == "" || storeName == "cookiejar" {
		storeName = "Cookie Jar"
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		provider:  p.Provider,
		pdf:       p.PDF,
		metrics:   p.Metrics,
		publisher: publisher,
		storeName: storeName,
		baseURL:   p.Config.BaseURL,
		timeout:   timeout,
	}
}

func ProvideService(s *Service) domain.Service           { return s }
func ProvideTransitioner(s *Service) domain.Transitioner { return s }

func (s *Service) List(ctx context.Context, req domain.ListOrderRequest) (domain.ListOrderResponse, error) {
	filter := domain.ListFilter{
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if status := strings.ToLower(strings.TrimSpace(req.Status)); status != "" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return domain.ListOrderResponse{}, domain.ErrInvalidStatus
		}
	}

	pageSize := pagination.Size(req.PageSize)
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListOrderResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(order *domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: snowflake.ID(order.ID).String()}
	})

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	lines, err := s.repo.ListItems(ctx, s.db, ids)
	if err != nil {
		return domain.ListOrderResponse{}, err
	}
	byOrder := make(map[int64][]domain.ItemDetail, len(ids))
	for _, line := range lines {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}

	orders := make([]domain.Response, 0, len(items))
	for _, item := range items {
		orders = append(orders, toResponse(item, byOrder[item.ID]))
	}

	return domain.ListOrderResponse{Orders: orders, PageInfo: pageInfo}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, order)
}

func (s *Service) Ship(ctx context.Context, id string) (*domain.Response, error) {
	return s.advance(ctx, id, domain.StatusShipped)
}

func (s *Service) Deliver(ctx context.Context, id string) (*domain.Response, error) {
	return s.advance(ctx, id, domain.StatusDelivered)
}

func (s *Service) Cancel(ctx context.Context, id string) (*domain.Response, error) {
	return s.advance(ctx, id, domain.StatusCanceled)
}

func (s *Service) advance(ctx context.Context, id string, to domain.Status) (*domain.Response, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := order.Status

	changed, err := s.Transition(ctx, nil, order, to)
	if err != nil {
		return nil, err
	}
	if changed {
		s.Publish(ctx, order, previous)
	}
	return s.respond(ctx, order)
}

// Transition is the single write path for order status.
func (s *Service) Transition(ctx context.Context, tx *gorm.DB, order *domain.Order, to domain.Status) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if order.Status == to {
		return false, nil
	}
	if !domain.CanTransition(order.Status, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, to)
	}

	now := s.clock.Now().UTC()
	ok, err := s.repo.CompareAndSetStatus(ctx, tx, order.ID, order.Status, to, now)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, domain.ErrConflict
	}

	s.metrics.RecordOrderTransition(ctx, string(order.Status), string(to))
	s.log.Info("order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(order.Status)),
		zap.String("to", string(to)),
	)
	order.Status = to
	order.UpdatedAt = now
	return true, nil
}

// Publish emits an order event; failures are logged and never returned.
// An empty previous status marks a newly created order.
func (s *Service) Publish(ctx context.Context, order *domain.Order, previous domain.Status) {
	eventType := "order." + string(order.Status)
	if previous == "" {
		eventType = "order.created"
	}
	event := events.OrderEvent{
		Type:           eventType,
		OrderID:        snowflake.ID(order.ID).String(),
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		TotalPrice:     order.TotalPrice.StringFixed(2),
		CustomerEmail:  order.CustomerEmail,
		OccurredAt:     s.clock.Now().UTC(),
	}
	if order.RemotePaymentIntentID != nil {
		event.RemotePaymentIntentID = *order.RemotePaymentIntentID
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish order event failed",
			zap.String("type", eventType),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}
}

func (s *Service) Refund(ctx context.Context, id string, req domain.RefundRequest) (*domain.RefundResponse, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.RemotePaymentIntentID == nil || *order.RemotePaymentIntentID == "" {
		return nil, domain.ErrNotPaid
	}
	if !domain.CanTransition(order.Status, domain.StatusRefunded) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, domain.StatusRefunded)
	}

	reason := strings.ToLower(strings.TrimSpace(req.Reason))
	switch reason {
	case "", billingdomain.RefundReasonDuplicate, billingdomain.RefundReasonFraudulent, billingdomain.RefundReasonRequestedByCustomer:
	default:
		return nil, domain.ErrInvalidReason
	}

	in := billingdomain.RefundInput{
		PaymentIntentID: *order.RemotePaymentIntentID,
		Reason:          reason,
	}
	keyAmount := "full"
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil || !amount.IsPositive() || amount.GreaterThan(order.TotalPrice) {
			return nil, domain.ErrInvalidAmount
		}
		cents := billingdomain.ToMinorUnits(amount)
		if cents <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		in.Amount = &cents
		keyAmount = fmt.Sprintf("%d", cents)
	}
	in.IdempotencyKey = fmt.Sprintf("refund:%d:%s", order.ID, keyAmount)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	refund, err := s.provider.CreateRefund(callCtx, in)
	if err != nil {
		s.log.Warn("refund failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	s.log.Info("refund requested",
		zap.Int64("order_id", order.ID),
		zap.String("refund_id", refund.ID),
		zap.Int64("amount", refund.Amount),
		zap.String("reason", reason),
	)

	return &domain.RefundResponse{
		RefundID:        refund.ID,
		OrderID:         snowflake.ID(order.ID).String(),
		PaymentIntentID: refund.PaymentIntentID,
		Amount:          billingdomain.FromMinorUnits(refund.Amount).StringFixed(2),
		Status:          refund.Status,
	}, nil
}

// Evidence fields accepted by the provider's dispute API.
var evidenceFields = map[string]bool{
	"customer_name":                  true,
	"customer_email_address":         true,
	"product_description":            true,
	"shipping_address":               true,
	"shipping_carrier":               true,
	"shipping_date":                  true,
	"shipping_tracking_number":       true,
	"uncategorized_text":             true,
	"refund_policy_disclosure":       true,
	"refund_refusal_explanation":     true,
	"cancellation_policy_disclosure": true,
	"service_date":                   true,
	"access_activity_log":            true,
	"customer_communication":         true,
	"duplicate_charge_explanation":   true,
}

func (s *Service) SubmitDisputeEvidence(ctx context.Context, disputeID string, req domain.DisputeEvidenceRequest) (*domain.DisputeResponse, error) {
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return nil, domain.ErrInvalidDispute
	}
	if len(req.Evidence) == 0 && !req.Submit {
		return nil, domain.ErrInvalidEvidence
	}
	evidence := make(map[string]string, len(req.Evidence))
	for key, value := range req.Evidence {
		key = strings.ToLower(strings.TrimSpace(key))
		if !evidenceFields[key] {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEvidence, key)
		}
		evidence[key] = value
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	dispute, err := s.provider.UpdateDispute(callCtx, disputeID, billingdomain.DisputeEvidenceInput{
		Evidence: evidence,
		Submit:   req.Submit,
	})
	if err != nil {
		if billingdomain.IsNotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	s.log.Info("dispute evidence updated",
		zap.String("dispute_id", dispute.ID),
		zap.Int("fields", len(evidence)),
		zap.Bool("submitted", req.Submit),
	)

	return &domain.DisputeResponse{
		ID:     dispute.ID,
		Status: dispute.Status,
		Amount: billingdomain.FromMinorUnits(dispute.Amount).StringFixed(2),
		Reason: dispute.Reason,
	}, nil
}

func (s *Service) Receipt(ctx context.Context, id string) ([]byte, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListItems(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}

	data := pdf.ReceiptData{
		StoreName:     s.storeName,
		StoreURL:      s.baseURL,
		OrderNumber:   snowflake.ID(order.ID).String(),
		OrderDate:     order.CreatedAt.UTC().Format("January 2, 2006"),
		Status:        string(order.Status),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Total:         order.TotalPrice.StringFixed(2),
	}
	if order.RemotePaymentIntentID != nil {
		data.PaymentRef = *order.RemotePaymentIntentID
	}
	for _, line := range lines {
		price := line.Price()
		data.Items = append(data.Items, pdf.ReceiptItem{
			Description: line.ProductName,
			Qty:         line.Quantity,
			UnitPrice:   price.StringFixed(2),
			Amount:      price.Mul(decimal.NewFromInt(int64(line.Quantity))).StringFixed(2),
		})
	}
	return s.pdf.GenerateReceipt(ctx, data)
}

func (s *Service) load(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || orderID <= 0 {
		return nil, domain.ErrInvalidID
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID.Int64())
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) respond(ctx context.Context, order *domain.Order) (*domain.Response, error) {
	lines, err := s.repo.ListItems(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	resp := toResponse(order, lines)
	return &resp, nil
}

func toResponse(order *domain.Order, lines []domain.ItemDetail) domain.Response {
	items := make([]domain.ItemResponse, 0, len(lines))
	for _, line := range lines {
		price := line.Price()
		items = append(items, domain.ItemResponse{
			ProductID:   snowflake.ID(line.ProductID).String(),
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   price.StringFixed(2),
			Amount:      price.Mul(decimal.NewFromInt(int64(line.Quantity))).StringFixed(2),
		})
	}
	return domain.Response{
		ID:                    snowflake.ID(order.ID).String(),
		CustomerName:          order.CustomerName,
		CustomerEmail:         order.CustomerEmail,
		TotalPrice:            order.TotalPrice.StringFixed(2),
		RefundedAmount:        order.RefundedAmount.StringFixed(2),
		Status:                order.Status,
		RemotePaymentIntentID: order.RemotePaymentIntentID,
		RemoteCustomerID:      order.RemoteCustomerID,
		RemoteSessionID:       order.RemoteSessionID,
		Items:                 items,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
}
