package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	syncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	"github.com/smallbiznis/cookiejar/internal/checkout/domain"
	"github.com/smallbiznis/cookiejar/internal/config"
	customerdomain "github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/internal/observability/metrics"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeCreated = "created"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	Store       *config.StoreConfigHolder
	Provider    billingdomain.Provider
	ProductRepo productdomain.Repository
	Sync        syncdomain.Service
	Resolver    customerdomain.Resolver `optional:"true"`
	Metrics     *metrics.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	store    *config.StoreConfigHolder
	provider billingdomain.Provider
	products productdomain.Repository
	sync     syncdomain.Service
	resolver customerdomain.Resolver
	metrics  *metrics.Metrics
	validate *validator.Validate
	baseURL  string
	currency string
	timeout  time.Duration
}

func New(p Params) domain.Service {
	timeout := p.Config.Billing.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	currency := strings.ToLower(strings.TrimSpace(p.Config.Billing.Currency))
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		store:    p.Store,
		provider: p.Provider,
		products: p.ProductRepo,
		sync:     p.Sync,
		resolver: p.Resolver,
		metrics:  p.Metrics,
		validate: validator.New(),
		baseURL:  strings.TrimRight(p.Config.BaseURL, "/"),
		currency: currency,
		timeout:  timeout,
	}
}

// cartLine is a validated cart line with its product and remote price.
type cartLine struct {
	product  productdomain.Product
	quantity int
	priceID  string
}

// prepared is everything needed to open a remote session for a cart.
type prepared struct {
	lines      []cartLine
	customerID string
	email      string
	metadata   map[string]string
}

func (s *Service) CreateCheckoutSession(ctx context.Context, items []domain.CartItem, info domain.CustomerInfo) (*domain.SessionResult, error) {
	prep, err := s.prepare(ctx, items, info)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, prep)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
		return nil, err
	}
	s.metrics.RecordCheckoutSession(ctx, outcomeCreated)

	s.log.Info("checkout session created",
		zap.String("session_id", session.ID),
		zap.String("remote_customer_id", prep.customerID),
		zap.Int("lines", len(prep.lines)),
		zap.Int64("amount_total", session.AmountTotal),
	)

	return &domain.SessionResult{
		SessionID:        session.ID,
		URL:              session.URL,
		RemoteCustomerID: prep.customerID,
		AmountTotal:      billingdomain.FromMinorUnits(session.AmountTotal).StringFixed(2),
		Currency:         s.sessionCurrency(session.Currency),
	}, nil
}

// CreatePaymentIntent quotes the cart through a remote session and opens a
// payment intent for the quoted total, for embedded payment forms.
func (s *Service) CreatePaymentIntent(ctx context.Context, items []domain.CartItem, info domain.CustomerInfo) (*domain.PaymentIntentResult, error) {
	prep, err := s.prepare(ctx, items, info)
	if err != nil {
		return nil, err
	}

	session, err := s.openSession(ctx, prep)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
		return nil, err
	}
	if session.AmountTotal <= 0 {
		s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
		return nil, fmt.Errorf("quote session %s: %w", session.ID, billingdomain.ErrInvalidResponse)
	}

	metadata := make(map[string]string, len(prep.metadata)+1)
	for k, v := range prep.metadata {
		metadata[k] = v
	}
	metadata[domain.MetadataSessionID] = session.ID

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	intent, err := s.provider.CreatePaymentIntent(callCtx, billingdomain.PaymentIntentInput{
		Amount:         session.AmountTotal,
		Currency:       s.sessionCurrency(session.Currency),
		CustomerID:     prep.customerID,
		ReceiptEmail:   prep.email,
		Metadata:       metadata,
		IdempotencyKey: "payment_intent:" + session.ID,
	})
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
		s.log.Warn("create payment intent failed", zap.String("session_id", session.ID), zap.Error(err))
		return nil, err
	}
	s.metrics.RecordCheckoutSession(ctx, outcomeCreated)

	s.log.Info("payment intent created",
		zap.String("payment_intent_id", intent.ID),
		zap.String("session_id", session.ID),
		zap.Int64("amount", intent.Amount),
	)

	return &domain.PaymentIntentResult{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          billingdomain.FromMinorUnits(intent.Amount).StringFixed(2),
		Currency:        s.sessionCurrency(intent.Currency),
	}, nil
}

func (s *Service) VerifySession(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.ErrInvalidSession
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.provider.GetCheckoutSession(callCtx, sessionID)
	if err != nil {
		if billingdomain.IsNotFound(err) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	customerName := session.CustomerName
	if customerName == "" {
		customerName = session.Metadata[domain.MetadataCustomerName]
	}

	return &domain.SessionStatus{
		ID:              session.ID,
		Status:          session.Status,
		PaymentStatus:   session.PaymentStatus,
		AmountTotal:     billingdomain.FromMinorUnits(session.AmountTotal).StringFixed(2),
		Currency:        s.sessionCurrency(session.Currency),
		CustomerEmail:   session.CustomerEmail,
		CustomerName:    customerName,
		PaymentIntentID: session.PaymentIntentID,
		Metadata:        session.Metadata,
	}, nil
}

// prepare validates the cart, ensures every line has a current remote price
// and resolves the remote customer. No session is opened.
func (s *Service) prepare(ctx context.Context, items []domain.CartItem, info domain.CustomerInfo) (*prepared, error) {
	info.Name = strings.TrimSpace(info.Name)
	info.Email = strings.ToLower(strings.TrimSpace(info.Email))
	info.Phone = strings.TrimSpace(info.Phone)

	lines, err := s.validateCart(ctx, items, info)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, outcomeInvalid)
		return nil, err
	}

	for i := range lines {
		priceID, err := s.sync.EnsurePrice(ctx, lines[i].product.ID)
		if err != nil {
			s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
			s.log.Warn("ensure price failed",
				zap.Int64("product_id", lines[i].product.ID),
				zap.Error(err),
			)
			return nil, err
		}
		lines[i].priceID = priceID
	}

	var customerID string
	if s.resolver != nil {
		customerID, err = s.resolver.Resolve(ctx, info.Email, info.Name)
		if err != nil {
			s.metrics.RecordCheckoutSession(ctx, outcomeFailed)
			if errors.Is(err, customerdomain.ErrInvalidEmail) {
				return nil, &domain.ValidationError{
					Err:    domain.ErrInvalidCustomer,
					Fields: map[string]string{"customer.email": "email"},
				}
			}
			return nil, err
		}
	}

	metaItems := make([]domain.MetadataItem, 0, len(lines))
	for _, line := range lines {
		metaItems = append(metaItems, domain.MetadataItem{
			ID:       line.product.ID,
			Name:     line.product.Name,
			Price:    line.product.BasePrice.StringFixed(2),
			Quantity: line.quantity,
		})
	}
	metadata := map[string]string{
		domain.MetadataCustomerName: info.Name,
	}
	if customerID != "" {
		metadata[domain.MetadataCustomerID] = customerID
	}
	if encoded := domain.EncodeItems(metaItems); encoded != "" {
		metadata[domain.MetadataItems] = encoded
	}

	return &prepared{
		lines:      lines,
		customerID: customerID,
		email:      info.Email,
		metadata:   metadata,
	}, nil
}

func (s *Service) openSession(ctx context.Context, prep *prepared) (*billingdomain.RemoteCheckoutSession, error) {
	lineItems := make([]billingdomain.LineItemInput, 0, len(prep.lines))
	for _, line := range prep.lines {
		lineItems = append(lineItems, billingdomain.LineItemInput{
			PriceID:  line.priceID,
			Quantity: int64(line.quantity),
		})
	}

	in := billingdomain.CheckoutSessionInput{
		Mode:                "payment",
		LineItems:           lineItems,
		SuccessURL:          s.baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:           s.baseURL + "/checkout/canceled",
		Metadata:            prep.metadata,
		ShippingCountries:   s.shippingCountries(),
		AllowPromotionCodes: true,
	}
	if prep.customerID != "" {
		in.CustomerID = prep.customerID
	} else {
		in.CustomerEmail = prep.email
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.provider.CreateCheckoutSession(callCtx, in)
	if err != nil {
		s.log.Warn("create checkout session failed", zap.Error(err))
		return nil, err
	}
	return session, nil
}

// validateCart merges duplicate product lines and checks every line against
// the stored product before anything is sent to the provider.
func (s *Service) validateCart(ctx context.Context, items []domain.CartItem, info domain.CustomerInfo) ([]cartLine, error) {
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	req := domain.CheckoutRequest{Items: items, Customer: info}
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	quantities := map[int64]int{}
	order := make([]int64, 0, len(items))
	for i, item := range items {
		id, err := snowflake.ParseString(strings.TrimSpace(item.ProductID))
		if err != nil || id.Int64() <= 0 {
			return nil, &domain.ValidationError{
				Err:    domain.ErrInvalidItem,
				Fields: map[string]string{fmt.Sprintf("items[%d].product_id", i): "invalid"},
			}
		}
		if _, seen := quantities[id.Int64()]; !seen {
			order = append(order, id.Int64())
		}
		quantities[id.Int64()] += item.Quantity
	}

	products, err := s.products.FindByIDs(ctx, s.db, order)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]productdomain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	lines := make([]cartLine, 0, len(order))
	for _, id := range order {
		product, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrProductNotFound, id)
		}
		if !product.IsAvailable {
			return nil, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, product.Name)
		}
		qty := quantities[id]
		if qty < product.MinQuantity || qty > product.MaxQuantity {
			return nil, &domain.ValidationError{
				Err: domain.ErrInvalidQuantity,
				Fields: map[string]string{
					snowflake.ID(id).String(): fmt.Sprintf("quantity must be between %d and %d", product.MinQuantity, product.MaxQuantity),
				},
			}
		}
		lines = append(lines, cartLine{product: product, quantity: qty})
	}
	return lines, nil
}

func (s *Service) shippingCountries() []string {
	if s.store == nil {
		return []string{"US"}
	}
	countries := s.store.Get().ShippingCountries
	if len(countries) == 0 {
		return []string{"US"}
	}
	return countries
}

func (s *Service) sessionCurrency(remote string) string {
	if remote != "" {
		return strings.ToLower(remote)
	}
	return s.currency
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	keys := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := fieldPath(fe.Namespace())
		fields[name] = fe.Tag()
		keys = append(keys, name)
	}
	sort.Strings(keys)

	sentinel := domain.ErrInvalidItem
	if strings.HasPrefix(keys[0], "customer") {
		sentinel = domain.ErrInvalidCustomer
	}
	return &domain.ValidationError{Err: sentinel, Fields: fields}
}

// fieldPath turns "CheckoutRequest.Customer.Email" into "customer.email".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.ToLower(strings.Join(parts, "."))
}
