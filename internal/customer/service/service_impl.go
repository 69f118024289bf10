package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/customer/domain"
	"github.com/smallbiznis/cookiejar/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("customer.service"),
		repo: p.Repo,
	}
}

func (s *Service) List(ctx context.Context, req domain.ListCustomerRequest) (domain.ListCustomerResponse, error) {
	filter := domain.ListCustomerFilter{
		Email:  NormalizeEmail(req.Email),
		Active: req.Active,
	}

	pageSize := pagination.Size(req.PageSize)
	items, err := s.repo.List(ctx, s.db, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListCustomerResponse{}, err
	}

	items, pageInfo := pagination.Page(items, pageSize, func(customer *domain.Customer) pagination.Cursor {
		return pagination.Cursor{ID: snowflake.ID(customer.ID).String()}
	})

	customers := make([]domain.Response, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		customers = append(customers, toResponse(item))
	}

	return domain.ListCustomerResponse{Customers: customers, PageInfo: pageInfo}, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.Response, error) {
	customerID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || customerID <= 0 {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, customerID.Int64())
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	resp := toResponse(item)
	return &resp, nil
}

// NormalizeEmail lower-cases and trims an address; customers are keyed by it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toResponse(c *domain.Customer) domain.Response {
	return domain.Response{
		ID:               snowflake.ID(c.ID).String(),
		RemoteCustomerID: c.RemoteCustomerID,
		Email:            c.Email,
		Name:             c.Name,
		Phone:            c.Phone,
		TotalOrders:      c.TotalOrders,
		TotalSpent:       c.TotalSpent.StringFixed(2),
		LastOrderAt:      c.LastOrderAt,
		IsActive:         c.IsActive,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
