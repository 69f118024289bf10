package domain

import (
	"context"
	"time"
)

type Repository interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *AdminUser) error
	FindByEmail(ctx context.Context, email string) (*AdminUser, error)
	FindByID(ctx context.Context, id int64) (*AdminUser, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]any) error
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}
