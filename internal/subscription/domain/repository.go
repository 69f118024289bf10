package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the mirror row or refreshes it by remote subscription id.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByRemoteID(ctx context.Context, db *gorm.DB, remoteID string) (*Subscription, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, remoteCustomerID string) ([]Subscription, error)
}
