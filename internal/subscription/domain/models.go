// Package domain contains the local mirror of remote cookie-box subscriptions.
package domain

import "time"

// SubscriptionStatus mirrors the provider's subscription status verbatim.
type SubscriptionStatus string

const (
	StatusIncomplete SubscriptionStatus = "incomplete"
	StatusTrialing   SubscriptionStatus = "trialing"
	StatusActive     SubscriptionStatus = "active"
	StatusPastDue    SubscriptionStatus = "past_due"
	StatusCanceled   SubscriptionStatus = "canceled"
	StatusUnpaid     SubscriptionStatus = "unpaid"
)

// IsLive reports whether the subscription still produces deliveries.
func (s SubscriptionStatus) IsLive() bool {
	return s == StatusActive || s == StatusTrialing || s == StatusPastDue
}

// Subscription is the local mirror row. The provider owns the lifecycle;
// rows are only ever upserted from provider responses or events.
type Subscription struct {
	ID                   int64              `gorm:"primaryKey"`
	RemoteSubscriptionID string             `gorm:"type:text;not null;uniqueIndex"`
	RemoteCustomerID     string             `gorm:"type:text;not null;index"`
	Plan                 string             `gorm:"type:text;not null;default:''"`
	Status               SubscriptionStatus `gorm:"type:text;not null"`
	CurrentPeriodEnd     *time.Time         `gorm:""`
	CanceledAt           *time.Time         `gorm:""`
	CreatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }
