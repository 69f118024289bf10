package repository

import (
	"context"

	"github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, remote_subscription_id, remote_customer_id, plan, status,
	current_period_end, canceled_at, created_at, updated_at`

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, s *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (remote_subscription_id) DO UPDATE SET
			status = excluded.status,
			plan = CASE WHEN excluded.plan = '' THEN subscriptions.plan ELSE excluded.plan END,
			current_period_end = excluded.current_period_end,
			canceled_at = excluded.canceled_at,
			updated_at = excluded.updated_at`,
		s.ID,
		s.RemoteSubscriptionID,
		s.RemoteCustomerID,
		s.Plan,
		s.Status,
		s.CurrentPeriodEnd,
		s.CanceledAt,
		s.CreatedAt,
		s.UpdatedAt,
	).Error
}

func (r *repo) FindByRemoteID(ctx context.Context, db *gorm.DB, remoteID string) (*domain.Subscription, error) {
	var s domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE remote_subscription_id = ? LIMIT 1`,
		remoteID,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, remoteCustomerID string) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE remote_customer_id = ?
		 ORDER BY created_at DESC, id DESC`,
		remoteCustomerID,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
