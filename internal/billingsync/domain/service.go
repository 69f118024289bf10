// Package domain defines how local products are mirrored into the remote
// billing provider.
package domain

import (
	"context"
	"errors"
	"time"
)

// Sync actions reported per product.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
	ActionFailed  = "failed"
)

type SyncOptions struct {
	// ForceUpdate re-checks the remote price even when SkipExisting is set.
	ForceUpdate bool
	// SkipExisting returns early for products that already carry remote ids.
	SkipExisting bool
}

type SyncResult struct {
	ProductID       string `json:"product_id"`
	Action          string `json:"action"`
	RemoteProductID string `json:"remote_product_id,omitempty"`
	RemotePriceID   string `json:"remote_price_id,omitempty"`
}

// RunSummary describes one bulk sync run.
type RunSummary struct {
	Scope     string
	Total     int
	Created   int
	Updated   int
	Skipped   int
	Failed    int
	StartedAt time.Time
	Duration  time.Duration
}

type Service interface {
	SyncProduct(ctx context.Context, productID int64, opts SyncOptions) (SyncResult, error)
	SyncAllProducts(ctx context.Context) ([]SyncResult, error)
	SyncUnsyncedProducts(ctx context.Context) ([]SyncResult, error)
	// EnsurePrice returns a remote price id that is active and matches the
	// product's current base price, syncing on demand.
	EnsurePrice(ctx context.Context, productID int64) (string, error)
	PushProduct(ctx context.Context, productID int64) (SyncResult, error)
	ArchiveProduct(ctx context.Context, productID int64) error
}

// RunReporter receives a summary after every bulk sync.
type RunReporter interface {
	ReportRun(ctx context.Context, run RunSummary) error
}

var (
	ErrProductNotFound = errors.New("product_not_found")
	ErrInvalidPrice    = errors.New("invalid_price")
)
