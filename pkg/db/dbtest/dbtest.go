// Package dbtest opens an isolated in-memory SQLite database carrying the
// production schema, for repository and service tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		base_price NUMERIC NOT NULL,
		image_url TEXT,
		is_featured BOOLEAN NOT NULL DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT 1,
		category TEXT NOT NULL DEFAULT 'cookies',
		ingredients TEXT,
		allergens TEXT,
		unit_type TEXT NOT NULL DEFAULT 'individual',
		min_quantity INTEGER NOT NULL DEFAULT 1,
		max_quantity INTEGER NOT NULL DEFAULT 100,
		remote_product_id TEXT UNIQUE,
		remote_price_id TEXT UNIQUE,
		remote_synced_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE product_units (
		id INTEGER PRIMARY KEY,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 1),
		price NUMERIC NOT NULL CHECK (price > 0),
		is_default BOOLEAN NOT NULL DEFAULT 0,
		is_available BOOLEAN NOT NULL DEFAULT 1,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_product_units_default ON product_units (product_id) WHERE is_default`,
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		remote_customer_id TEXT UNIQUE,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		preferences TEXT,
		total_orders INTEGER NOT NULL DEFAULT 0,
		total_spent NUMERIC NOT NULL DEFAULT 0,
		last_order_at TIMESTAMP,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_name TEXT NOT NULL,
		customer_email TEXT NOT NULL,
		total_price NUMERIC NOT NULL,
		remote_payment_intent_id TEXT UNIQUE,
		remote_customer_id TEXT,
		remote_session_id TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		refunded_amount NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE order_items (
		order_id INTEGER NOT NULL REFERENCES orders(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC,
		PRIMARY KEY (order_id, product_id)
	)`,
	`CREATE TABLE billing_events (
		id INTEGER PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP,
		outcome TEXT,
		UNIQUE (provider, provider_event_id)
	)`,
	`CREATE TABLE subscriptions (
		id INTEGER PRIMARY KEY,
		remote_subscription_id TEXT NOT NULL UNIQUE,
		remote_customer_id TEXT NOT NULL,
		plan TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_period_end TIMESTAMP,
		canceled_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE admin_users (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'staff',
		is_active BOOLEAN NOT NULL DEFAULT 1,
		last_login_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Open returns a fresh database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:cookiejar_%d_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", time.Now().UnixNano(), seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writers the way row locks would.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// AssertCount fails the test when the query does not return the expected count.
func AssertCount(t *testing.T, conn *gorm.DB, query string, expected int64, args ...any) {
	t.Helper()
	var count int64
	if err := conn.Raw(query, args...).Scan(&count).Error; err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d rows for %q, got %d", expected, query, count)
	}
}
