package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cookiejar/internal/auth/password"
	"github.com/smallbiznis/cookiejar/internal/config"
	"gorm.io/gorm"
)

const ownerRole = "owner"

// EnsureAdmin creates the bootstrap owner account when none exists for the configured email.
// It reports whether a row was inserted.
func EnsureAdmin(ctx context.Context, db *gorm.DB, node *snowflake.Node, cfg config.AdminBootstrapConfig) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" {
		return false, nil
	}
	if cfg.Password == "" {
		return false, errors.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	var created bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Raw(`SELECT COUNT(1) FROM admin_users WHERE email = ?`, email).Scan(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		hashed, err := password.Hash(cfg.Password)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if err := tx.Exec(
			`INSERT INTO admin_users (id, email, name, password_hash, role, is_active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			node.Generate().Int64(), email, strings.TrimSpace(cfg.Name), hashed, ownerRole, true, now, now,
		).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}
